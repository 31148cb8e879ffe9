package adbhost

import (
	"encoding/binary"
	"io"
)

// shell v2 packet ids, per the shell,v2,raw: service's wire framing: one
// byte id, four bytes little-endian length, then that many payload bytes.
const (
	shellStdin  byte = 0
	shellStdout byte = 1
	shellStderr byte = 2
	shellExit   byte = 3
)

// Shell represents a running adb shell session started with a specific
// command via Device.RunShellCommandAsync.
//
// It allows streaming combined stdout/stderr and supports Close to forcibly
// terminate the running remote command by closing the underlying socket
// (similar to Ctrl+C). Writing to stdin is not exposed; this is a blocking
// runner with a force-stop capability.
type Shell struct {
	socket *ServiceSocket
	Reader io.Reader
}

// Close forcibly terminates the running remote shell command.
func (s *Shell) Close() error {
	return s.socket.Close()
}

// newShellReader builds a Reader that demultiplexes the shell,v2 packet
// stream read from socket and exposes a continuous stream of combined
// stdout/stderr bytes.
func newShellReader(socket *ServiceSocket) io.Reader {
	pr, pw := io.Pipe()
	go func() {
		defer pw.Close()
		header := make([]byte, 5)
		for {
			if _, err := io.ReadFull(socket, header); err != nil {
				return
			}
			id := header[0]
			length := binary.LittleEndian.Uint32(header[1:])
			var payload []byte
			if length > 0 {
				payload = make([]byte, length)
				if _, err := io.ReadFull(socket, payload); err != nil {
					return
				}
			}
			switch id {
			case shellStdout, shellStderr:
				if len(payload) > 0 {
					if _, err := pw.Write(payload); err != nil {
						return
					}
				}
			case shellExit:
				return
			default:
				// shellStdin and any packet id this reader never sends
				// are not expected on the read side; ignore rather than
				// fail the stream.
			}
		}
	}()
	return pr
}
