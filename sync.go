package adbhost

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-adbhost/adbhost/internal/adberr"
)

// syncMaxChunk is the largest DATA payload a sync-protocol peer ever sends
// or expects in a single frame.
const syncMaxChunk = 64 * 1024

func syncID(s string) []byte {
	id := make([]byte, 4)
	copy(id, s)
	return id
}

func writeSyncFrame(w io.Writer, id string, payload []byte) error {
	if _, err := w.Write(syncID(id)); err != nil {
		return adberr.Wrap(adberr.TransportError, err, "write sync %s id", id)
	}
	var length [4]byte
	binary.LittleEndian.PutUint32(length[:], uint32(len(payload)))
	if _, err := w.Write(length[:]); err != nil {
		return adberr.Wrap(adberr.TransportError, err, "write sync %s length", id)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return adberr.Wrap(adberr.TransportError, err, "write sync %s payload", id)
	}
	return nil
}

// readSyncID reads a bare 4-byte frame id, used where the id's payload
// shape isn't the generic id+length+data framing (LIST's DENT/DONE
// entries, which carry fixed-size fields instead of a length prefix).
func readSyncID(r io.Reader) (string, error) {
	var id [4]byte
	if _, err := io.ReadFull(r, id[:]); err != nil {
		return "", adberr.Wrap(adberr.UnexpectedEnd, err, "read sync id")
	}
	return string(id[:]), nil
}

// readSyncHeader reads the generic id+length frame header used by
// SEND/RECV's DATA/OKAY/FAIL frames.
func readSyncHeader(r io.Reader) (id string, length uint32, err error) {
	id, err = readSyncID(r)
	if err != nil {
		return "", 0, err
	}
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return "", 0, adberr.Wrap(adberr.UnexpectedEnd, err, "read sync length")
	}
	return id, binary.LittleEndian.Uint32(lengthBuf[:]), nil
}

func readSyncFailure(r io.Reader, length uint32) error {
	msg := make([]byte, length)
	if _, err := io.ReadFull(r, msg); err != nil {
		return adberr.Wrap(adberr.UnexpectedEnd, err, "read sync FAIL reason")
	}
	return adberr.Errorf(adberr.ProtocolFailure, "sync: %s", msg)
}

func (d *Device) openSync(ctx context.Context) (*ServiceSocket, error) {
	return d.client.ConnectDevice(ctx, d.selector(), "sync:")
}

// List lists remotePath's directory entries via the sync:LIST sub-protocol.
func (d *Device) List(ctx context.Context, remotePath string) ([]DeviceFileInfo, error) {
	socket, err := d.openSync(ctx)
	if err != nil {
		return nil, err
	}
	defer closeSocketQuietly(socket, "List")

	if err := writeSyncFrame(socket, "LIST", []byte(remotePath)); err != nil {
		return nil, err
	}

	var entries []DeviceFileInfo
	for {
		id, err := readSyncID(socket)
		if err != nil {
			return nil, err
		}
		switch id {
		case "DONE":
			var discard [16]byte
			if _, err := io.ReadFull(socket, discard[:]); err != nil {
				return nil, adberr.Wrap(adberr.UnexpectedEnd, err, "read sync DONE tail")
			}
			return entries, nil
		case "FAIL":
			var lengthBuf [4]byte
			if _, err := io.ReadFull(socket, lengthBuf[:]); err != nil {
				return nil, adberr.Wrap(adberr.UnexpectedEnd, err, "read sync FAIL length")
			}
			return nil, readSyncFailure(socket, binary.LittleEndian.Uint32(lengthBuf[:]))
		case "DENT":
			var fields [16]byte
			if _, err := io.ReadFull(socket, fields[:]); err != nil {
				return nil, adberr.Wrap(adberr.UnexpectedEnd, err, "read sync DENT fields")
			}
			mode := binary.LittleEndian.Uint32(fields[0:4])
			size := binary.LittleEndian.Uint32(fields[4:8])
			mtime := binary.LittleEndian.Uint32(fields[8:12])
			nameLen := binary.LittleEndian.Uint32(fields[12:16])
			name := make([]byte, nameLen)
			if _, err := io.ReadFull(socket, name); err != nil {
				return nil, adberr.Wrap(adberr.UnexpectedEnd, err, "read sync DENT name")
			}
			entries = append(entries, DeviceFileInfo{
				Name:         string(name),
				Mode:         os.FileMode(mode),
				Size:         size,
				LastModified: time.Unix(int64(mtime), 0),
			})
		default:
			return nil, adberr.Errorf(adberr.UnexpectedResponse, "sync LIST: unexpected id %q", id)
		}
	}
}

// Push streams source to remotePath with the given modification time and
// mode (DefaultFileMode if omitted) via the sync:SEND sub-protocol.
func (d *Device) Push(ctx context.Context, source io.Reader, remotePath string, modification time.Time, mode ...os.FileMode) error {
	m := DefaultFileMode
	if len(mode) != 0 {
		m = mode[0]
	}

	socket, err := d.openSync(ctx)
	if err != nil {
		return err
	}
	defer closeSocketQuietly(socket, "Push")

	header := fmt.Sprintf("%s,%d", remotePath, m)
	if err := writeSyncFrame(socket, "SEND", []byte(header)); err != nil {
		return err
	}

	buf := make([]byte, syncMaxChunk)
	for {
		n, rerr := source.Read(buf)
		if n > 0 {
			if err := writeSyncFrame(socket, "DATA", buf[:n]); err != nil {
				return err
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return adberr.Wrap(adberr.TransportError, rerr, "read push source")
		}
	}

	var doneLen [4]byte
	binary.LittleEndian.PutUint32(doneLen[:], uint32(modification.Unix()))
	if _, err := socket.Write(syncID("DONE")); err != nil {
		return adberr.Wrap(adberr.TransportError, err, "write sync DONE id")
	}
	if _, err := socket.Write(doneLen[:]); err != nil {
		return adberr.Wrap(adberr.TransportError, err, "write sync DONE mtime")
	}

	id, length, err := readSyncHeader(socket)
	if err != nil {
		return err
	}
	switch id {
	case "OKAY":
		return nil
	case "FAIL":
		return readSyncFailure(socket, length)
	default:
		return adberr.Errorf(adberr.UnexpectedResponse, "sync SEND: unexpected id %q", id)
	}
}

// PushFile is Push using local's own modification time when modification is
// omitted.
func (d *Device) PushFile(ctx context.Context, local *os.File, remotePath string, modification ...time.Time) error {
	when := modification
	if len(when) == 0 {
		stat, err := local.Stat()
		if err != nil {
			return err
		}
		when = []time.Time{stat.ModTime()}
	}
	return d.Push(ctx, local, remotePath, when[0], DefaultFileMode)
}

// Pull streams remotePath from the device into dest via the sync:RECV
// sub-protocol.
func (d *Device) Pull(ctx context.Context, remotePath string, dest io.Writer) error {
	socket, err := d.openSync(ctx)
	if err != nil {
		return err
	}
	defer closeSocketQuietly(socket, "Pull")

	if err := writeSyncFrame(socket, "RECV", []byte(remotePath)); err != nil {
		return err
	}

	for {
		id, length, err := readSyncHeader(socket)
		if err != nil {
			return err
		}
		switch id {
		case "DONE":
			return nil
		case "FAIL":
			return readSyncFailure(socket, length)
		case "DATA":
			payload := make([]byte, length)
			if _, err := io.ReadFull(socket, payload); err != nil {
				return adberr.Wrap(adberr.UnexpectedEnd, err, "read sync DATA payload")
			}
			if _, err := dest.Write(payload); err != nil {
				return adberr.Wrap(adberr.TransportError, err, "write pull destination")
			}
		default:
			return adberr.Errorf(adberr.UnexpectedResponse, "sync RECV: unexpected id %q", id)
		}
	}
}
