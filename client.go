// Package adbhost implements the client side of the ADB server protocol:
// the text-framed request/response protocol spoken between an ADB client
// and a locally-running ADB server. It enumerates devices, queries server
// and device capabilities, opens service channels to a selected device,
// and waits for device lifecycle transitions. Once a service channel is
// open, the caller owns a bidirectional byte stream and is free to speak
// whatever device-side protocol (shell, sync, reverse) it needs over it —
// that layer is out of scope here, same as in the protocol this module
// implements the host side of.
package adbhost

import (
	"context"
	"io"
	"log"
	"net"

	"github.com/go-adbhost/adbhost/internal/bufreader"
	"github.com/go-adbhost/adbhost/internal/raceread"
	"github.com/go-adbhost/adbhost/internal/wire"
)

// ProtocolVersion is the ADB server protocol version this client speaks.
const ProtocolVersion = 41

// logger carries the handful of diagnostics the error-swallowing cleanup
// paths would otherwise drop silently. Discarded by default; callers that
// want to see them call SetLogger.
var logger = log.New(io.Discard, "adbhost: ", log.LstdFlags)

// SetLogger replaces the package-level diagnostic logger. Pass nil to go
// back to discarding diagnostics.
func SetLogger(l *log.Logger) {
	if l == nil {
		logger = log.New(io.Discard, "adbhost: ", log.LstdFlags)
		return
	}
	logger = l
}

// ConnectOptions carries the abort signal and an unref hint for the
// underlying connection. Context, if non-nil, is honored by Connect and
// WaitFor; a nil Context behaves as context.Background().
type ConnectOptions struct {
	Context context.Context
	Unref   bool
}

// ReverseHandler is invoked for every connection the server directs back
// to a registered reverse-tunnel address.
type ReverseHandler func(conn net.Conn)

// Connector opens raw bidirectional byte streams to the ADB server and
// mediates reverse-tunnel registration. The core consumes it through this
// interface and never retries a failure.
type Connector interface {
	Connect(opts ConnectOptions) (*wire.Conn, error)
	AddReverseTunnel(handler ReverseHandler, address string) (string, error)
	RemoveReverseTunnel(address string) error
	ClearReverseTunnels() error
}

// Client is the process-lifetime entry point to a single ADB server. It
// holds no I/O state of its own beyond the shared Connector; every
// exported method dials its own connection.
type Client struct {
	connector Connector
}

// NewClient builds a Client around connector.
func NewClient(connector Connector) *Client {
	return &Client{connector: connector}
}

// connect implements the request engine: dial, write one request frame,
// read the ack frame under cancellation, and hand back a
// connection whose readable is the buffered reader's released residue
// stream. On any failure the buffered reader is canceled (by simply being
// abandoned — it was never shared) and the underlying connection is
// closed before the error is returned.
func (c *Client) connect(request string, opts ConnectOptions) (*wire.Conn, error) {
	conn, err := c.connector.Connect(opts)
	if err != nil {
		return nil, err
	}

	if err := wire.WriteString(conn, request); err != nil {
		conn.Close()
		return nil, err
	}

	br := bufreader.New(conn.Reader)
	ackErr := readAck(br, opts)
	if ackErr != nil {
		if cerr := conn.Close(); cerr != nil {
			logger.Printf("close after failed connect(%q): %v", request, cerr)
		}
		return nil, ackErr
	}

	return conn.WithReader(br.Release()), nil
}

// readAck races the ack read against opts.Context.
func readAck(br *bufreader.Reader, opts ConnectOptions) error {
	signals := make([]context.Context, 0, 1)
	if opts.Context != nil {
		signals = append(signals, opts.Context)
	}
	_, err := raceread.Wait(func() (struct{}, error) {
		return struct{}{}, wire.ReadAck(br)
	}, signals...)
	return err
}

// readString races a string-frame read against opts.Context.
func readString(br *bufreader.Reader, opts ConnectOptions) (string, error) {
	signals := make([]context.Context, 0, 1)
	if opts.Context != nil {
		signals = append(signals, opts.Context)
	}
	return raceread.Wait(func() (string, error) {
		return wire.ReadString(br)
	}, signals...)
}

// closeQuietly closes conn and logs, rather than surfaces, any error —
// used on the success-path "finally" of the one-shot commands, where a
// close failure shouldn't mask a result that already succeeded.
func closeQuietly(conn *wire.Conn, op string) {
	if err := conn.Close(); err != nil {
		logger.Printf("close after %s: %v", op, err)
	}
}
