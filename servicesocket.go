package adbhost

import (
	"io"

	"github.com/go-adbhost/adbhost/internal/wire"
)

// ServiceSocket is the bidirectional byte stream ConnectDevice hands back
// once a device-bound service channel is open. The transport id is
// resolved before the caller ever sees the socket.
type ServiceSocket struct {
	conn        *wire.Conn
	TransportID uint64
	Service     string
}

// Read implements io.Reader.
func (s *ServiceSocket) Read(p []byte) (int, error) { return s.conn.Read(p) }

// Write implements io.Writer. In Go there is no owned/borrowed buffer
// distinction (the caller's slice is never retained past the call), so
// Write is a direct pass-through: p is never referenced after Write
// returns.
func (s *ServiceSocket) Write(p []byte) (int, error) { return s.conn.Write(p) }

// Close closes the underlying connection.
func (s *ServiceSocket) Close() error { return s.conn.Close() }

// Done reports when Close has completed.
func (s *ServiceSocket) Done() <-chan struct{} { return s.conn.Done() }

var _ io.ReadWriteCloser = (*ServiceSocket)(nil)
