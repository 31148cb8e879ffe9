package wire

import (
	"io"
	"sync"
)

// closeState is the close-once guard shared by a Conn and every shallow
// copy WithReader makes of it, so two *Conn values over the same
// underlying connection never race to close it independently.
type closeState struct {
	once     sync.Once
	closeErr error
	done     chan struct{}
}

// Conn is the shape every ServerConnection-like value in this module takes:
// a readable half, a writable half, a way to know when it has closed, and a
// single owner-called Close. Connector implementations return these; the
// request engine and ServiceSocket both wrap one.
type Conn struct {
	Reader io.Reader
	Writer io.Writer
	Closer io.Closer

	state *closeState
}

// NewConn builds a Conn from its three parts. The returned Conn's Done
// channel closes once Close has been called.
func NewConn(r io.Reader, w io.Writer, c io.Closer) *Conn {
	return &Conn{Reader: r, Writer: w, Closer: c, state: &closeState{done: make(chan struct{})}}
}

// Close closes the underlying closer exactly once and signals Done.
// Calling Close more than once is safe; only the first call's error is
// returned, subsequent calls return the same error. Every *Conn produced
// from this one via WithReader shares this same guard.
func (c *Conn) Close() error {
	c.state.once.Do(func() {
		c.state.closeErr = c.Closer.Close()
		close(c.state.done)
	})
	return c.state.closeErr
}

// Done reports when Close has completed.
func (c *Conn) Done() <-chan struct{} {
	return c.state.done
}

// Read implements io.Reader by delegating to Reader.
func (c *Conn) Read(p []byte) (int, error) { return c.Reader.Read(p) }

// Write implements io.Writer by delegating to Writer.
func (c *Conn) Write(p []byte) (int, error) { return c.Writer.Write(p) }

// WithReader returns a shallow copy of c with its Reader replaced; used by
// the request engine once the buffered reader has released its residue
// back as a fresh stream. The copy shares c's close guard, so closing
// either value closes the underlying connection exactly once and signals
// Done on both.
func (c *Conn) WithReader(r io.Reader) *Conn {
	nc := *c
	nc.Reader = r
	return &nc
}
