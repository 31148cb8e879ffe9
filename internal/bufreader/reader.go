// Package bufreader implements a releasable reader: exact-byte reads that
// never read past the requested bytes, so the rest of the stream can be
// handed back to the caller as a fresh io.Reader once a framing handshake
// is done without losing any bytes.
package bufreader

import (
	"bytes"
	"io"

	"github.com/go-adbhost/adbhost/internal/adberr"
)

// Reader wraps an io.Reader, offering exact-byte reads. Once Release is
// called the Reader must not be used again.
type Reader struct {
	underlying io.Reader
	released   bool
}

// New wraps r.
func New(r io.Reader) *Reader {
	return &Reader{underlying: r}
}

// ReadExactly reads exactly n bytes, failing with UnexpectedEnd if the
// stream ends first.
func (r *Reader) ReadExactly(n int) ([]byte, error) {
	if r.released {
		return nil, adberr.Errorf(adberr.Internal, "bufreader: read after release")
	}
	buf := make([]byte, n)
	read, err := io.ReadFull(r.underlying, buf)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, adberr.Wrap(adberr.UnexpectedEnd, err, "stream ended after %d of %d bytes", read, n)
		}
		return nil, adberr.Wrap(adberr.TransportError, err, "read %d bytes", n)
	}
	return buf, nil
}

// Release returns a fresh io.Reader that first yields any bytes already
// pulled from the underlying stream by a prior ReadExactly call that this
// Reader didn't fully consume, then continues reading from the underlying
// stream. Because ReadExactly never over-reads (it asks io.ReadFull for
// exactly n bytes), there is never leftover residue in practice for this
// protocol's framing — Release exists so callers never have to reason
// about whether there might be.
func (r *Reader) Release() io.Reader {
	r.released = true
	return io.MultiReader(bytes.NewReader(nil), r.underlying)
}
