// Package adbtcp implements the default Connector: dialing the ADB server
// over TCP, and a reverse-tunnel registry that accepts inbound connections
// on a local listener and hands each one to a registered handler. Dispatch
// does not look at the address the server used: with more than one
// registration, which handler receives a connection is not defined.
//
// This package is the one most callers construct directly and pass to
// adbhost.NewClient; the root package never imports it (adbhost.Connector
// is satisfied structurally, not by name), which keeps the protocol engine
// free of a hard dependency on any one transport.
package adbtcp

import (
	"context"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/go-adbhost/adbhost"
	"github.com/go-adbhost/adbhost/internal/adberr"
	"github.com/go-adbhost/adbhost/internal/wire"
)

// ConnectOptions and ReverseHandler are the root package's types; adbtcp
// implements adbhost.Connector against them directly.
type (
	ConnectOptions = adbhost.ConnectOptions
	ReverseHandler = adbhost.ReverseHandler
)

// Connector dials hostPort and serves reverse-tunnel registrations backed
// by one lazily-started local TCP listener. It implements adbhost.Connector.
type Connector struct {
	hostPort string
	dialer   net.Dialer

	mu       sync.Mutex
	listener net.Listener
	handlers map[string]ReverseHandler
	grp      *errgroup.Group
	cancel   context.CancelFunc
}

var _ adbhost.Connector = (*Connector)(nil)

// New builds a Connector that dials hostPort ("host:port") for every
// Connect call.
func New(hostPort string) *Connector {
	return &Connector{
		hostPort: hostPort,
		handlers: make(map[string]ReverseHandler),
	}
}

// Connect dials the server, honoring opts.Context for cancellation of the
// dial itself. The Unref hint has no effect on net.Dialer-backed
// connections (Go's runtime does not keep a process alive for open
// sockets the way some event-loop runtimes do); it is accepted but
// advisory, and ignored here.
func (c *Connector) Connect(opts ConnectOptions) (*wire.Conn, error) {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	conn, err := c.dialer.DialContext(ctx, "tcp", c.hostPort)
	if err != nil {
		return nil, adberr.Wrap(adberr.TransportError, err, "dial %s", c.hostPort)
	}
	return wire.NewConn(conn, conn, conn), nil
}

// AddReverseTunnel registers handler for address, starting the shared
// listener on first use. If address is empty, a fresh one is synthesized
// with uuid.NewString(). Returns the address the registration was made
// under.
func (c *Connector) AddReverseTunnel(handler ReverseHandler, address string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if address == "" {
		address = "reverse:" + uuid.NewString()
	}
	if c.listener == nil {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return "", adberr.Wrap(adberr.TransportError, err, "start reverse-tunnel listener")
		}
		c.listener = l
		ctx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		c.grp, _ = errgroup.WithContext(ctx)
		c.grp.Go(func() error { return c.acceptLoop(ctx, l) })
	}
	c.handlers[address] = handler
	return address, nil
}

// RemoveReverseTunnel drops the registration for address. It is not an
// error to remove an address that was never registered.
func (c *Connector) RemoveReverseTunnel(address string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, address)
	return nil
}

// ClearReverseTunnels drops every registration and stops the listener.
// Errors from closing the listener and from waiting on the accept loop
// are aggregated with multierror rather than the first one short-
// circuiting the rest of teardown.
func (c *Connector) ClearReverseTunnels() error {
	c.mu.Lock()
	l := c.listener
	cancel := c.cancel
	grp := c.grp
	c.listener = nil
	c.cancel = nil
	c.grp = nil
	c.handlers = make(map[string]ReverseHandler)
	c.mu.Unlock()

	if l == nil {
		return nil
	}

	var result *multierror.Error
	if cancel != nil {
		cancel()
	}
	if err := l.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if grp != nil {
		if err := grp.Wait(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (c *Connector) acceptLoop(ctx context.Context, l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return adberr.Wrap(adberr.TransportError, err, "reverse-tunnel accept")
			}
		}
		go c.dispatch(conn)
	}
}

// dispatch picks the sole registered handler to hand conn to. Directing a
// specific inbound connection to a specific registered address requires
// inspecting the device-bound packet stream, which belongs to a layer
// above this connector; until that's wired in, a single-handler registry
// is all this connector can serve deterministically.
func (c *Connector) dispatch(conn net.Conn) {
	c.mu.Lock()
	var handler ReverseHandler
	for _, h := range c.handlers {
		handler = h
		break
	}
	c.mu.Unlock()

	if handler == nil {
		conn.Close()
		return
	}
	handler(conn)
}
