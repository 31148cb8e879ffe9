package adbhost

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-adbhost/adbhost/internal/adberr"
	"github.com/go-adbhost/adbhost/internal/wire"
)

// fakeServer is a Connector whose Connect returns one half of a net.Pipe
// and hands the other half to a per-request script, so tests can drive the
// exact bytes a real ADB server would write without touching a socket.
type fakeServer struct {
	script func(conn net.Conn)
}

func (f *fakeServer) Connect(opts ConnectOptions) (*wire.Conn, error) {
	client, server := net.Pipe()
	go func() {
		defer server.Close()
		f.script(server)
	}()
	return wire.NewConn(client, client, client), nil
}

func (f *fakeServer) AddReverseTunnel(handler ReverseHandler, address string) (string, error) {
	return address, nil
}
func (f *fakeServer) RemoveReverseTunnel(address string) error { return nil }
func (f *fakeServer) ClearReverseTunnels() error               { return nil }

func readRequest(t *testing.T, conn net.Conn) string {
	t.Helper()
	head := make([]byte, 4)
	_, err := io.ReadFull(conn, head)
	require.NoError(t, err)
	n, err := wire.ParseHex4(head)
	require.NoError(t, err)
	body := make([]byte, n)
	_, err = io.ReadFull(conn, body)
	require.NoError(t, err)
	return string(body)
}

func writeOkayString(t *testing.T, conn net.Conn, payload string) {
	t.Helper()
	_, err := conn.Write([]byte("OKAY"))
	require.NoError(t, err)
	require.NoError(t, wire.WriteString(conn, payload))
}

// withVersionProbe wraps a bind-phase script so that ConnectDevice's
// leading ValidateVersion call (a separate Connect invocation) is answered
// transparently, without every bind-phase test having to restate it.
func withVersionProbe(t *testing.T, bindScript func(conn net.Conn, firstRequest string)) func(conn net.Conn) {
	return func(conn net.Conn) {
		req := readRequest(t, conn)
		if req == "host:version" {
			writeOkayString(t, conn, "0029")
			return
		}
		bindScript(conn, req)
	}
}

func TestGetVersionProbe(t *testing.T) {
	server := &fakeServer{script: func(conn net.Conn) {
		req := readRequest(t, conn)
		assert.Equal(t, "host:version", req)
		writeOkayString(t, conn, "0029")
	}}
	client := NewClient(server)

	version, err := client.GetVersion(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 0x29, version)
}

func TestValidateVersionMismatch(t *testing.T) {
	server := &fakeServer{script: func(conn net.Conn) {
		readRequest(t, conn)
		writeOkayString(t, conn, "0001")
	}}
	client := NewClient(server)

	err := client.ValidateVersion(context.Background())
	require.Error(t, err)
	assert.True(t, adberr.Is(err, adberr.VersionMismatch))
}

func TestGetDevicesListing(t *testing.T) {
	server := &fakeServer{script: func(conn net.Conn) {
		req := readRequest(t, conn)
		assert.Equal(t, "host:devices-l", req)
		writeOkayString(t, conn, "emulator-5554 device product:sdk model:sdk device:emu transport_id:3\n")
	}}
	client := NewClient(server)

	devices, err := client.GetDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "emulator-5554", devices[0].Serial)
	assert.EqualValues(t, 3, devices[0].TransportID)
}

func TestConnectDeviceAutoBindsTransportID(t *testing.T) {
	server := &fakeServer{script: withVersionProbe(t, func(conn net.Conn, req string) {
		assert.Equal(t, "host:tport:serial:emulator-5554", req)

		// OKAY acks the bind; the transport id and a second OKAY follow
		// the service string, mirroring the host:tport:* handshake.
		_, err := conn.Write([]byte("OKAY"))
		require.NoError(t, err)

		svc := readRequest(t, conn)
		assert.Equal(t, "shell:echo hi", svc)
		_, err = conn.Write([]byte{9, 0, 0, 0, 0, 0, 0, 0})
		require.NoError(t, err)
		_, err = conn.Write([]byte("OKAY"))
		require.NoError(t, err)
		_, _ = conn.Write([]byte("hi\n"))
	})}
	client := NewClient(server)

	socket, err := client.ConnectDevice(context.Background(), BySerial("emulator-5554"), "shell:echo hi")
	require.NoError(t, err)
	defer socket.Close()

	assert.EqualValues(t, 9, socket.TransportID)
	out, err := io.ReadAll(socket)
	require.NoError(t, err)
	assert.Equal(t, "hi\n", string(out))
}

func TestConnectSurfacesFailAsProtocolFailure(t *testing.T) {
	server := &fakeServer{script: func(conn net.Conn) {
		readRequest(t, conn)
		_, err := conn.Write([]byte("FAIL"))
		require.NoError(t, err)
		require.NoError(t, wire.WriteString(conn, "device not found"))
	}}
	client := NewClient(server)

	_, err := client.GetVersion(context.Background())
	require.Error(t, err)
	assert.True(t, adberr.Is(err, adberr.ProtocolFailure))
	assert.Contains(t, err.Error(), "device not found")
}

func TestConnectHonorsCancellation(t *testing.T) {
	unblock := make(chan struct{})
	server := &fakeServer{script: func(conn net.Conn) {
		readRequest(t, conn)
		<-unblock
	}}
	client := NewClient(server)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := client.connect("host:version", ConnectOptions{Context: ctx})
	require.Error(t, err)
	assert.True(t, adberr.Is(err, adberr.Aborted))
	close(unblock)
}
