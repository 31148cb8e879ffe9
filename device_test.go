package adbhost

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceRefreshAttributesAndAccessors(t *testing.T) {
	server := &fakeServer{script: func(conn net.Conn) {
		readRequest(t, conn)
		writeOkayString(t, conn, "emulator-5554 device product:sdk model:Pixel_6 device:oriole transport_id:4\n")
	}}
	client := NewClient(server)
	dev := client.Device("emulator-5554")

	require.NoError(t, dev.RefreshAttributes(context.Background()))
	assert.True(t, dev.HasAttribute("model"))

	model, err := dev.Model()
	require.NoError(t, err)
	assert.Equal(t, "Pixel_6", model)

	product, err := dev.Product()
	require.NoError(t, err)
	assert.Equal(t, "sdk", product)
}

func TestDeviceForward(t *testing.T) {
	server := &fakeServer{script: func(conn net.Conn) {
		req := readRequest(t, conn)
		assert.Equal(t, "host-serial:emulator-5554:forward:tcp:6100;tcp:6100", req)
		_, err := conn.Write([]byte("OKAY"))
		require.NoError(t, err)
	}}
	client := NewClient(server)
	dev := client.Device("emulator-5554")

	err := dev.Forward(context.Background(), TcpPort(6100), TcpPort(6100))
	require.NoError(t, err)
}

func TestDeviceStateOnline(t *testing.T) {
	server := &fakeServer{script: func(conn net.Conn) {
		req := readRequest(t, conn)
		assert.Equal(t, "host-serial:emulator-5554:get-state", req)
		writeOkayString(t, conn, "device")
	}}
	client := NewClient(server)
	dev := client.Device("emulator-5554")

	state, err := dev.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateOnline, state)
}

func TestDeviceDevicePath(t *testing.T) {
	server := &fakeServer{script: func(conn net.Conn) {
		req := readRequest(t, conn)
		assert.Equal(t, "host-serial:emulator-5554:get-devpath", req)
		writeOkayString(t, conn, "usb:1-1")
	}}
	client := NewClient(server)
	dev := client.Device("emulator-5554")

	path, err := dev.DevicePath(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "usb:1-1", path)
}

func TestDeviceRunShellCommand(t *testing.T) {
	server := &fakeServer{script: withVersionProbe(t, func(conn net.Conn, req string) {
		assert.Equal(t, "host:tport:serial:emulator-5554", req)
		_, err := conn.Write([]byte("OKAY"))
		require.NoError(t, err)

		svc := readRequest(t, conn)
		assert.Equal(t, "shell:echo hello world", svc)
		_, err = conn.Write([]byte{0, 0, 0, 0, 0, 0, 0, 0})
		require.NoError(t, err)
		_, err = conn.Write([]byte("OKAY"))
		require.NoError(t, err)
		_, _ = conn.Write([]byte("hello world\n"))
	})}
	client := NewClient(server)
	dev := client.Device("emulator-5554")

	out, err := dev.RunShellCommand(context.Background(), "echo", "hello", "world")
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", out)
}
