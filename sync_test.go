package adbhost

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDentFrame(t *testing.T, conn net.Conn, name string, mode, size, mtime uint32) {
	t.Helper()
	_, err := conn.Write([]byte("DENT"))
	require.NoError(t, err)
	var fields [16]byte
	binary.LittleEndian.PutUint32(fields[0:4], mode)
	binary.LittleEndian.PutUint32(fields[4:8], size)
	binary.LittleEndian.PutUint32(fields[8:12], mtime)
	binary.LittleEndian.PutUint32(fields[12:16], uint32(len(name)))
	_, err = conn.Write(fields[:])
	require.NoError(t, err)
	_, err = conn.Write([]byte(name))
	require.NoError(t, err)
}

func TestDeviceListParsesDentEntries(t *testing.T) {
	server := &fakeServer{script: withVersionProbe(t, func(conn net.Conn, req string) {
		assert.Equal(t, "host:tport:serial:emulator-5554", req)
		_, err := conn.Write([]byte("OKAY"))
		require.NoError(t, err)

		svc := readRequest(t, conn)
		assert.Equal(t, "sync:", svc)
		_, err = conn.Write([]byte{0, 0, 0, 0, 0, 0, 0, 0})
		require.NoError(t, err)
		_, err = conn.Write([]byte("OKAY"))
		require.NoError(t, err)

		reqID, length, err := readSyncHeader(conn)
		require.NoError(t, err)
		assert.Equal(t, "LIST", reqID)
		path := make([]byte, length)
		_, err = io.ReadFull(conn, path)
		require.NoError(t, err)
		assert.Equal(t, "/sdcard", string(path))

		writeDentFrame(t, conn, "file.txt", unixDirType|0755, 1024, 1700000000)
		_, err = conn.Write([]byte("DONE"))
		require.NoError(t, err)
		_, err = conn.Write(make([]byte, 16))
		require.NoError(t, err)
	})}
	client := NewClient(server)
	dev := client.Device("emulator-5554")

	entries, err := dev.List(context.Background(), "/sdcard")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "file.txt", entries[0].Name)
	assert.EqualValues(t, 1024, entries[0].Size)
	assert.True(t, entries[0].IsDir())
}

func TestDevicePushWritesDataThenDone(t *testing.T) {
	server := &fakeServer{script: withVersionProbe(t, func(conn net.Conn, req string) {
		assert.Equal(t, "host:tport:serial:emulator-5554", req)
		_, err := conn.Write([]byte("OKAY"))
		require.NoError(t, err)

		svc := readRequest(t, conn)
		assert.Equal(t, "sync:", svc)
		_, err = conn.Write([]byte{0, 0, 0, 0, 0, 0, 0, 0})
		require.NoError(t, err)
		_, err = conn.Write([]byte("OKAY"))
		require.NoError(t, err)

		id, length, err := readSyncHeader(conn)
		require.NoError(t, err)
		assert.Equal(t, "SEND", id)
		header := make([]byte, length)
		_, err = io.ReadFull(conn, header)
		require.NoError(t, err)
		assert.Equal(t, "/sdcard/out.bin,436", string(header))

		id, length, err = readSyncHeader(conn)
		require.NoError(t, err)
		assert.Equal(t, "DATA", id)
		payload := make([]byte, length)
		_, err = io.ReadFull(conn, payload)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(payload))

		id, _, err = readSyncHeader(conn)
		require.NoError(t, err)
		assert.Equal(t, "DONE", id)

		_, err = conn.Write([]byte("OKAY"))
		require.NoError(t, err)
		_, err = conn.Write([]byte{0, 0, 0, 0})
		require.NoError(t, err)
	})}
	client := NewClient(server)
	dev := client.Device("emulator-5554")

	err := dev.Push(context.Background(), bytes.NewBufferString("hello"), "/sdcard/out.bin", time.Unix(1700000000, 0))
	require.NoError(t, err)
}
