package adbhost_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/go-adbhost/adbhost"
	"github.com/go-adbhost/adbhost/adbtcp"
)

func TestDevice_RunShellCommandAsync(t *testing.T) {
	ctx := context.Background()
	client := adbhost.NewClient(adbtcp.New("127.0.0.1:5037"))

	devices, err := client.GetDevices(ctx)
	if err != nil || len(devices) == 0 {
		t.Skip("no devices connected: ", err)
		return
	}

	dev := client.Device(devices[0].Serial)

	sh, err := dev.RunShellCommandAsync(ctx, "logcat")
	if err != nil {
		t.Fatal(err)
	}
	if sh == nil || sh.Reader == nil {
		t.Fatal("shell or reader is nil")
	}

	go func() { _, _ = io.Copy(io.Discard, sh.Reader) }()
	// Let it run briefly, then close (simulate Ctrl+C)
	time.Sleep(500 * time.Millisecond)
	if err := sh.Close(); err != nil {
		t.Fatal(err)
	}
}
