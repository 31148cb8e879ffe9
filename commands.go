package adbhost

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-adbhost/adbhost/internal/adberr"
	"github.com/go-adbhost/adbhost/internal/bufreader"
	"github.com/go-adbhost/adbhost/internal/wire"
)

func opts(ctx context.Context) ConnectOptions {
	return ConnectOptions{Context: ctx}
}

// GetVersion asks the server for its protocol version. The response is
// itself a hex-in-hex encoding: one string frame whose content is 4 ASCII
// hex digits. This double encoding is historical and preserved verbatim.
func (c *Client) GetVersion(ctx context.Context) (uint32, error) {
	o := opts(ctx)
	conn, err := c.connect("host:version", o)
	if err != nil {
		return 0, err
	}
	defer closeQuietly(conn, "GetVersion")

	s, err := readString(bufreader.New(conn.Reader), o)
	if err != nil {
		return 0, err
	}
	version, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, adberr.Wrap(adberr.DecodeError, err, "parse version %q", s)
	}
	return uint32(version), nil
}

// ValidateVersion fails with VersionMismatch unless the server's protocol
// version equals ProtocolVersion. Unlike ConnectDevice, other commands do
// not call this first — they remain usable as diagnostic probes against a
// mismatched server.
func (c *Client) ValidateVersion(ctx context.Context) error {
	server, err := c.GetVersion(ctx)
	if err != nil {
		return err
	}
	if server != ProtocolVersion {
		return adberr.VersionMismatchFor(server, ProtocolVersion)
	}
	return nil
}

// KillServer tells the server to quit immediately. Close errors are
// swallowed: the server is expected to tear the connection down itself.
func (c *Client) KillServer(ctx context.Context) error {
	conn, err := c.connect("host:kill", opts(ctx))
	if err != nil {
		return err
	}
	closeQuietly(conn, "KillServer")
	return nil
}

// GetServerFeatures returns the server's comma-separated feature list.
func (c *Client) GetServerFeatures(ctx context.Context) ([]string, error) {
	o := opts(ctx)
	conn, err := c.connect("host:host-features", o)
	if err != nil {
		return nil, err
	}
	defer closeQuietly(conn, "GetServerFeatures")

	s, err := readString(bufreader.New(conn.Reader), o)
	if err != nil {
		return nil, err
	}
	return splitFeatures(s), nil
}

func splitFeatures(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// DeviceInfo is one parsed entry from a devices-l listing.
type DeviceInfo struct {
	Serial      string
	Product     string
	Model       string
	Device      string
	TransportID uint64
}

// GetDevices lists attached devices via host:devices-l. Entries whose
// status was not "device" are never returned; every returned entry has a
// non-zero TransportID.
func (c *Client) GetDevices(ctx context.Context) ([]DeviceInfo, error) {
	o := opts(ctx)
	conn, err := c.connect("host:devices-l", o)
	if err != nil {
		return nil, err
	}
	defer closeQuietly(conn, "GetDevices")

	s, err := readString(bufreader.New(conn.Reader), o)
	if err != nil {
		return nil, err
	}
	entries, err := wire.ParseDevicesL(s)
	if err != nil {
		return nil, err
	}
	out := make([]DeviceInfo, len(entries))
	for i, e := range entries {
		out[i] = DeviceInfo{
			Serial:      e.Serial,
			Product:     e.Product,
			Model:       e.Model,
			Device:      e.Device,
			TransportID: e.TransportID,
		}
	}
	return out, nil
}

// ListDeviceSerials lists attached devices' serial numbers, taken from the
// GetDevices (host:devices-l) listing, so only entries whose status is
// "device" are included.
func (c *Client) ListDeviceSerials(ctx context.Context) ([]string, error) {
	devices, err := c.GetDevices(ctx)
	if err != nil {
		return nil, err
	}
	serials := make([]string, len(devices))
	for i, d := range devices {
		serials[i] = d.Serial
	}
	return serials, nil
}

// DeviceFeatures is the result of GetDeviceFeatures: the transport id the
// bind handshake resolved, plus the device's comma-separated feature set.
type DeviceFeatures struct {
	TransportID uint64
	Features    []string
}

// GetDeviceFeatures binds to the selected device and reads its feature
// list.
func (c *Client) GetDeviceFeatures(ctx context.Context, sel DeviceSelector) (DeviceFeatures, error) {
	socket, err := c.ConnectDevice(ctx, sel, "host:features")
	if err != nil {
		return DeviceFeatures{}, err
	}
	defer closeSocketQuietly(socket, "GetDeviceFeatures")

	s, err := readString(bufreader.New(socket.conn.Reader), opts(ctx))
	if err != nil {
		return DeviceFeatures{}, err
	}
	return DeviceFeatures{TransportID: socket.TransportID, Features: splitFeatures(s)}, nil
}

func closeSocketQuietly(s *ServiceSocket, op string) {
	if err := s.Close(); err != nil {
		logger.Printf("close after %s: %v", op, err)
	}
}

// ConnectDevice performs the four-step device-binding handshake and
// returns a ServiceSocket speaking service against the selected device.
// ValidateVersion is called first.
func (c *Client) ConnectDevice(ctx context.Context, sel DeviceSelector, service string) (*ServiceSocket, error) {
	if err := c.ValidateVersion(ctx); err != nil {
		return nil, err
	}

	bind, knownTransportID, err := switchService(sel)
	if err != nil {
		return nil, err
	}

	o := opts(ctx)
	conn, err := c.connect(bind, o)
	if err != nil {
		return nil, err
	}

	if err := wire.WriteString(conn, service); err != nil {
		conn.Close()
		return nil, err
	}

	br := bufreader.New(conn.Reader)

	var transportID uint64
	if !knownTransportID {
		id, err := wire.ReadTransportID(br)
		if err != nil {
			conn.Close()
			return nil, err
		}
		transportID = id
	} else {
		transportID = sel.TransportID
	}

	if err := readAck(br, o); err != nil {
		conn.Close()
		return nil, err
	}

	bound := conn.WithReader(br.Release())
	return &ServiceSocket{conn: bound, TransportID: transportID, Service: service}, nil
}

// WaitState is the device lifecycle transition WaitFor waits for.
type WaitState string

const (
	WaitForDevice     WaitState = "device"
	WaitForDisconnect WaitState = "disconnect"
)

// WaitFor blocks until the selected device reaches state. The server sends
// OKAY only once the condition holds, so resolution of the underlying
// connect is itself the success signal; ctx is honored throughout the
// wait.
func (c *Client) WaitFor(ctx context.Context, sel DeviceSelector, state WaitState) error {
	typ, err := waitForType(sel)
	if err != nil {
		return err
	}
	service, err := formatService(sel, fmt.Sprintf("wait-for-%s-%s", typ, state))
	if err != nil {
		return err
	}
	conn, err := c.connect(service, opts(ctx))
	if err != nil {
		return err
	}
	closeQuietly(conn, "WaitFor")
	return nil
}

// CreateTransport assembles a Transport for the selected device: it reads
// the device's features (binding in the process) and cross-references the
// devices-l listing for serial/banner fields. If the device raced out of
// the listing, Serial defaults to "" and the banner carries no
// product/model/device — only the feature set is authoritative.
func (c *Client) CreateTransport(ctx context.Context, sel DeviceSelector) (Transport, error) {
	features, err := c.GetDeviceFeatures(ctx, sel)
	if err != nil {
		return Transport{}, err
	}

	devices, err := c.GetDevices(ctx)
	if err != nil {
		return Transport{}, err
	}

	var serial string
	var banner Banner
	for _, d := range devices {
		if d.TransportID == features.TransportID {
			serial = d.Serial
			banner = Banner{Product: d.Product, Model: d.Model, Device: d.Device}
			break
		}
	}
	banner.Features = features.Features

	return Transport{
		client:      c,
		Serial:      serial,
		Banner:      banner,
		TransportID: features.TransportID,
	}, nil
}

// ConnectTCPDevice pairs with a device over ADB-over-Wi-Fi via
// host:connect:host:port.
func (c *Client) ConnectTCPDevice(ctx context.Context, host string, port int) error {
	conn, err := c.connect(fmt.Sprintf("host:connect:%s:%d", host, port), opts(ctx))
	if err != nil {
		return err
	}
	closeQuietly(conn, "ConnectTCPDevice")
	return nil
}

// DisconnectTCPDevice tears down a prior ConnectTCPDevice pairing via
// host:disconnect:host:port.
func (c *Client) DisconnectTCPDevice(ctx context.Context, host string, port int) error {
	conn, err := c.connect(fmt.Sprintf("host:disconnect:%s:%d", host, port), opts(ctx))
	if err != nil {
		return err
	}
	closeQuietly(conn, "DisconnectTCPDevice")
	return nil
}

// FormatDeviceService is the pure formatter exposed in the consumer API
// surface: format_device_service(selector, command).
func FormatDeviceService(sel DeviceSelector, command string) (string, error) {
	return formatService(sel, command)
}

// ForwardList lists every forward registered across every device, via
// host:list-forward. Device.ForwardList filters this down to one serial.
func (c *Client) ForwardList(ctx context.Context) ([]DeviceForward, error) {
	o := opts(ctx)
	conn, err := c.connect("host:list-forward", o)
	if err != nil {
		return nil, err
	}
	defer closeQuietly(conn, "ForwardList")

	s, err := readString(bufreader.New(conn.Reader), o)
	if err != nil {
		return nil, err
	}

	var out []DeviceForward
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			continue
		}
		out = append(out, DeviceForward{Serial: fields[0], Local: fields[1], Remote: fields[2]})
	}
	return out, nil
}
