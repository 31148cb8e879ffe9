package adbhost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-adbhost/adbhost/internal/bufreader"
)

// DeviceFileInfo describes one entry of a sync LIST response.
type DeviceFileInfo struct {
	Name         string
	Mode         os.FileMode
	Size         uint32
	LastModified time.Time
}

// unixFileTypeMask and unixDirType are the POSIX st_mode bits the sync
// protocol packs verbatim into a DeviceFileInfo's Mode.
const (
	unixFileTypeMask = 0170000
	unixDirType      = 0040000
)

// IsDir reports whether the entry is a directory, per the S_IFDIR bits the
// sync protocol packs into Mode.
func (info DeviceFileInfo) IsDir() bool {
	return uint32(info.Mode)&unixFileTypeMask == unixDirType
}

// DefaultFileMode is used by PushFile when the caller doesn't specify one.
const DefaultFileMode = os.FileMode(0664)

// DeviceState is the connection state get-state reports for a device.
type DeviceState string

const (
	StateUnknown      DeviceState = "UNKNOWN"
	StateOnline       DeviceState = "online"
	StateOffline      DeviceState = "offline"
	StateDisconnected DeviceState = "disconnected"
)

var deviceStateStrings = map[string]DeviceState{
	"":        StateDisconnected,
	"offline": StateOffline,
	"device":  StateOnline,
}

func deviceStateConv(k string) DeviceState {
	if state, ok := deviceStateStrings[k]; ok {
		return state
	}
	return StateUnknown
}

// Port is a Forward/Reverse endpoint string, e.g. "tcp:5555".
type Port = string

// DeviceForward is one entry of a forward/reverse listing.
type DeviceForward struct {
	Serial string
	Local  string
	Remote string
}

// TcpPort builds a tcp:<port> endpoint string for Forward/Reverse.
func TcpPort(port int) Port { return fmt.Sprintf("tcp:%d", port) }

// LocalAbstractPort builds a localabstract:<path> endpoint string for
// Android's abstract UNIX domain socket namespace.
func LocalAbstractPort(path string) Port { return fmt.Sprintf("localabstract:%s", path) }

// AdbDaemonPort is the default adbd TCP port used by EnableAdbOverTCP.
const AdbDaemonPort = 5555

// Device communicates with one Android device selected by serial, via a
// Client bound to an ADB server. Devices are produced by Client.Device.
type Device struct {
	client *Client
	serial string
	attrs  map[string]string
}

// Device returns a Device handle for serial. No I/O happens until a method
// on the returned Device is called.
func (c *Client) Device(serial string) *Device {
	return &Device{client: c, serial: serial, attrs: map[string]string{}}
}

// HasAttribute reports whether the device's cached devices-l attributes
// (populated by RefreshAttributes) include key.
func (d *Device) HasAttribute(key string) bool {
	_, ok := d.attrs[key]
	return ok
}

// RefreshAttributes re-populates the device's cached product/model/device
// attributes from a fresh devices-l listing.
func (d *Device) RefreshAttributes(ctx context.Context) error {
	devices, err := d.client.GetDevices(ctx)
	if err != nil {
		return err
	}
	for _, info := range devices {
		if info.Serial != d.serial {
			continue
		}
		d.attrs = map[string]string{
			"product":      info.Product,
			"model":        info.Model,
			"device":       info.Device,
			"transport_id": strconv.FormatUint(info.TransportID, 10),
		}
		return nil
	}
	return nil
}

func (d *Device) Product() (string, error) {
	if v, ok := d.attrs["product"]; ok && v != "" {
		return v, nil
	}
	return "", errors.New("does not have attribute: product")
}

func (d *Device) Model() (string, error) {
	if v, ok := d.attrs["model"]; ok && v != "" {
		return v, nil
	}
	return "", errors.New("does not have attribute: model")
}

func (d *Device) DeviceInfo() map[string]string {
	return d.attrs
}

// Serial returns the device's serial number as given to Client.Device.
func (d *Device) Serial() string {
	return d.serial
}

func (d *Device) selector() DeviceSelector {
	return BySerial(d.serial)
}

// State queries the device's connection state via
// host-serial:<serial>:get-state.
func (d *Device) State(ctx context.Context) (DeviceState, error) {
	resp, err := d.getAttribute(ctx, "get-state")
	if err != nil {
		return StateUnknown, err
	}
	return deviceStateConv(resp), nil
}

// DevicePath queries host-serial:<serial>:get-devpath.
func (d *Device) DevicePath(ctx context.Context) (string, error) {
	return d.getAttribute(ctx, "get-devpath")
}

// Forward sets up local-to-device port forwarding via
// host-serial:<serial>:forward[:norebind]:<local>;<remote>.
func (d *Device) Forward(ctx context.Context, local, remote Port, noRebind ...bool) error {
	var command string
	if len(noRebind) != 0 && noRebind[0] {
		command = fmt.Sprintf("forward:norebind:%s;%s", local, remote)
	} else {
		command = fmt.Sprintf("forward:%s;%s", local, remote)
	}
	return d.hostCommandAck(ctx, command)
}

// ForwardList lists this device's active forwards by filtering
// Client.ForwardList down to this device's serial.
func (d *Device) ForwardList(ctx context.Context) ([]DeviceForward, error) {
	all, err := d.client.ForwardList(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]DeviceForward, 0, len(all))
	for _, f := range all {
		if f.Serial == d.serial {
			out = append(out, f)
		}
	}
	return out, nil
}

// ForwardKill removes one forward via
// host-serial:<serial>:killforward:<local>.
func (d *Device) ForwardKill(ctx context.Context, local Port) error {
	return d.hostCommandAck(ctx, fmt.Sprintf("killforward:%s", local))
}

// RunShellCommand runs cmd (with args joined to it by single spaces; args
// are not quoted or escaped) and returns its combined output.
func (d *Device) RunShellCommand(ctx context.Context, cmd string, args ...string) (string, error) {
	raw, err := d.RunShellCommandWithBytes(ctx, cmd, args...)
	return string(raw), err
}

// RunShellCommandWithBytes is RunShellCommand without the string
// conversion.
func (d *Device) RunShellCommandWithBytes(ctx context.Context, cmd string, args ...string) ([]byte, error) {
	if len(args) > 0 {
		cmd = fmt.Sprintf("%s %s", cmd, strings.Join(args, " "))
	}
	if strings.TrimSpace(cmd) == "" {
		return nil, errors.New("adb shell: command cannot be empty")
	}

	socket, err := d.client.ConnectDevice(ctx, d.selector(), fmt.Sprintf("shell:%s", cmd))
	if err != nil {
		return nil, err
	}
	defer closeSocketQuietly(socket, "RunShellCommand")

	return io.ReadAll(socket)
}

// RunShellCommandAsync starts a long-running shell command on the device
// and returns a Shell handle that streams combined stdout/stderr and can
// forcibly stop the command via Shell.Close (similar to Ctrl+C).
func (d *Device) RunShellCommandAsync(ctx context.Context, cmd string, args ...string) (*Shell, error) {
	if len(args) > 0 {
		cmd = fmt.Sprintf("%s %s", cmd, strings.Join(args, " "))
	}
	if strings.TrimSpace(cmd) == "" {
		return nil, errors.New("adb shell: command cannot be empty")
	}

	socket, err := d.client.ConnectDevice(ctx, d.selector(), fmt.Sprintf("shell,v2,raw:%s", cmd))
	if err != nil {
		return nil, err
	}

	shell := &Shell{socket: socket}
	shell.Reader = newShellReader(socket)
	return shell, nil
}

// EnableAdbOverTCP switches adbd to listen on TCP, via
// host-serial:<serial>:tcpip:<port>.
func (d *Device) EnableAdbOverTCP(ctx context.Context, port ...int) error {
	p := AdbDaemonPort
	if len(port) != 0 {
		p = port[0]
	}
	return d.hostCommandAck(ctx, fmt.Sprintf("tcpip:%d", p))
}

// Root restarts adbd as root via a device-bound root: service.
func (d *Device) Root(ctx context.Context) (string, error) {
	return d.runUntilClose(ctx, "root:")
}

// Unroot restarts adbd as non-root via a device-bound unroot: service.
func (d *Device) Unroot(ctx context.Context) (string, error) {
	return d.runUntilClose(ctx, "unroot:")
}

func (d *Device) runUntilClose(ctx context.Context, service string) (string, error) {
	socket, err := d.client.ConnectDevice(ctx, d.selector(), service)
	if err != nil {
		return "", err
	}
	defer closeSocketQuietly(socket, service)
	raw, err := io.ReadAll(socket)
	return string(raw), err
}

// Reverse sets up device-to-host reverse port forwarding via a device-
// bound reverse:forward[:norebind]:<local>;<remote> service.
func (d *Device) Reverse(ctx context.Context, local, remote Port, noRebind ...bool) error {
	var command string
	if len(noRebind) != 0 && noRebind[0] {
		command = fmt.Sprintf("reverse:forward:norebind:%s;%s", local, remote)
	} else {
		command = fmt.Sprintf("reverse:forward:%s;%s", local, remote)
	}
	_, err := d.runUntilClose(ctx, command)
	return err
}

// ReverseList lists reverse forwards registered by this device.
func (d *Device) ReverseList(ctx context.Context) ([]DeviceForward, error) {
	raw, err := d.runUntilClose(ctx, "reverse:list-forward")
	if err != nil {
		return nil, err
	}
	var out []DeviceForward
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch len(fields) {
		case 2:
			out = append(out, DeviceForward{Serial: "host", Local: fields[0], Remote: fields[1]})
		case 3:
			out = append(out, DeviceForward{Serial: fields[0], Local: fields[1], Remote: fields[2]})
		}
	}
	return out, nil
}

// ReverseKill removes one reverse forward via reverse:killforward:<local>.
func (d *Device) ReverseKill(ctx context.Context, local Port) error {
	_, err := d.runUntilClose(ctx, fmt.Sprintf("reverse:killforward:%s", local))
	return err
}

// ReverseKillAll removes every reverse forward on this device.
func (d *Device) ReverseKillAll(ctx context.Context) error {
	_, err := d.runUntilClose(ctx, "reverse:killforward-all")
	return err
}

// getAttribute issues a one-shot host-serial:<serial>:<attr> request and
// reads its single string-frame response (get-state/get-devpath), same
// shape as hostCommandAck but with a response payload instead of a bare
// ack.
func (d *Device) getAttribute(ctx context.Context, attr string) (string, error) {
	service, err := formatService(d.selector(), attr)
	if err != nil {
		return "", err
	}
	o := opts(ctx)
	conn, err := d.client.connect(service, o)
	if err != nil {
		return "", err
	}
	defer closeQuietly(conn, attr)
	return readString(bufreader.New(conn.Reader), o)
}

// hostCommandAck issues command against this device's host-serial prefix
// and expects only an ack, no response payload (forward/killforward/tcpip).
func (d *Device) hostCommandAck(ctx context.Context, command string) error {
	service, err := formatService(d.selector(), command)
	if err != nil {
		return err
	}
	conn, err := d.client.connect(service, opts(ctx))
	if err != nil {
		return err
	}
	closeQuietly(conn, command)
	return nil
}
