package adbhost

// Banner is the capability tuple for a bound device: product/model/device
// are best-effort (absent if the device raced out of the devices-l
// listing between resolving the transport id and reading it back),
// Features is the authoritative capability set.
type Banner struct {
	Product  string
	Model    string
	Device   string
	Features []string
}

// Transport is the value CreateTransport hands back: everything the
// device-packet layer (out of scope here) needs to address a specific
// bound device, plus a backpointer to the Client it came from so that
// layer can open further service sockets against the same server.
type Transport struct {
	client      *Client
	Serial      string
	Banner      Banner
	TransportID uint64
}

// Client returns the Client this Transport was created from.
func (t Transport) Client() *Client { return t.client }
