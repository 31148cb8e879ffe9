// Package wire implements the ADB server protocol's framing codec: the
// 4-hex-digit length prefixes, UTF-8 string frames, OKAY/FAIL acknowledgement
// frames, the little-endian transport-id codec used by host:tport:*, and the
// devices-l listing parser.
package wire

import (
	"encoding/binary"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-adbhost/adbhost/internal/adberr"
	"github.com/go-adbhost/adbhost/internal/bufreader"
)

// MaxPayload is the largest string frame the 4-hex-digit length prefix can
// express.
const MaxPayload = 0xFFFF

// PutHex4 encodes n as four lower-case ASCII hex digits, big-endian nibble
// order.
func PutHex4(n uint16) [4]byte {
	const digits = "0123456789abcdef"
	var out [4]byte
	out[0] = digits[(n>>12)&0xF]
	out[1] = digits[(n>>8)&0xF]
	out[2] = digits[(n>>4)&0xF]
	out[3] = digits[n&0xF]
	return out
}

// ParseHex4 decodes four ASCII hex digits (either case) into their unsigned
// value.
func ParseHex4(b []byte) (uint16, error) {
	if len(b) != 4 {
		return 0, adberr.Errorf(adberr.DecodeError, "hex4 length %d != 4", len(b))
	}
	n, err := strconv.ParseUint(string(b), 16, 16)
	if err != nil {
		return 0, adberr.Wrap(adberr.DecodeError, err, "invalid hex4 %q", string(b))
	}
	return uint16(n), nil
}

// WriteString writes one string frame: a 4-hex-digit length prefix followed
// by the UTF-8 payload, as a single contiguous write.
func WriteString(w io.Writer, s string) error {
	if !utf8.ValidString(s) {
		return adberr.Errorf(adberr.DecodeError, "payload is not valid UTF-8")
	}
	if len(s) > MaxPayload {
		return adberr.Errorf(adberr.DecodeError, "payload length %d exceeds %d", len(s), MaxPayload)
	}
	prefix := PutHex4(uint16(len(s)))
	buf := make([]byte, 0, 4+len(s))
	buf = append(buf, prefix[:]...)
	buf = append(buf, s...)
	_, err := w.Write(buf)
	if err != nil {
		return adberr.Wrap(adberr.TransportError, err, "write string frame")
	}
	return nil
}

// ReadString reads one string frame from r: a 4-byte hex length prefix
// followed by that many bytes, decoded as UTF-8.
func ReadString(r *bufreader.Reader) (string, error) {
	head, err := r.ReadExactly(4)
	if err != nil {
		return "", err
	}
	n, err := ParseHex4(head)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	body, err := r.ReadExactly(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(body) {
		return "", adberr.Errorf(adberr.DecodeError, "string frame is not valid UTF-8")
	}
	return string(body), nil
}

// ReadAck reads a 4-byte acknowledgement frame. OKAY succeeds with nil;
// FAIL reads a following string frame as the reason and fails with
// ProtocolFailure; anything else fails with UnexpectedResponse.
func ReadAck(r *bufreader.Reader) error {
	head, err := r.ReadExactly(4)
	if err != nil {
		return err
	}
	switch string(head) {
	case "OKAY":
		return nil
	case "FAIL":
		reason, rerr := ReadString(r)
		if rerr != nil {
			return rerr
		}
		return adberr.Errorf(adberr.ProtocolFailure, "%s", reason)
	default:
		return adberr.Errorf(adberr.UnexpectedResponse, "unexpected ack %q", string(head))
	}
}

// ReadTransportID reads the 8-byte little-endian transport id emitted by
// host:tport:* before its ack.
func ReadTransportID(r *bufreader.Reader) (uint64, error) {
	b, err := r.ReadExactly(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// DeviceEntry is one parsed line of a devices-l response.
type DeviceEntry struct {
	Serial      string
	Status      string
	Product     string
	Model       string
	Device      string
	TransportID uint64
}

// ParseDevicesL parses a devices-l payload: newline-separated lines, each
// "SERIAL STATUS[ key:value]...". Lines whose status isn't "device" are
// skipped. A kept line lacking transport_id fails with MissingTransportID.
func ParseDevicesL(payload string) ([]DeviceEntry, error) {
	var out []DeviceEntry
	for _, line := range strings.Split(payload, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		serial, status := fields[0], fields[1]
		if status != "device" {
			continue
		}
		entry := DeviceEntry{Serial: serial, Status: status}
		haveTransportID := false
		for _, tok := range fields[2:] {
			key, value, ok := strings.Cut(tok, ":")
			if !ok {
				continue
			}
			switch key {
			case "product":
				entry.Product = value
			case "model":
				entry.Model = value
			case "device":
				entry.Device = value
			case "transport_id":
				id, err := strconv.ParseUint(value, 10, 64)
				if err != nil {
					return nil, adberr.Wrap(adberr.DecodeError, err, "parse transport_id %q", value)
				}
				entry.TransportID = id
				haveTransportID = true
			}
		}
		if !haveTransportID {
			return nil, adberr.MissingTransportIDFor(serial)
		}
		out = append(out, entry)
	}
	return out, nil
}
