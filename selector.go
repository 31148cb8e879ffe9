package adbhost

import (
	"fmt"

	"github.com/go-adbhost/adbhost/internal/adberr"
)

// SelectorKind discriminates the five DeviceSelector variants.
type SelectorKind int

const (
	// SelectorNone selects "any" device — the zero value.
	SelectorNone SelectorKind = iota
	SelectorTransportID
	SelectorSerial
	SelectorUSB
	SelectorTCP
)

// DeviceSelector is a tagged variant: exactly one of a transport id, a
// serial, "usb", "tcp", or "none" (any). Build one with ByTransportID,
// BySerial, ByUSB, ByTCP, or use the zero value for "any".
type DeviceSelector struct {
	Kind        SelectorKind
	TransportID uint64
	Serial      string
}

// ByTransportID selects the device bound to a known transport id.
func ByTransportID(id uint64) DeviceSelector {
	return DeviceSelector{Kind: SelectorTransportID, TransportID: id}
}

// BySerial selects a device by its serial number.
func BySerial(serial string) DeviceSelector {
	return DeviceSelector{Kind: SelectorSerial, Serial: serial}
}

// ByUSB selects the sole USB-attached device.
func ByUSB() DeviceSelector {
	return DeviceSelector{Kind: SelectorUSB}
}

// ByTCP selects the sole TCP-attached (ADB-over-Wi-Fi) device.
func ByTCP() DeviceSelector {
	return DeviceSelector{Kind: SelectorTCP}
}

func (s DeviceSelector) valid() bool {
	switch s.Kind {
	case SelectorNone, SelectorTransportID, SelectorSerial, SelectorUSB, SelectorTCP:
		return true
	default:
		return false
	}
}

// formatService builds the host: service prefix for a one-shot command
// directed at the selector's device.
func formatService(sel DeviceSelector, command string) (string, error) {
	if !sel.valid() {
		return "", adberr.Errorf(adberr.InvalidSelector, "unrecognised selector kind %d", sel.Kind)
	}
	switch sel.Kind {
	case SelectorNone:
		return "host:" + command, nil
	case SelectorTransportID:
		return fmt.Sprintf("host-transport-id:%d:%s", sel.TransportID, command), nil
	case SelectorSerial:
		return fmt.Sprintf("host-serial:%s:%s", sel.Serial, command), nil
	case SelectorUSB:
		return "host-usb:" + command, nil
	case SelectorTCP:
		return "host-local:" + command, nil
	default:
		return "", adberr.Errorf(adberr.InvalidSelector, "unrecognised selector kind %d", sel.Kind)
	}
}

// switchService builds the bind-phase service used inside ConnectDevice to
// switch the current connection onto the selector's device. knownTransportID
// reports whether the transport id is already known from the selector
// itself (true only for SelectorTransportID), in which case ConnectDevice
// must skip the handshake's 8-byte transport-id read.
func switchService(sel DeviceSelector) (service string, knownTransportID bool, err error) {
	if !sel.valid() {
		return "", false, adberr.Errorf(adberr.InvalidSelector, "unrecognised selector kind %d", sel.Kind)
	}
	switch sel.Kind {
	case SelectorNone:
		return "host:tport:any", false, nil
	case SelectorTransportID:
		return fmt.Sprintf("host:transport-id:%d", sel.TransportID), true, nil
	case SelectorSerial:
		return fmt.Sprintf("host:tport:serial:%s", sel.Serial), false, nil
	case SelectorUSB:
		return "host:tport:usb", false, nil
	case SelectorTCP:
		return "host:tport:local", false, nil
	default:
		return "", false, adberr.Errorf(adberr.InvalidSelector, "unrecognised selector kind %d", sel.Kind)
	}
}

// waitForType maps a selector to the {type} segment of
// wait-for-{type}-{state}.
func waitForType(sel DeviceSelector) (string, error) {
	if !sel.valid() {
		return "", adberr.Errorf(adberr.InvalidSelector, "unrecognised selector kind %d", sel.Kind)
	}
	switch sel.Kind {
	case SelectorUSB:
		return "usb", nil
	case SelectorTCP:
		return "local", nil
	default:
		return "any", nil
	}
}
