package telemetry

import (
	"io"
	"sort"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Port is the minimal serial port surface the reader needs.
type Port interface {
	io.ReadWriteCloser
	// SetReadTimeout bounds each Read. A timed-out Read returns (0, nil).
	SetReadTimeout(t time.Duration) error
}

// Opener opens the port at path.
type Opener func(path string, baud int) (Port, error)

// SerialOpener opens a real serial port, 8N1.
func SerialOpener(path string, baud int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// PortInfo describes an enumerated port.
type PortInfo struct {
	Name    string `json:"name"`
	Product string `json:"product,omitempty"`
	IsUSB   bool   `json:"is_usb"`
	VID     string `json:"vid,omitempty"`
	PID     string `json:"pid,omitempty"`
	Serial  string `json:"serial_number,omitempty"`
}

// Lister enumerates available ports.
type Lister func() ([]PortInfo, error)

// SerialLister enumerates ports with the platform enumerator.
func SerialLister() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	out := make([]PortInfo, 0, len(details))
	for _, d := range details {
		out = append(out, PortInfo{
			Name:    d.Name,
			Product: d.Product,
			IsUSB:   d.IsUSB,
			VID:     d.VID,
			PID:     d.PID,
			Serial:  d.SerialNumber,
		})
	}
	return out, nil
}

// Keywords and USB vendor ids of common microcontroller serial bridges.
var (
	bridgeKeywords = []string{"arduino", "ch340", "ch341", "cp210", "ft232", "usb serial"}
	bridgeVIDs     = map[string]bool{
		"2341": true, // Arduino
		"2a03": true, // Arduino.org
		"1a86": true, // QinHeng CH34x
		"10c4": true, // Silicon Labs CP210x
		"0403": true, // FTDI
	}
)

// LooksLikeMicrocontroller reports whether p matches a known bridge.
func LooksLikeMicrocontroller(p PortInfo) bool {
	if bridgeVIDs[strings.ToLower(p.VID)] {
		return true
	}
	text := strings.ToLower(p.Product + " " + p.Name)
	for _, kw := range bridgeKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// OrderCandidates returns ports in probe order: known bridges first, then
// other USB ports, then the rest, each group sorted by name.
func OrderCandidates(ports []PortInfo) []PortInfo {
	rank := func(p PortInfo) int {
		switch {
		case LooksLikeMicrocontroller(p):
			return 0
		case p.IsUSB:
			return 1
		default:
			return 2
		}
	}
	out := append([]PortInfo(nil), ports...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank(out[i]), rank(out[j])
		if ri != rj {
			return ri < rj
		}
		return out[i].Name < out[j].Name
	})
	return out
}
