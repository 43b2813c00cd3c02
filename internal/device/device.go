// Package device locates the sensor board on the USB serial bus and parses
// the CSV frame stream it emits.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// ErrDeviceNotFound is returned when no serial port matches the configured
// USB VID/PID.
var ErrDeviceNotFound = errors.New("device not found")

// Conn is the subset of a serial port the reader needs. Satisfied by
// go.bug.st/serial.Port and by in-memory fakes in tests.
type Conn interface {
	io.Reader
	io.Closer
	ResetInputBuffer() error
}

// PortInfo describes one enumerated serial port.
type PortInfo struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

// Matches reports whether the port carries the given USB VID/PID. The
// comparison is case-insensitive since platforms disagree on hex casing.
func (p PortInfo) Matches(vid, pid string) bool {
	return p.IsUSB && strings.EqualFold(p.VID, vid) && strings.EqualFold(p.PID, pid)
}

// ListPorts enumerates all serial ports with USB details.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	return ports, nil
}

// Detect scans serial ports for the given USB VID/PID and returns the port
// name of the first match.
func Detect(vid, pid string) (string, error) {
	ports, err := ListPorts()
	if err != nil {
		return "", err
	}
	for _, p := range ports {
		if p.Matches(vid, pid) {
			return p.Name, nil
		}
	}
	return "", fmt.Errorf("%w: no serial port with vid=%s pid=%s", ErrDeviceNotFound, vid, pid)
}

// Open opens the named serial port at the given baud rate. The read timeout
// bounds each blocking read so callers can observe context cancellation.
func Open(name string, baud int, readTimeout time.Duration) (Conn, error) {
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", name, err)
	}
	return port, nil
}

// OpenWithRetry opens the port with exponential backoff until it succeeds,
// the backoff gives up, or the context is cancelled. Used by service mode
// where the board may be plugged in after startup.
func OpenWithRetry(ctx context.Context, log *slog.Logger, name string, baud int, readTimeout, maxElapsed time.Duration) (Conn, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxElapsed

	var conn Conn
	op := func() error {
		var err error
		conn, err = Open(name, baud, readTimeout)
		if err != nil {
			log.Debug("Serial open failed, retrying", "port", name, "error", err)
			return err
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return conn, nil
}
