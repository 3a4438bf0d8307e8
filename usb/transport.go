// Package usb contains the transport capability the mass storage stack is built on.
// A Transport moves raw bytes over the bulk endpoints of one claimed
// mass storage interface. Device enumeration and permission handling are
// left to the caller.
package usb

import (
	"errors"
	"time"
)

// DefaultTimeout is the per transfer timeout used when a Config does not specify one.
const DefaultTimeout = 5 * time.Second

// These errors may occur while talking to a device.
var (
	ErrTransport = errors.New("bulk transfer failed")
	ErrClosed    = errors.New("transport is closed")
)

// Transport provides raw bulk transfers to a device.
// Every call blocks until the transfer is done or the fixed timeout of the
// implementation is hit. Closing the transport fails all transfers in flight.
//
// Generated mock using mockgen:
//  mockgen -source=transport.go -destination=transport_mock.go -package usb
type Transport interface {
	// BulkOut sends p to the bulk OUT endpoint and returns the number of bytes sent.
	BulkOut(p []byte) (int, error)
	// BulkIn receives into p from the bulk IN endpoint and returns the number of bytes received.
	BulkIn(p []byte) (int, error)
	Close() error
}

// LUNQuerier is implemented by transports which can issue class specific control requests.
type LUNQuerier interface {
	// MaxLUN returns the highest logical unit number of the device.
	MaxLUN() (uint8, error)
}

// Config describes how to reach the mass storage interface of a device.
type Config struct {
	// Path of the usbfs node, e.g. /dev/bus/usb/001/004.
	Path        string        `yaml:"path"`
	Interface   uint8         `yaml:"interface"`
	InEndpoint  uint8         `yaml:"inEndpoint"`
	OutEndpoint uint8         `yaml:"outEndpoint"`
	Timeout     time.Duration `yaml:"timeout"`
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}
