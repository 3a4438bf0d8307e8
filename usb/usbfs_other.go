//go:build !linux

package usb

import (
	"errors"

	"github.com/aligator/aums/checkpoint"
)

// ErrUnsupportedPlatform is returned by Open on systems without usbfs.
var ErrUnsupportedPlatform = errors.New("usbfs is only available on linux")

// USBFS is only functional on linux.
type USBFS struct{}

// Open always fails on this platform.
func Open(cfg Config) (*USBFS, error) {
	return nil, checkpoint.Wrapf(ErrUnsupportedPlatform, ErrTransport, "open %s", cfg.Path)
}

func (u *USBFS) BulkOut(p []byte) (int, error) { return 0, ErrUnsupportedPlatform }
func (u *USBFS) BulkIn(p []byte) (int, error)  { return 0, ErrUnsupportedPlatform }
func (u *USBFS) MaxLUN() (uint8, error)         { return 0, ErrUnsupportedPlatform }
func (u *USBFS) Reset() error                   { return ErrUnsupportedPlatform }
func (u *USBFS) Close() error                   { return nil }
