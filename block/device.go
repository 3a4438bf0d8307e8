// Package block contains the block device contract shared by the SCSI layer
// and image files, plus the adapter which turns a block device into a byte
// addressed one.
package block

import "errors"

// These errors may occur while accessing a block device.
var (
	// ErrUnaligned signals a caller bug: block devices only transfer whole blocks.
	ErrUnaligned    = errors.New("buffer is not a multiple of the block size")
	ErrOutOfRange   = errors.New("access beyond the end of the device")
	ErrNotAvailable = errors.New("block device not initialized")
)

// Device is a logical block device with a fixed block size.
// The block size is discovered by Init and does not change afterwards.
//
// Generated mock using mockgen:
//  mockgen -source=device.go -destination=device_mock.go -package block
type Device interface {
	Init() error
	BlockSize() int
	Blocks() int64
	// ReadBlocks reads len(p) bytes starting at block lba.
	// len(p) must be a multiple of BlockSize.
	ReadBlocks(lba int64, p []byte) error
	// WriteBlocks writes p starting at block lba.
	// len(p) must be a multiple of BlockSize.
	WriteBlocks(lba int64, p []byte) error
}
