package block

import (
	"fmt"
	"io"
	"sync"

	"github.com/aligator/aums/checkpoint"
)

// ByteDevice adapts a block device to byte offsets.
// Partial blocks at the start and the end of a request are staged in a
// scratch block. Writes read that block first so that neighbouring bytes
// are preserved.
//
// A ByteDevice may be a window of the underlying device starting at some block.
type ByteDevice struct {
	mu      sync.Mutex
	dev     Device
	base    int64
	blocks  int64
	scratch []byte
}

// NewByteDevice creates a byte view over the whole initialized device.
func NewByteDevice(dev Device) *ByteDevice {
	return &ByteDevice{
		dev:     dev,
		blocks:  dev.Blocks(),
		scratch: make([]byte, dev.BlockSize()),
	}
}

// Window returns a byte view of blocks blocks starting at block lba of this view.
// Offset 0 of the window is the first byte of block lba.
func (b *ByteDevice) Window(lba, blocks int64) (*ByteDevice, error) {
	if lba < 0 || blocks < 0 || lba+blocks > b.blocks {
		return nil, checkpoint.Wrapf(fmt.Errorf("window %d+%d of %d blocks", lba, blocks, b.blocks), ErrOutOfRange, "window")
	}
	return &ByteDevice{
		dev:     b.dev,
		base:    b.base + lba,
		blocks:  blocks,
		scratch: make([]byte, b.dev.BlockSize()),
	}, nil
}

// BlockSize of the underlying device.
func (b *ByteDevice) BlockSize() int {
	return len(b.scratch)
}

// Size of the view in bytes.
func (b *ByteDevice) Size() int64 {
	return b.blocks * int64(len(b.scratch))
}

// ReadAt reads len(p) bytes at byte offset off.
// Reading past the end returns the available bytes and io.EOF.
func (b *ByteDevice) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, checkpoint.Wrapf(fmt.Errorf("offset %d", off), ErrOutOfRange, "read")
	}
	size := b.Size()
	if off >= size {
		return 0, io.EOF
	}

	var eof error
	if rest := size - off; int64(len(p)) > rest {
		p = p[:rest]
		eof = io.EOF
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	bs := int64(len(b.scratch))
	done := 0
	for done < len(p) {
		pos := off + int64(done)
		lba := b.base + pos/bs
		inner := pos % bs
		remaining := len(p) - done

		if inner != 0 || int64(remaining) < bs {
			// Partial block.
			if err := b.dev.ReadBlocks(lba, b.scratch); err != nil {
				return done, checkpoint.From(err)
			}
			done += copy(p[done:], b.scratch[inner:])
			continue
		}

		whole := int(int64(remaining) / bs * bs)
		if err := b.dev.ReadBlocks(lba, p[done:done+whole]); err != nil {
			return done, checkpoint.From(err)
		}
		done += whole
	}

	return done, eof
}

// WriteAt writes p at byte offset off.
// Writing past the end fails without writing anything.
func (b *ByteDevice) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > b.Size() {
		return 0, checkpoint.Wrapf(fmt.Errorf("%d bytes at %d of %d", len(p), off, b.Size()), ErrOutOfRange, "write")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	bs := int64(len(b.scratch))
	done := 0
	for done < len(p) {
		pos := off + int64(done)
		lba := b.base + pos/bs
		inner := pos % bs
		remaining := len(p) - done

		if inner != 0 || int64(remaining) < bs {
			// Read-modify-write of a partial block.
			if err := b.dev.ReadBlocks(lba, b.scratch); err != nil {
				return done, checkpoint.From(err)
			}
			n := copy(b.scratch[inner:], p[done:])
			if err := b.dev.WriteBlocks(lba, b.scratch); err != nil {
				return done, checkpoint.From(err)
			}
			done += n
			continue
		}

		whole := int(int64(remaining) / bs * bs)
		if err := b.dev.WriteBlocks(lba, p[done:done+whole]); err != nil {
			return done, checkpoint.From(err)
		}
		done += whole
	}

	return done, nil
}
