package block

import (
	"fmt"
	"io"
	"os"

	"github.com/aligator/aums/checkpoint"
	"github.com/golang/glog"
	"github.com/spf13/afero"
)

// DefaultBlockSize is used for image files if nothing else is requested.
const DefaultBlockSize = 512

// FileDevice is a block device backed by a disk image.
type FileDevice struct {
	f         afero.File
	blockSize int
	blocks    int64
}

// NewFileDevice wraps an already opened image. Call Init before use.
func NewFileDevice(f afero.File, blockSize int) *FileDevice {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &FileDevice{f: f, blockSize: blockSize}
}

// OpenFile opens the image name on fs and initializes the device.
func OpenFile(fs afero.Fs, name string, blockSize int, readOnly bool) (*FileDevice, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := fs.OpenFile(name, flag, 0)
	if err != nil {
		return nil, checkpoint.From(err)
	}

	d := NewFileDevice(f, blockSize)
	if err := d.Init(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return d, nil
}

// Init determines the number of blocks from the image size.
// A trailing partial block is ignored.
func (d *FileDevice) Init() error {
	info, err := d.f.Stat()
	if err != nil {
		return checkpoint.From(err)
	}

	if info.Size()%int64(d.blockSize) != 0 {
		glog.Warningf("block: image %s is not a multiple of %d bytes, ignoring the tail", d.f.Name(), d.blockSize)
	}
	d.blocks = info.Size() / int64(d.blockSize)
	return nil
}

func (d *FileDevice) BlockSize() int {
	return d.blockSize
}

func (d *FileDevice) Blocks() int64 {
	return d.blocks
}

func (d *FileDevice) check(lba int64, p []byte) error {
	if len(p)%d.blockSize != 0 {
		return checkpoint.Wrapf(fmt.Errorf("%d bytes", len(p)), ErrUnaligned, "block size %d", d.blockSize)
	}
	if lba < 0 || lba+int64(len(p)/d.blockSize) > d.blocks {
		return checkpoint.Wrapf(fmt.Errorf("lba %d, %d bytes", lba, len(p)), ErrOutOfRange, "%d blocks", d.blocks)
	}
	return nil
}

func (d *FileDevice) ReadBlocks(lba int64, p []byte) error {
	if err := d.check(lba, p); err != nil {
		return err
	}
	n, err := d.f.ReadAt(p, lba*int64(d.blockSize))
	if err == io.EOF && n == len(p) {
		err = nil
	}
	return checkpoint.From(err)
}

func (d *FileDevice) WriteBlocks(lba int64, p []byte) error {
	if err := d.check(lba, p); err != nil {
		return err
	}
	_, err := d.f.WriteAt(p, lba*int64(d.blockSize))
	return checkpoint.From(err)
}

// Close syncs and closes the image.
func (d *FileDevice) Close() error {
	if err := d.f.Sync(); err != nil {
		_ = d.f.Close()
		return checkpoint.From(err)
	}
	return checkpoint.From(d.f.Close())
}
