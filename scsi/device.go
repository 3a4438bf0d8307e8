package scsi

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aligator/aums/block"
	"github.com/aligator/aums/bot"
	"github.com/aligator/aums/checkpoint"
	"github.com/golang/glog"
)

// MaxTransferBytes limits the size of a single READ(10) or WRITE(10).
const MaxTransferBytes = 64 * 1024

// These errors may occur while initializing a device.
var (
	// ErrUnsupportedDevice means the device is not a direct access block device.
	ErrUnsupportedDevice = errors.New("unsupported scsi device")
	ErrInvalidCapacity   = errors.New("invalid device capacity")
)

// Device is a SCSI direct access block device behind a Bulk-Only Transport engine.
type Device struct {
	mu     sync.Mutex
	engine *bot.Engine
	lun    uint8

	inquiry   InquiryResponse
	blockSize int
	blocks    int64

	// Reused for every call.
	read  *bot.Command
	write *bot.Command
}

// NewDevice creates a device for the given logical unit. Call Init before use.
func NewDevice(engine *bot.Engine, lun uint8) *Device {
	return &Device{
		engine: engine,
		lun:    lun,
		read:   newCommand(OpRead10, 10, lun, 0, bot.DirectionIn),
		write:  newCommand(OpWrite10, 10, lun, 0, bot.DirectionOut),
	}
}

// run executes cmd and turns a failed status into an error with sense data.
func (d *Device) run(cmd *bot.Command, data []byte) error {
	res, err := d.engine.Transfer(cmd, data)
	if err != nil {
		return err
	}
	if res.Passed() {
		return nil
	}

	failed := res.Err(cmd.Opcode()).(*bot.CommandFailedError)
	if cmd.Opcode() == OpRequestSense {
		return failed
	}

	sense, err := d.requestSense()
	if err != nil {
		glog.V(1).Infof("scsi: request sense after %#02x failed: %v", cmd.Opcode(), err)
		return failed
	}
	return &SenseError{Sense: sense, Err: failed}
}

func (d *Device) requestSense() (Sense, error) {
	buf := make([]byte, RequestSenseLength)
	if err := d.run(requestSenseCommand(d.lun), buf); err != nil {
		return Sense{}, err
	}
	return ParseSense(buf)
}

// Init queries the device and its capacity.
// A device which is not a direct access block device is rejected with ErrUnsupportedDevice.
func (d *Device) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	buf := make([]byte, InquiryLength)
	if err := d.run(inquiryCommand(d.lun), buf); err != nil {
		if errors.Is(err, bot.ErrCommandFailed) {
			return checkpoint.Wrapf(err, ErrUnsupportedDevice, "inquiry")
		}
		return err
	}
	inquiry, err := ParseInquiry(buf)
	if err != nil {
		return err
	}
	if !inquiry.DirectAccess() {
		return checkpoint.Wrapf(fmt.Errorf("qualifier %d, type %#02x", inquiry.PeripheralQualifier, inquiry.PeripheralDeviceType), ErrUnsupportedDevice, "inquiry")
	}
	d.inquiry = inquiry
	glog.V(1).Infof("scsi: lun %d is %v", d.lun, inquiry)

	// Removable media often report not ready right after plugging in.
	if err := d.run(testUnitReadyCommand(d.lun), nil); err != nil {
		if !errors.Is(err, bot.ErrCommandFailed) {
			return err
		}
		glog.Warningf("scsi: test unit ready failed, continuing: %v", err)
	}

	buf = make([]byte, ReadCapacity10Length)
	if err := d.run(readCapacityCommand(d.lun), buf); err != nil {
		return err
	}
	capacity, err := ParseReadCapacity10(buf)
	if err != nil {
		return err
	}
	if capacity.BlockLength == 0 || capacity.BlockLength > MaxTransferBytes {
		return checkpoint.Wrapf(fmt.Errorf("block length %d", capacity.BlockLength), ErrInvalidCapacity, "read capacity")
	}
	d.blockSize = int(capacity.BlockLength)
	d.blocks = capacity.Blocks()
	glog.V(1).Infof("scsi: lun %d has %d blocks of %d bytes", d.lun, d.blocks, d.blockSize)

	return nil
}

// Inquiry returns the INQUIRY data read by Init.
func (d *Device) Inquiry() InquiryResponse {
	return d.inquiry
}

func (d *Device) BlockSize() int {
	return d.blockSize
}

func (d *Device) Blocks() int64 {
	return d.blocks
}

// TestUnitReady asks the device whether the medium is ready.
func (d *Device) TestUnitReady() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.run(testUnitReadyCommand(d.lun), nil)
}

func (d *Device) check(lba int64, p []byte) error {
	if d.blockSize == 0 {
		return checkpoint.From(block.ErrNotAvailable)
	}
	if len(p)%d.blockSize != 0 {
		return checkpoint.Wrapf(fmt.Errorf("%d bytes", len(p)), block.ErrUnaligned, "block size %d", d.blockSize)
	}
	if lba < 0 || lba+int64(len(p)/d.blockSize) > d.blocks || lba > 0xFFFFFFFF {
		return checkpoint.Wrapf(fmt.Errorf("lba %d, %d bytes", lba, len(p)), block.ErrOutOfRange, "%d blocks", d.blocks)
	}
	return nil
}

// transfer splits p into chunks fitting into one command and runs cmd for each.
func (d *Device) transfer(cmd *bot.Command, lba int64, p []byte) error {
	if err := d.check(lba, p); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	chunk := MaxTransferBytes / d.blockSize * d.blockSize
	for off := 0; off < len(p); off += chunk {
		end := off + chunk
		if end > len(p) {
			end = len(p)
		}
		blocks := (end - off) / d.blockSize
		setTransfer10(cmd, uint32(lba), uint16(blocks), d.blockSize)
		if err := d.run(cmd, p[off:end]); err != nil {
			return checkpoint.Wrapf(err, fmt.Errorf("lba %d, %d blocks", lba, blocks), "opcode %#02x", cmd.Opcode())
		}
		lba += int64(blocks)
	}
	return nil
}

// ReadBlocks reads len(p) bytes starting at block lba.
func (d *Device) ReadBlocks(lba int64, p []byte) error {
	return d.transfer(d.read, lba, p)
}

// WriteBlocks writes p starting at block lba.
func (d *Device) WriteBlocks(lba int64, p []byte) error {
	return d.transfer(d.write, lba, p)
}
