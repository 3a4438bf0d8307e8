// Package msctest emulates the device side of a Bulk-Only mass storage device
// backed by a RAM disk. It implements usb.Transport so the whole host stack can
// be exercised without hardware.
package msctest

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/aligator/aums/bot"
	"github.com/aligator/aums/checkpoint"
	"github.com/aligator/aums/usb"
)

// SCSI operation codes understood by the target.
const (
	opTestUnitReady  = 0x00
	opRequestSense   = 0x03
	opInquiry        = 0x12
	opReadCapacity10 = 0x25
	opRead10         = 0x28
	opWrite10        = 0x2A
)

// Sense keys reported by the target.
const (
	senseNotReady       = 0x02
	senseHardwareError  = 0x04
	senseIllegalRequest = 0x05
)

type phase int

const (
	phaseCommand phase = iota
	phaseDataIn
	phaseDataOut
	phaseStatus
)

// Target is a RAM disk speaking the Bulk-Only Transport.
// The exported knobs may be changed between commands to inject faults.
type Target struct {
	mu sync.Mutex

	Disk      []byte
	BlockSize int

	// InquiryByte0 holds peripheral qualifier and device type, 0 for a direct access block device.
	InquiryByte0 byte
	// NotReady makes TEST UNIT READY fail.
	NotReady bool
	// MaxPacket limits the bytes moved by a single data phase transfer, 0 means unlimited.
	MaxPacket int
	// CorruptTag makes the next CSW carry a wrong tag.
	CorruptTag bool
	// CorruptSignature makes the next CSW carry a wrong signature.
	CorruptSignature bool
	// FailOpcodes lets every command with one of the opcodes fail with a hardware error.
	FailOpcodes map[byte]bool
	// LUNs is reported as maximum LUN.
	LUNs uint8

	// Opcodes records every command received.
	Opcodes []byte

	phase  phase
	cmd    bot.Command
	data   []byte
	pos    int
	csw    bot.CSW
	sense  [3]byte
	closed bool

	write func(data []byte)
}

// New creates a target with blocks blocks of blockSize bytes.
func New(blocks, blockSize int) *Target {
	return &Target{
		Disk:        make([]byte, blocks*blockSize),
		BlockSize:   blockSize,
		FailOpcodes: map[byte]bool{},
	}
}

// FromImage creates a target serving the given disk image.
// The image length must be a multiple of blockSize.
func FromImage(image []byte, blockSize int) *Target {
	t := New(0, blockSize)
	t.Disk = image
	return t
}

func (t *Target) limit(n int) int {
	if t.MaxPacket > 0 && n > t.MaxPacket {
		return t.MaxPacket
	}
	return n
}

// BulkOut receives a CBW or data of an OUT data phase.
func (t *Target) BulkOut(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, checkpoint.From(usb.ErrClosed)
	}

	switch t.phase {
	case phaseCommand:
		cmd, err := bot.ParseCBW(p)
		if err != nil {
			return 0, checkpoint.Wrap(err, usb.ErrTransport)
		}
		t.execute(cmd)
		return len(p), nil
	case phaseDataOut:
		n := copy(t.data[t.pos:], p[:t.limit(len(p))])
		t.pos += n
		if t.pos == len(t.data) {
			if t.write != nil {
				t.write(t.data)
			}
			t.phase = phaseStatus
		}
		return n, nil
	default:
		return 0, checkpoint.Wrapf(fmt.Errorf("unexpected out transfer in phase %d", t.phase), usb.ErrTransport, "stall")
	}
}

// BulkIn delivers data of an IN data phase or the CSW.
func (t *Target) BulkIn(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, checkpoint.From(usb.ErrClosed)
	}

	switch t.phase {
	case phaseDataIn:
		n := copy(p[:t.limit(len(p))], t.data[t.pos:])
		t.pos += n
		if t.pos == len(t.data) {
			t.phase = phaseStatus
		}
		return n, nil
	case phaseStatus:
		if len(p) < bot.CSWSize {
			return 0, checkpoint.Wrapf(fmt.Errorf("csw buffer of %d bytes", len(p)), usb.ErrTransport, "stall")
		}
		csw := t.csw
		if t.CorruptTag {
			csw.Tag++
			t.CorruptTag = false
		}
		_ = csw.MarshalTo(p)
		if t.CorruptSignature {
			p[0] ^= 0xFF
			t.CorruptSignature = false
		}
		t.phase = phaseCommand
		return bot.CSWSize, nil
	default:
		return 0, checkpoint.Wrapf(fmt.Errorf("unexpected in transfer in phase %d", t.phase), usb.ErrTransport, "stall")
	}
}

// MaxLUN implements usb.LUNQuerier.
func (t *Target) MaxLUN() (uint8, error) {
	return t.LUNs, nil
}

// Close makes all further transfers fail.
func (t *Target) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *Target) blocks() int {
	return len(t.Disk) / t.BlockSize
}

func (t *Target) execute(cmd bot.Command) {
	t.cmd = cmd
	t.Opcodes = append(t.Opcodes, cmd.Opcode())
	t.csw = bot.CSW{Tag: cmd.Tag, Status: bot.StatusPassed}
	t.write = nil
	t.pos = 0
	t.data = make([]byte, cmd.DataTransferLength)

	var response []byte
	ok := true
	if t.FailOpcodes[cmd.Opcode()] {
		ok = t.fail(senseHardwareError, 0x44)
	} else {
		switch cmd.Opcode() {
		case opTestUnitReady:
			if t.NotReady {
				ok = t.fail(senseNotReady, 0x3A)
			}
		case opRequestSense:
			response = make([]byte, 18)
			response[0] = 0x70
			response[2] = t.sense[0]
			response[7] = 10
			response[12] = t.sense[1]
			response[13] = t.sense[2]
			t.sense = [3]byte{}
		case opInquiry:
			response = make([]byte, 36)
			response[0] = t.InquiryByte0
			response[1] = 0x80
			response[2] = 0x04
			response[3] = 0x02
			response[4] = 31
			copy(response[8:16], "AUMS    ")
			copy(response[16:32], "RAM DISK        ")
			copy(response[32:36], "1.0 ")
		case opReadCapacity10:
			response = make([]byte, 8)
			binary.BigEndian.PutUint32(response[0:4], uint32(t.blocks()-1))
			binary.BigEndian.PutUint32(response[4:8], uint32(t.BlockSize))
		case opRead10, opWrite10:
			lba := int(binary.BigEndian.Uint32(cmd.CDB[2:6]))
			count := int(binary.BigEndian.Uint16(cmd.CDB[7:9]))
			if lba+count > t.blocks() || count*t.BlockSize != int(cmd.DataTransferLength) {
				ok = t.fail(senseIllegalRequest, 0x21)
				break
			}
			start := lba * t.BlockSize
			end := start + count*t.BlockSize
			if cmd.Opcode() == opRead10 {
				response = t.Disk[start:end]
			} else {
				t.write = func(data []byte) {
					copy(t.Disk[start:end], data)
				}
			}
		default:
			ok = t.fail(senseIllegalRequest, 0x20)
		}
	}

	if !ok {
		t.write = nil
		t.csw.Residue = cmd.DataTransferLength
	} else if response != nil {
		n := copy(t.data, response)
		t.csw.Residue = cmd.DataTransferLength - uint32(n)
	}

	switch cmd.Direction {
	case bot.DirectionIn:
		t.phase = phaseDataIn
	case bot.DirectionOut:
		t.phase = phaseDataOut
	default:
		t.phase = phaseStatus
	}
}

func (t *Target) fail(key, asc byte) bool {
	t.csw.Status = bot.StatusFailed
	t.sense = [3]byte{key, asc, 0}
	return false
}
