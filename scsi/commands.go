// Package scsi issues the SCSI block commands needed for a direct access
// device through the Bulk-Only Transport.
package scsi

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/aligator/aums/bot"
	"github.com/aligator/aums/checkpoint"
)

// SCSI operation codes.
const (
	OpTestUnitReady  = 0x00
	OpRequestSense   = 0x03
	OpInquiry        = 0x12
	OpReadCapacity10 = 0x25
	OpRead10         = 0x28
	OpWrite10        = 0x2A
)

// Response lengths.
const (
	InquiryLength        = 36
	ReadCapacity10Length = 8
	RequestSenseLength   = 18
)

// ErrShortResponse is returned if a response is shorter than its fixed layout.
var ErrShortResponse = errors.New("scsi response too short")

// newCommand builds a command with a CDB of cdbLength bytes.
func newCommand(opcode byte, cdbLength int, lun uint8, length uint32, dir bot.Direction) *bot.Command {
	cdb := make([]byte, cdbLength)
	cdb[0] = opcode
	return &bot.Command{
		DataTransferLength: length,
		Direction:          dir,
		LUN:                lun,
		CDB:                cdb,
	}
}

func inquiryCommand(lun uint8) *bot.Command {
	cmd := newCommand(OpInquiry, 6, lun, InquiryLength, bot.DirectionIn)
	cmd.CDB[4] = InquiryLength
	return cmd
}

func testUnitReadyCommand(lun uint8) *bot.Command {
	return newCommand(OpTestUnitReady, 6, lun, 0, bot.DirectionNone)
}

func requestSenseCommand(lun uint8) *bot.Command {
	cmd := newCommand(OpRequestSense, 6, lun, RequestSenseLength, bot.DirectionIn)
	cmd.CDB[4] = RequestSenseLength
	return cmd
}

func readCapacityCommand(lun uint8) *bot.Command {
	return newCommand(OpReadCapacity10, 10, lun, ReadCapacity10Length, bot.DirectionIn)
}

// setTransfer10 fills the block address and the transfer length of a READ(10) or WRITE(10) CDB.
func setTransfer10(cmd *bot.Command, lba uint32, blocks uint16, blockSize int) {
	binary.BigEndian.PutUint32(cmd.CDB[2:6], lba)
	binary.BigEndian.PutUint16(cmd.CDB[7:9], blocks)
	cmd.DataTransferLength = uint32(blocks) * uint32(blockSize)
}

// InquiryResponse is the standard INQUIRY data.
type InquiryResponse struct {
	PeripheralQualifier  uint8
	PeripheralDeviceType uint8
	Removable            bool
	Version              uint8
	ResponseDataFormat   uint8
	Vendor               string
	Product              string
	Revision             string
}

// DirectAccess reports whether the response describes a connected direct access block device.
func (r InquiryResponse) DirectAccess() bool {
	return r.PeripheralQualifier == 0 && r.PeripheralDeviceType == 0
}

func (r InquiryResponse) String() string {
	return fmt.Sprintf("%s %s %s", r.Vendor, r.Product, r.Revision)
}

// ParseInquiry decodes standard INQUIRY data.
func ParseInquiry(b []byte) (InquiryResponse, error) {
	if len(b) < InquiryLength {
		return InquiryResponse{}, checkpoint.Wrapf(fmt.Errorf("%d bytes", len(b)), ErrShortResponse, "inquiry")
	}
	return InquiryResponse{
		PeripheralQualifier:  b[0] >> 5,
		PeripheralDeviceType: b[0] & 0x1F,
		Removable:            b[1]&0x80 != 0,
		Version:              b[2],
		ResponseDataFormat:   b[3] & 0x0F,
		Vendor:               strings.TrimSpace(string(b[8:16])),
		Product:              strings.TrimSpace(string(b[16:32])),
		Revision:             strings.TrimSpace(string(b[32:36])),
	}, nil
}

// Capacity is the READ CAPACITY(10) data.
type Capacity struct {
	LastLBA     uint32
	BlockLength uint32
}

// Blocks returns the number of addressable blocks.
func (c Capacity) Blocks() int64 {
	return int64(c.LastLBA) + 1
}

// ParseReadCapacity10 decodes the big endian READ CAPACITY(10) data.
func ParseReadCapacity10(b []byte) (Capacity, error) {
	if len(b) < ReadCapacity10Length {
		return Capacity{}, checkpoint.Wrapf(fmt.Errorf("%d bytes", len(b)), ErrShortResponse, "read capacity")
	}
	return Capacity{
		LastLBA:     binary.BigEndian.Uint32(b[0:4]),
		BlockLength: binary.BigEndian.Uint32(b[4:8]),
	}, nil
}

// Sense holds the interesting part of fixed format sense data.
type Sense struct {
	Key  uint8
	ASC  uint8
	ASCQ uint8
}

// ParseSense decodes fixed format sense data.
func ParseSense(b []byte) (Sense, error) {
	if len(b) < 14 {
		return Sense{}, checkpoint.Wrapf(fmt.Errorf("%d bytes", len(b)), ErrShortResponse, "request sense")
	}
	return Sense{
		Key:  b[2] & 0x0F,
		ASC:  b[12],
		ASCQ: b[13],
	}, nil
}

var senseKeys = [...]string{
	"no sense", "recovered error", "not ready", "medium error", "hardware error",
	"illegal request", "unit attention", "data protect", "blank check", "vendor specific",
	"copy aborted", "aborted command", "reserved", "volume overflow", "miscompare", "completed",
}

func (s Sense) String() string {
	return fmt.Sprintf("%s (asc %#02x, ascq %#02x)", senseKeys[s.Key&0x0F], s.ASC, s.ASCQ)
}

// SenseError is a failed command together with the sense data the device reported for it.
type SenseError struct {
	Sense Sense
	Err   *bot.CommandFailedError
}

func (e *SenseError) Error() string {
	return fmt.Sprintf("%v: %v", e.Err, e.Sense)
}

func (e *SenseError) Unwrap() error {
	return e.Err
}
