// Package bot implements the host side of the USB Mass Storage Bulk-Only Transport.
// Every SCSI command is framed by a Command Block Wrapper sent to the device and
// answered by a Command Status Wrapper after an optional data phase.
package bot

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/aligator/aums/checkpoint"
)

// Wire constants of the Bulk-Only Transport.
const (
	CBWSignature = 0x43425355 // "USBC"
	CSWSignature = 0x53425355 // "USBS"
	CBWSize      = 31
	CSWSize      = 13
	MaxCDBLength = 16

	flagDataIn = 0x80
)

// These errors may occur while encoding or decoding wrappers.
var (
	ErrInvalidCBW = errors.New("invalid command block wrapper")
	ErrInvalidCSW = errors.New("invalid command status wrapper")
)

// Direction of the data phase, seen from the host.
type Direction uint8

const (
	DirectionNone Direction = iota
	DirectionIn
	DirectionOut
)

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "in"
	case DirectionOut:
		return "out"
	default:
		return "none"
	}
}

// Status is the status byte of a CSW.
type Status uint8

const (
	StatusPassed     Status = 0
	StatusFailed     Status = 1
	StatusPhaseError Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusPhaseError:
		return "phase error"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Command is one SCSI command together with the CBW header fields.
// The command descriptor block uses SCSI big endian fields.
type Command struct {
	Tag                uint32
	DataTransferLength uint32
	Direction          Direction
	LUN                uint8
	CDB                []byte
}

// Opcode returns the SCSI operation code of the command.
func (c *Command) Opcode() byte {
	if len(c.CDB) == 0 {
		return 0
	}
	return c.CDB[0]
}

// MarshalTo serializes the command as CBW into b which must be at least CBWSize long.
func (c *Command) MarshalTo(b []byte) error {
	if len(b) < CBWSize {
		return checkpoint.Wrapf(fmt.Errorf("buffer of %d bytes", len(b)), ErrInvalidCBW, "marshal")
	}
	if len(c.CDB) == 0 || len(c.CDB) > MaxCDBLength {
		return checkpoint.Wrapf(fmt.Errorf("cdb length %d", len(c.CDB)), ErrInvalidCBW, "marshal")
	}
	if (c.Direction == DirectionNone) != (c.DataTransferLength == 0) {
		return checkpoint.Wrapf(fmt.Errorf("direction %v with %d bytes", c.Direction, c.DataTransferLength), ErrInvalidCBW, "marshal")
	}

	binary.LittleEndian.PutUint32(b[0:4], CBWSignature)
	binary.LittleEndian.PutUint32(b[4:8], c.Tag)
	binary.LittleEndian.PutUint32(b[8:12], c.DataTransferLength)
	b[12] = 0
	if c.Direction == DirectionIn {
		b[12] = flagDataIn
	}
	b[13] = c.LUN & 0x0F
	b[14] = byte(len(c.CDB))
	n := copy(b[15:15+MaxCDBLength], c.CDB)
	for i := 15 + n; i < CBWSize; i++ {
		b[i] = 0
	}
	return nil
}

// ParseCBW decodes a CBW. The CDB of the returned command is a copy.
func ParseCBW(b []byte) (Command, error) {
	if len(b) != CBWSize {
		return Command{}, checkpoint.Wrapf(fmt.Errorf("got %d bytes", len(b)), ErrInvalidCBW, "parse")
	}
	if sig := binary.LittleEndian.Uint32(b[0:4]); sig != CBWSignature {
		return Command{}, checkpoint.Wrapf(fmt.Errorf("signature %#08x", sig), ErrInvalidCBW, "parse")
	}
	cbLength := int(b[14])
	if cbLength == 0 || cbLength > MaxCDBLength {
		return Command{}, checkpoint.Wrapf(fmt.Errorf("cdb length %d", cbLength), ErrInvalidCBW, "parse")
	}

	cmd := Command{
		Tag:                binary.LittleEndian.Uint32(b[4:8]),
		DataTransferLength: binary.LittleEndian.Uint32(b[8:12]),
		LUN:                b[13] & 0x0F,
		CDB:                append([]byte(nil), b[15:15+cbLength]...),
	}
	switch {
	case cmd.DataTransferLength == 0:
		cmd.Direction = DirectionNone
	case b[12]&flagDataIn != 0:
		cmd.Direction = DirectionIn
	default:
		cmd.Direction = DirectionOut
	}
	return cmd, nil
}

// CSW is a decoded Command Status Wrapper.
type CSW struct {
	Tag     uint32
	Residue uint32
	Status  Status
}

// MarshalTo serializes the CSW into b which must be at least CSWSize long.
func (c CSW) MarshalTo(b []byte) error {
	if len(b) < CSWSize {
		return checkpoint.Wrapf(fmt.Errorf("buffer of %d bytes", len(b)), ErrInvalidCSW, "marshal")
	}
	binary.LittleEndian.PutUint32(b[0:4], CSWSignature)
	binary.LittleEndian.PutUint32(b[4:8], c.Tag)
	binary.LittleEndian.PutUint32(b[8:12], c.Residue)
	b[12] = byte(c.Status)
	return nil
}

// ParseCSW decodes a CSW and checks its length and signature.
func ParseCSW(b []byte) (CSW, error) {
	if len(b) != CSWSize {
		return CSW{}, checkpoint.Wrapf(fmt.Errorf("got %d bytes", len(b)), ErrInvalidCSW, "parse")
	}
	if sig := binary.LittleEndian.Uint32(b[0:4]); sig != CSWSignature {
		return CSW{}, checkpoint.Wrapf(fmt.Errorf("signature %#08x", sig), ErrInvalidCSW, "parse")
	}
	return CSW{
		Tag:     binary.LittleEndian.Uint32(b[4:8]),
		Residue: binary.LittleEndian.Uint32(b[8:12]),
		Status:  Status(b[12]),
	}, nil
}
