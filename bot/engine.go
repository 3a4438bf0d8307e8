package bot

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aligator/aums/checkpoint"
	"github.com/aligator/aums/usb"
	"github.com/golang/glog"
)

// These errors may occur while running a command.
var (
	// ErrProtocolDesync means host and device disagree about the command sequence.
	// The session should not be used anymore.
	ErrProtocolDesync = errors.New("bulk-only protocol out of sync")
	ErrCommandFailed  = errors.New("command failed")
	ErrDataBuffer     = errors.New("data buffer does not match the transfer length")
)

// CommandFailedError is returned when the device reports a status other than passed.
type CommandFailedError struct {
	Opcode  byte
	Tag     uint32
	Status  Status
	Residue uint32
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("command %#02x (tag %d): %v, residue %d", e.Opcode, e.Tag, e.Status, e.Residue)
}

func (e *CommandFailedError) Is(target error) bool {
	return target == ErrCommandFailed
}

// Result is the outcome of a transfer as reported by the CSW.
type Result struct {
	Tag     uint32
	Status  Status
	Residue uint32
}

// Passed reports whether the device completed the command successfully.
func (r Result) Passed() bool {
	return r.Status == StatusPassed
}

// Err returns a *CommandFailedError if the command did not pass.
func (r Result) Err(opcode byte) error {
	if r.Passed() {
		return nil
	}
	return &CommandFailedError{Opcode: opcode, Tag: r.Tag, Status: r.Status, Residue: r.Residue}
}

// Engine runs commands over a transport one at a time.
type Engine struct {
	mu  sync.Mutex
	t   usb.Transport
	tag uint32

	cbw [CBWSize]byte
	csw [CSWSize]byte
}

// NewEngine creates an engine on top of t.
func NewEngine(t usb.Transport) *Engine {
	return &Engine{t: t}
}

// Transfer sends cmd, runs the data phase with data and reads the status.
// data must be exactly cmd.DataTransferLength bytes long, except for DirectionNone.
// The tag of cmd is replaced by a fresh one.
//
// A returned error means the transport failed or the protocol desynchronized.
// A failed command is not an error at this level, check Result.Passed.
func (e *Engine) Transfer(cmd *Command, data []byte) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cmd.Direction != DirectionNone && uint32(len(data)) != cmd.DataTransferLength {
		return Result{}, checkpoint.Wrapf(fmt.Errorf("got %d bytes, want %d", len(data), cmd.DataTransferLength), ErrDataBuffer, "opcode %#02x", cmd.Opcode())
	}

	e.tag++
	cmd.Tag = e.tag
	if err := cmd.MarshalTo(e.cbw[:]); err != nil {
		return Result{}, err
	}

	glog.V(2).Infof("bot: tag %d opcode %#02x %v %d bytes", cmd.Tag, cmd.Opcode(), cmd.Direction, cmd.DataTransferLength)

	if err := e.full(e.t.BulkOut, e.cbw[:]); err != nil {
		return Result{}, checkpoint.Wrapf(err, usb.ErrTransport, "send cbw")
	}

	switch cmd.Direction {
	case DirectionIn:
		if err := e.full(e.t.BulkIn, data); err != nil {
			return Result{}, checkpoint.Wrapf(err, usb.ErrTransport, "data in")
		}
	case DirectionOut:
		if err := e.full(e.t.BulkOut, data); err != nil {
			return Result{}, checkpoint.Wrapf(err, usb.ErrTransport, "data out")
		}
	}

	n, err := e.t.BulkIn(e.csw[:])
	if err != nil {
		return Result{}, checkpoint.Wrapf(err, usb.ErrTransport, "receive csw")
	}
	if n == 0 {
		return Result{}, checkpoint.Wrapf(io.ErrNoProgress, usb.ErrTransport, "receive csw")
	}

	csw, err := ParseCSW(e.csw[:n])
	if err != nil {
		return Result{}, checkpoint.Wrap(err, ErrProtocolDesync)
	}
	if csw.Tag != cmd.Tag {
		return Result{}, checkpoint.Wrapf(fmt.Errorf("csw tag %d, cbw tag %d", csw.Tag, cmd.Tag), ErrProtocolDesync, "opcode %#02x", cmd.Opcode())
	}

	res := Result{Tag: csw.Tag, Status: csw.Status, Residue: csw.Residue}
	if !res.Passed() {
		glog.V(2).Infof("bot: tag %d opcode %#02x: %v, residue %d", cmd.Tag, cmd.Opcode(), csw.Status, csw.Residue)
	}
	return res, nil
}

// full repeats the transfer fn until p is completely transferred.
// A transfer moving no bytes is a failure.
func (e *Engine) full(fn func([]byte) (int, error), p []byte) error {
	for off := 0; off < len(p); {
		n, err := fn(p[off:])
		if err != nil {
			return err
		}
		if n <= 0 {
			return checkpoint.Wrapf(io.ErrNoProgress, usb.ErrTransport, "%d of %d bytes", off, len(p))
		}
		off += n
	}
	return nil
}

// Close closes the underlying transport. Transfers in flight fail.
func (e *Engine) Close() error {
	return e.t.Close()
}
