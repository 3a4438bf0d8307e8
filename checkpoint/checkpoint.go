// Package checkpoint decorates errors with the location they passed through,
// which results in something similar to a stacktrace when an error bubbles up
// from the transport through the filesystem layers.
// Each error added to a checkpoint can be checked by errors.Is and retrieved by errors.As.
package checkpoint

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
)

// From wraps an error by a new checkpoint which adds the caller location to the error.
// It returns nil, if err == nil.
func From(err error) error {
	// io.EOF must be returned as io.EOF directly
	// https://github.com/golang/go/issues/39155
	if err == nil || err == io.EOF || err == io.ErrUnexpectedEOF {
		return err
	}

	return newCheckpoint(nil, err)
}

// Wrap adds a checkpoint to prev and attaches err as description of the checkpoint.
// This allows to predefine sentinel errors and use them to classify lower level causes:
//  var ErrNoSpace = errors.New("no free clusters left")
//
//  func alloc() error {
//  	err := scan()
//  	return checkpoint.Wrap(err, ErrNoSpace)
//  }
// errors.Is then matches both ErrNoSpace and the error returned by scan.
// Returns nil if prev == nil.
func Wrap(prev, err error) error {
	if prev == nil {
		return nil
	}
	if prev == io.EOF {
		return io.EOF
	}

	return newCheckpoint(err, prev)
}

// Wrapf is like Wrap but describes the checkpoint by err and an additional formatted message.
func Wrapf(prev, err error, format string, args ...interface{}) error {
	if prev == nil {
		return nil
	}
	if prev == io.EOF {
		return io.EOF
	}

	return newCheckpoint(fmt.Errorf("%w: "+format, append([]interface{}{err}, args...)...), prev)
}

// newCheckpoint must be called directly by the exported functions so that
// the caller location can be resolved by a fixed skip count.
func newCheckpoint(err, prev error) *checkpoint {
	_, file, line, ok := runtime.Caller(2)

	return &checkpoint{
		err:  err,
		prev: prev,

		callerOk: ok,
		file:     filepath.Base(file),
		line:     line,
	}
}

type checkpoint struct {
	err  error
	prev error

	callerOk bool
	file     string
	line     int
}

func (e *checkpoint) location() string {
	if !e.callerOk {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", e.file, e.line)
}

func (e *checkpoint) Error() string {
	var b strings.Builder
	b.WriteString(e.location())
	b.WriteString(": ")
	if e.err != nil {
		b.WriteString(e.err.Error())
		b.WriteString(": ")
	}

	// Nested checkpoints are printed on their own line.
	if _, ok := e.prev.(*checkpoint); ok {
		b.WriteString("\n\t")
		b.WriteString(strings.ReplaceAll(e.prev.Error(), "\n", "\n\t"))
	} else {
		b.WriteString(e.prev.Error())
	}
	return b.String()
}

func (e *checkpoint) Unwrap() error {
	return e.prev
}

func (e *checkpoint) Is(target error) bool {
	return e.err != nil && errors.Is(e.err, target)
}

func (e *checkpoint) As(target interface{}) bool {
	return e.err != nil && errors.As(e.err, target)
}
