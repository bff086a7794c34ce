// Package checkpoint decorates errors with the location they passed through.
// A chain of checkpoints reads like a short trace from the failing device call
// up to the operation that gave up, while errors.Is and errors.As still see
// every error attached along the way.
package checkpoint

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
)

// From attaches the callers location to err.
// It returns nil if err == nil.
func From(err error) error {
	if err == nil {
		return nil
	}
	// io.EOF must stay comparable with ==.
	// https://github.com/golang/go/issues/39155
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return err
	}

	return newCheckpoint(err, nil)
}

// Wrap records a checkpoint for cause and describes it by err, typically one
// of the sentinel errors of the calling package:
//  var ErrNoSpace = errors.New("not enough free blocks")
//
//  func grow() error {
//  	err := findBlocks()
//  	return checkpoint.Wrap(err, ErrNoSpace)
//  }
// errors.Is(grow(), ErrNoSpace) holds, and so does errors.Is for whatever
// findBlocks returned.
// Wrap returns nil if cause == nil, and io.EOF unchanged.
func Wrap(cause, err error) error {
	if cause == nil {
		return nil
	}
	if cause == io.EOF {
		return io.EOF
	}

	return newCheckpoint(err, cause)
}

type checkpoint struct {
	err   error
	cause error

	file string
	line int
}

// newCheckpoint must be called directly by From or Wrap so that the skipped
// frames point at their caller.
func newCheckpoint(err, cause error) *checkpoint {
	c := &checkpoint{err: err, cause: cause}
	if _, file, line, ok := runtime.Caller(2); ok {
		c.file = filepath.Base(file)
		c.line = line
	}
	return c
}

func (c *checkpoint) location() string {
	if c.file == "" {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", c.file, c.line)
}

func (c *checkpoint) Error() string {
	var b strings.Builder
	b.WriteString(c.location())
	b.WriteString(": ")

	switch {
	case c.err == nil:
		b.WriteString(c.cause.Error())
		return b.String()
	case c.cause == nil:
		b.WriteString(c.err.Error())
		return b.String()
	}

	b.WriteString(c.err.Error())
	if _, ok := c.cause.(*checkpoint); ok {
		b.WriteString("\n")
	} else {
		b.WriteString("\n\tcaused by: ")
	}
	b.WriteString(strings.ReplaceAll(c.cause.Error(), "\n", "\n\t"))
	return b.String()
}

func (c *checkpoint) Unwrap() error {
	if c.cause == nil {
		return c.err
	}
	return c.cause
}

func (c *checkpoint) Is(target error) bool {
	return c.err != nil && errors.Is(c.err, target)
}

func (c *checkpoint) As(target interface{}) bool {
	return c.err != nil && errors.As(c.err, target)
}
