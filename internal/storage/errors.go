package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

// Error kinds. Match with errors.Is.
var (
	ErrConnectionFailed = errors.New("store connection failed")
	ErrQueryFailed      = errors.New("store query failed")
	ErrTimeout          = errors.New("store operation timed out")
	// ErrCanceled means the caller went away. For writes the outcome is
	// unknown and must not be retried automatically.
	ErrCanceled = errors.New("store operation canceled")
)

// Error is returned by every store operation that fails.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func NewError(op string, kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Wrap classifies err into an *Error for op. nil stays nil and errors that
// are already classified are returned unchanged.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return NewError(op, Classify(err), err)
}

// Classify maps a driver or network error to one of the error kinds.
func Classify(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, context.Canceled):
		return ErrCanceled
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	if isConnectionError(err) {
		return ErrConnectionFailed
	}
	return ErrQueryFailed
}

// KindOf returns the kind of a store error, or nil for foreign errors.
func KindOf(err error) error {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return nil
}

func isConnectionError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, needle := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"use of closed network connection",
		"database is closed",
		"no such host",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
