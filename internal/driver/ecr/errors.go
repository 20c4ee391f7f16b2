// internal/driver/ecr/errors.go
package ecr

import (
	"errors"
	"fmt"
)

var (
	// ErrPayloadTooLarge is returned when a payload exceeds MaxDataSize bytes
	ErrPayloadTooLarge = errors.New("length of the packet exceeds the limits")

	// ErrEmptyPayload is returned when a command that requires content resolves to nothing
	ErrEmptyPayload = errors.New("data should contain value")

	ErrUnknownTaxCategory   = errors.New("unknown tax category")
	ErrUnknownPaymentMethod = errors.New("unknown payment method")
	ErrUnknownReportType    = errors.New("unknown report type")
	ErrInvalidCommand       = errors.New("command code out of range")

	// Response side
	ErrNegativeAck       = errors.New("register rejected the packet")
	ErrMalformedResponse = errors.New("malformed response frame")
	ErrChecksumMismatch  = errors.New("response checksum mismatch")
	ErrResponseTimeout   = errors.New("no response from register")

	// Driver side
	ErrNotConnected = errors.New("register not connected")
	ErrPaperOut     = errors.New("register is out of paper")
)

// CommandError wraps a failure of a single catalog command
type CommandError struct {
	Command int
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %d (0x%02X): %v", e.Command, e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// IsCommandError returns true if err wraps a CommandError
func IsCommandError(err error) bool {
	var cmdErr *CommandError
	return errors.As(err, &cmdErr)
}
