// Package errs defines the engine-wide error taxonomy. Callers classify
// failures with errors.Is against the four sentinels.
package errs

import "github.com/pkg/errors"

var (
	// ErrDecode covers malformed, incomplete, or checksum-failed SysEx.
	ErrDecode = errors.New("decode error")

	// ErrPrecondition means a required prior step (kit dump capture,
	// learned mapping) has not happened yet.
	ErrPrecondition = errors.New("precondition not met")

	// ErrTransport covers send failures and busy ports. Transient:
	// callers retry or reopen ports, never abort the process.
	ErrTransport = errors.New("transport error")

	// ErrValidation covers mapping length/uniqueness violations.
	ErrValidation = errors.New("validation error")
)

func Decodef(format string, args ...interface{}) error {
	return errors.Wrapf(ErrDecode, format, args...)
}

func Preconditionf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrPrecondition, format, args...)
}

func Transportf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrTransport, format, args...)
}

func Validationf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrValidation, format, args...)
}

// Transient reports whether err is worth retrying after a hardware-side
// action (port released, dump re-triggered).
func Transient(err error) bool {
	return errors.Is(err, ErrTransport)
}
