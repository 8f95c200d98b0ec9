package pairing

import (
	"errors"
	"fmt"

	"github.com/yly97/gamestream/pkg/transport"
)

var (
	ErrPairingRejected             = errors.New("host rejected pairing")
	ErrWrongPin                    = errors.New("wrong PIN")
	ErrSignatureVerificationFailed = errors.New("server signature verification failed, possible man-in-the-middle")
	ErrInvalidPin                  = errors.New("PIN must be 4 digits")
	errInvalidPairState            = errors.New("invalid pairing state")
)

// Status is the terminal outcome of a pairing attempt.
type Status uint8

const (
	StatusPaired Status = iota
	StatusPairingRejected
	StatusWrongPin
	StatusSignatureVerificationFailed
	StatusHostUnreachable
)

func (s Status) String() string {
	switch s {
	case StatusPaired:
		return "Paired"
	case StatusPairingRejected:
		return "PairingRejected"
	case StatusWrongPin:
		return "WrongPin"
	case StatusSignatureVerificationFailed:
		return "SignatureVerificationFailed"
	case StatusHostUnreachable:
		return "HostUnreachable"
	default:
		return "Unknown"
	}
}

// Error is returned by Pair for every failed attempt.
type Error struct {
	Status Status
	State  string
	err    error
}

func wrapPairError(state pairState, err error) *Error {
	return &Error{
		Status: classify(err),
		State:  state.String(),
		err:    err,
	}
}

func (e *Error) Error() string {
	return fmt.Sprintf("pairing %s at %s: %v", e.Status, e.State, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

// StatusOf maps the result of Pair to its Status.
func StatusOf(err error) Status {
	if err == nil {
		return StatusPaired
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Status
	}
	return classify(err)
}

func classify(err error) Status {
	switch {
	case errors.Is(err, ErrWrongPin), errors.Is(err, ErrInvalidPin):
		return StatusWrongPin
	case errors.Is(err, ErrSignatureVerificationFailed):
		return StatusSignatureVerificationFailed
	case errors.Is(err, transport.ErrHostUnreachable):
		return StatusHostUnreachable
	default:
		return StatusPairingRejected
	}
}
