package device

import (
	"errors"
	"fmt"

	"github.com/openebs/smart/sense"
)

// ErrKind enumerates the error taxonomy of spec.md §7.
type ErrKind int

const (
	ErrTransportIO ErrKind = iota
	ErrSenseCheckCondition
	ErrSatNoAtaDescriptor
	ErrBadOpcode
	ErrBadField
	ErrTimeout
	ErrInvalidConfig
	ErrStateFileCorrupt
	ErrRaceInUsbTunnel
	ErrUnsupported
)

func (k ErrKind) String() string {
	switch k {
	case ErrTransportIO:
		return "transport I/O error"
	case ErrSenseCheckCondition:
		return "SCSI check condition"
	case ErrSatNoAtaDescriptor:
		return "SAT response lacked ATA return descriptor"
	case ErrBadOpcode:
		return "device does not support opcode"
	case ErrBadField:
		return "device rejected command field"
	case ErrTimeout:
		return "transport timeout"
	case ErrInvalidConfig:
		return "invalid configuration"
	case ErrStateFileCorrupt:
		return "state file corrupt"
	case ErrRaceInUsbTunnel:
		return "USB-Cypress taskfile readback race"
	case ErrUnsupported:
		return "operation unsupported"
	default:
		return "unknown error"
	}
}

// SmartError is the single error type every layer of this module wraps
// lower-level failures in (spec.md §7). Kind drives the engine's recovery
// policy; Simple, when set, carries the SCSI sense classification that
// produced the error.
type SmartError struct {
	Kind   ErrKind
	Simple sense.SimpleErr
	Detail string
	Err    error
}

func (e *SmartError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *SmartError) Unwrap() error { return e.Err }

// NewError builds a SmartError of the given kind wrapping err.
func NewError(kind ErrKind, err error) *SmartError {
	return &SmartError{Kind: kind, Err: err}
}

// NewDetailedError builds a SmartError with a formatted detail message.
func NewDetailedError(kind ErrKind, format string, args ...any) *SmartError {
	return &SmartError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrKind from err if it (or something it wraps) is a
// *SmartError, returning ok=false otherwise.
func KindOf(err error) (ErrKind, bool) {
	var se *SmartError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}
