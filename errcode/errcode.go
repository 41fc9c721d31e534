package errcode

import (
	"context"
	"errors"

	"baro-go/drivers/mpl3115a2"
)

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK                Code = "ok"
	Busy              Code = "busy"
	Unsupported       Code = "unsupported"
	InvalidParams     Code = "invalid_params"
	InvalidPeriod     Code = "invalid_period"
	InvalidCapAddr    Code = "invalid_capability_address"
	UnknownCapability Code = "unknown_capability"
	Timeout           Code = "timeout"

	// Device build failures.
	UnknownDeviceType Code = "unknown_device_type"
	MissingBusRef     Code = "missing_bus_ref"
	UnknownBus        Code = "unknown_bus"
	InvalidMode       Code = "invalid_mode"

	// Sensor driver failures.
	DeviceUnavailable Code = "device_unavailable"
	AddressNotFound   Code = "address_not_found"
	UnexpectedDevice  Code = "unexpected_device"
	BusError          Code = "bus_error"
	NotReady          Code = "not_ready"
	Closed            Code = "closed"

	Error Code = "error" // generic fallback
)

// E keeps an operation name and a cause alongside a Code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Wrap attaches c to err for op. A nil err stays nil.
func Wrap(c Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &E{C: c, Op: op, Msg: err.Error(), Err: err}
}

// Of extracts a Code from an error chain, falling back to MapDriverErr.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	return MapDriverErr(err)
}

// MapDriverErr maps low-level driver errors to a Code.
// The order matters: a construction failure caused by a bus error reports
// the construction step, not the bus.
func MapDriverErr(err error) Code {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, mpl3115a2.ErrDeviceUnavailable):
		return DeviceUnavailable
	case errors.Is(err, mpl3115a2.ErrAddressNotFound):
		return AddressNotFound
	case errors.Is(err, mpl3115a2.ErrUnexpectedDevice):
		return UnexpectedDevice
	case errors.Is(err, mpl3115a2.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return Timeout
	case errors.Is(err, mpl3115a2.ErrNotReady):
		return NotReady
	case errors.Is(err, mpl3115a2.ErrClosed):
		return Closed
	case errors.Is(err, mpl3115a2.ErrInvalidConfig):
		return InvalidParams
	case errors.Is(err, mpl3115a2.ErrBus):
		return BusError
	}
	return Error
}
