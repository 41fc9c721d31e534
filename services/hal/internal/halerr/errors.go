// services/hal/internal/halerr/errors.go
package halerr

import "baro-go/errcode"

// Sentinels are the bus codes themselves, so errcode.Of reports them as-is
// through any amount of wrapping.
var (
	// Service/control plane
	ErrBusy           error = errcode.Busy
	ErrInvalidPeriod  error = errcode.InvalidPeriod
	ErrInvalidCapAddr error = errcode.InvalidCapAddr
	ErrUnknownCap     error = errcode.UnknownCapability
	ErrUnsupported    error = errcode.Unsupported

	// Build/config
	ErrUnknownType   error = errcode.UnknownDeviceType
	ErrMissingBusRef error = errcode.MissingBusRef
	ErrUnknownBus    error = errcode.UnknownBus
	ErrInvalidMode   error = errcode.InvalidMode
	ErrInvalidParams error = errcode.InvalidParams
)
