package errcode

import (
	"context"
	"errors"
	"fmt"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"go.uber.org/multierr"

	"baro-go/drivers/mpl3115a2"
)

func TestMapDriverErr(t *testing.T) {
	nak := errors.New("nak")
	busFail := multierr.Append(pkgerrors.Wrap(mpl3115a2.ErrBus, "read 0x26"), nak)
	cases := []struct {
		err  error
		want Code
	}{
		{nil, OK},
		{mpl3115a2.ErrDeviceUnavailable, DeviceUnavailable},
		{multierr.Append(pkgerrors.Wrap(mpl3115a2.ErrAddressNotFound, "0x60"), nak), AddressNotFound},
		{pkgerrors.Wrap(mpl3115a2.ErrUnexpectedDevice, "WHO_AM_I=0x55"), UnexpectedDevice},
		{pkgerrors.Wrapf(mpl3115a2.ErrTimeout, "reset: %d polls", 200), Timeout},
		{multierr.Append(pkgerrors.Wrap(mpl3115a2.ErrTimeout, "one-shot: 3 polls"), context.Canceled), Timeout},
		{context.DeadlineExceeded, Timeout},
		{mpl3115a2.ErrNotReady, NotReady},
		{mpl3115a2.ErrClosed, Closed},
		{busFail, BusError},
		{errors.New("something else"), Error},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MapDriverErr(tc.err), "%v", tc.err)
	}
}

func TestOf(t *testing.T) {
	assert.Equal(t, OK, Of(nil))
	assert.Equal(t, Busy, Of(Busy))
	assert.Equal(t, Busy, Of(fmt.Errorf("submit: %w", Busy)))

	e := Wrap(UnknownBus, "build", errors.New("no backend \"x\""))
	assert.Equal(t, UnknownBus, Of(e))
	assert.Equal(t, `build: unknown_bus: no backend "x"`, e.Error())
	assert.Nil(t, Wrap(UnknownBus, "build", nil))

	assert.Equal(t, Timeout, Of(pkgerrors.Wrap(mpl3115a2.ErrTimeout, "data ready")))
}

// A code in the chain wins over the driver sentinel it wraps.
func TestOfPrefersCodeInChain(t *testing.T) {
	retry := fmt.Errorf("%w: %w", NotReady, mpl3115a2.ErrNotReady)
	assert.Equal(t, NotReady, Of(retry))

	build := pkgerrors.Wrapf(InvalidParams, "addr 0x%x", 0x200)
	wrapped := Wrap(Of(build), `device "d"`, build)
	assert.Equal(t, InvalidParams, Of(wrapped))
	assert.Equal(t, `device "d": invalid_params: addr 0x200: invalid_params`, wrapped.Error())
}
