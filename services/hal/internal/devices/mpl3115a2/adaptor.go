// services/hal/internal/devices/mpl3115a2/adaptor.go
package mpl3115a2

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"baro-go/drivers/mpl3115a2"
	"baro-go/services/hal/internal/halcore"
	"baro-go/types"
)

// adaptor exposes one MPL3115A2 as two capabilities: the mode channel
// (pressure or altitude) and temperature.
type adaptor struct {
	mu   sync.Mutex
	id   string
	dev  *mpl3115a2.Device
	mode mpl3115a2.Mode
	info types.SensorInfo
	now  func() time.Time

	s mpl3115a2.Sample
}

func (a *adaptor) ID() string { return a.id }

// kind is the capability served by the pressure/altitude channel.
func (a *adaptor) kind() types.Kind {
	if a.mode == mpl3115a2.ModeAltimeter {
		return types.KindAltitude
	}
	return types.KindPressure
}

func (a *adaptor) Capabilities() []halcore.CapInfo {
	main := a.info
	main.Unit = a.kind().Unit()
	temp := a.info
	temp.Unit = types.KindTemperature.Unit()
	return []halcore.CapInfo{
		{Kind: string(a.kind()), Info: main},
		{Kind: string(types.KindTemperature), Info: temp},
	}
}

func (a *adaptor) Trigger(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.dev.TriggerContext(ctx, a.mode); err != nil {
		return 0, err
	}
	return a.dev.ConversionTime(), nil
}

func (a *adaptor) Collect(ctx context.Context) (halcore.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.dev.Collect(&a.s); err != nil {
		if errors.Is(err, mpl3115a2.ErrNotReady) {
			return nil, fmt.Errorf("%w: %w", halcore.ErrNotReady, err)
		}
		return nil, err
	}
	ts := a.now().UnixMilli()
	v := a.s.Pressure
	if a.s.Mode == mpl3115a2.ModeAltimeter {
		v = a.s.Altitude
	}
	return halcore.Sample{
		{Kind: string(a.kind()), Payload: a.measurement(a.kind(), v, ts), TsMs: ts},
		{Kind: string(types.KindTemperature), Payload: a.measurement(types.KindTemperature, a.s.Temperature, ts), TsMs: ts},
	}, nil
}

func (a *adaptor) measurement(k types.Kind, v float64, ts int64) types.Measurement {
	return types.Measurement{Device: a.id, Value: v, Unit: k.Unit(), TsMs: ts}
}

func (a *adaptor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dev.Close()
}
