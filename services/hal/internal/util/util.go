// services/hal/internal/util/util.go
package util

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

func ResetTimer(t *clock.Timer, d time.Duration) {
	if d < 0 {
		d = 0
	}
	if !t.Stop() {
		DrainTimer(t)
	}
	t.Reset(d)
}

func DrainTimer(t *clock.Timer) {
	select {
	case <-t.C:
	default:
	}
}

// DecodeParams fills dst from a free-form params map. Durations may be given
// as strings ("5ms"); unknown keys are an error.
func DecodeParams[T any](src map[string]any, dst *T) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           dst,
	})
	if err != nil {
		return errors.Wrap(err, "params decoder")
	}
	return dec.Decode(src)
}

func ClampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
