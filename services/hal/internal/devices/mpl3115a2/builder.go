// services/hal/internal/devices/mpl3115a2/builder.go
package mpl3115a2

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"baro-go/drivers/mpl3115a2"
	"baro-go/services/hal/internal/halerr"
	"baro-go/services/hal/internal/registry"
	"baro-go/services/hal/internal/util"
	"baro-go/types"
)

// Type is the device type name used in configuration.
const Type = "mpl3115a2"

// Register this device type with the registry.
func init() {
	registry.RegisterBuilder(Type, builder{})
}

// Params: { addr: 0x60, mode: barometer, oversampling: 128,
// poll_interval: 5ms, max_polls: 200, signed: false }
type Params struct {
	Addr         int           `mapstructure:"addr"`
	Mode         string        `mapstructure:"mode"`
	Oversampling int           `mapstructure:"oversampling"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxPolls     int           `mapstructure:"max_polls"`
	Signed       bool          `mapstructure:"signed"`
}

func parseMode(s string) (mpl3115a2.Mode, error) {
	switch s {
	case "", "barometer", "pressure":
		return mpl3115a2.ModeBarometer, nil
	case "altimeter", "altitude":
		return mpl3115a2.ModeAltimeter, nil
	}
	return 0, errors.Wrapf(halerr.ErrInvalidMode, "%q", s)
}

type builder struct{}

func (builder) Build(in registry.BuildInput) (registry.BuildOutput, error) {
	if in.Bus.Backend == "" {
		return registry.BuildOutput{}, halerr.ErrMissingBusRef
	}
	opener, ok := in.Buses.Opener(in.Bus.Backend)
	if !ok {
		return registry.BuildOutput{}, errors.Wrapf(halerr.ErrUnknownBus, "%q", in.Bus.Backend)
	}

	var p Params
	if err := util.DecodeParams(in.Params, &p); err != nil {
		return registry.BuildOutput{}, errors.Wrapf(halerr.ErrInvalidParams, "%s: %v", in.DeviceID, err)
	}
	if p.Addr == 0 {
		p.Addr = mpl3115a2.AddressDefault
	}
	if p.Addr < 0 || p.Addr > 0x7f {
		return registry.BuildOutput{}, errors.Wrapf(halerr.ErrInvalidParams, "addr 0x%x", p.Addr)
	}
	mode, err := parseMode(p.Mode)
	if err != nil {
		return registry.BuildOutput{}, err
	}

	log := in.Logger
	if log == nil {
		log = zap.NewNop()
	}
	dev, err := mpl3115a2.Open(opener, in.Bus.ID, uint8(p.Addr), mpl3115a2.Config{
		PollInterval:    p.PollInterval,
		MaxPolls:        p.MaxPolls,
		OversampleRatio: p.Oversampling,
		SignedDecode:    p.Signed,
		Logger:          log.With(zap.String("device", in.DeviceID)),
	})
	if err != nil {
		return registry.BuildOutput{}, err
	}

	ad := &adaptor{
		id:   in.DeviceID,
		dev:  dev,
		mode: mode,
		now:  time.Now,
		info: types.SensorInfo{
			Device:       in.DeviceID,
			Sensor:       Type,
			Addr:         dev.Address(),
			Bus:          in.Bus.Key(),
			Oversampling: dev.Oversampling().Ratio(),
		},
	}
	// A period shorter than one conversion would only queue duplicate triggers.
	every := in.SampleEvery
	if every > 0 && every < dev.ConversionTime() {
		every = dev.ConversionTime()
	}
	return registry.BuildOutput{
		Adaptor:     ad,
		BusID:       in.Bus.Key(),
		SampleEvery: every,
	}, nil
}
