package mpl3115a2

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baro-go/drivers/mpl3115a2/mplsim"
	"baro-go/transport"
)

func newTestDevice(t *testing.T, bus *fakeBus, s *sleepCounter) *Device {
	t.Helper()
	d, err := New(bus, AddressDefault, testConfig(s))
	require.NoError(t, err)
	require.NotNil(t, d)
	return d
}

func TestNewConfiguresPart(t *testing.T) {
	bus := newFakeBus()
	d := newTestDevice(t, bus, &sleepCounter{})

	require.Equal(t, opAddrCheck, bus.ops[0].kind)
	assert.Equal(t, []op{
		{kind: opWrite, reg: regCtrlReg1, val: ctrlRST},
		{kind: opWrite, reg: regCtrlReg1, val: 0xB8}, // OS128 | ALT
		{kind: opWrite, reg: regPTDataCfg, val: ptTDEFE | ptPDEFE | ptDREM},
	}, writes(bus.ops))
	assert.Equal(t, OS128, d.Oversampling())
	assert.Equal(t, uint16(AddressDefault), d.Address())
	assert.Zero(t, bus.closed)
}

func TestNewMasksAddressTo7Bits(t *testing.T) {
	d, err := New(newFakeBus(), 0x80|AddressDefault, Config{Sleep: func(_ time.Duration) {}})
	require.NoError(t, err)
	assert.Equal(t, uint16(AddressDefault), d.Address())
}

func TestNewWaitsForResetToClear(t *testing.T) {
	bus := newFakeBus()
	bus.script[regCtrlReg1] = []byte{ctrlRST, ctrlRST, ctrlRST, 0}
	s := &sleepCounter{}
	newTestDevice(t, bus, s)

	// Reads of CTRL_REG1 between the reset write and the configuration write.
	var between []op
	seenReset := false
	for _, o := range bus.ops {
		if o.kind == opWrite && o.reg == regCtrlReg1 {
			if o.val == ctrlRST {
				seenReset = true
				continue
			}
			break
		}
		if seenReset {
			between = append(between, o)
		}
	}
	require.True(t, seenReset)
	assert.Equal(t, 4, reads(between, regCtrlReg1))
	assert.Equal(t, byte(0), between[len(between)-1].val&ctrlRST)
	assert.Equal(t, 3, s.n)
}

func TestNewResetToleratesBusErrors(t *testing.T) {
	bus := newFakeBus()
	bus.failOn[regCtrlReg1] = errors.New("nak while rebooting")
	calls := 0
	cfg := Config{
		MaxPolls: 10,
		Sleep: func(time.Duration) {
			calls++
			if calls == 2 {
				delete(bus.failOn, regCtrlReg1)
			}
		},
	}
	_, err := New(bus, AddressDefault, cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestNewResetTimeoutClosesBus(t *testing.T) {
	bus := newFakeBus()
	stuck := make([]byte, 10)
	for i := range stuck {
		stuck[i] = ctrlRST
	}
	bus.script[regCtrlReg1] = stuck
	s := &sleepCounter{}

	d, err := New(bus, AddressDefault, Config{Sleep: s.sleep, MaxPolls: 5})
	require.Error(t, err)
	assert.Nil(t, d)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 1, bus.closed)
	assert.Equal(t, 4, s.n)
}

func TestNewUnexpectedDevice(t *testing.T) {
	bus := newFakeBus()
	bus.regs[regWhoAmI] = 0x55

	d, err := New(bus, AddressDefault, Config{})
	require.Error(t, err)
	assert.Nil(t, d)
	assert.ErrorIs(t, err, ErrUnexpectedDevice)
	assert.Equal(t, 1, bus.closed)
	assert.Empty(t, writes(bus.ops), "nothing written to a foreign chip")
}

func TestNewAddressNotFound(t *testing.T) {
	bus := newFakeBus()
	bus.nack = true

	d, err := New(bus, AddressDefault, Config{})
	require.Error(t, err)
	assert.Nil(t, d)
	assert.ErrorIs(t, err, ErrAddressNotFound)
	assert.ErrorIs(t, err, errNack)
	assert.Equal(t, 1, bus.closed)
}

func TestNewInvalidConfigClosesBus(t *testing.T) {
	bus := newFakeBus()
	_, err := New(bus, AddressDefault, Config{OversampleRatio: 3})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, 1, bus.closed)
	assert.Empty(t, bus.ops)
}

func TestOpen(t *testing.T) {
	t.Run("opener failure", func(t *testing.T) {
		boom := errors.New("no such file")
		o := transport.OpenerFunc(func(string) (transport.Conn, error) { return nil, boom })
		d, err := Open(o, "7", AddressDefault, Config{})
		assert.Nil(t, d)
		assert.ErrorIs(t, err, ErrDeviceUnavailable)
		assert.ErrorIs(t, err, boom)
	})
	t.Run("nil opener", func(t *testing.T) {
		_, err := Open(nil, "1", AddressDefault, Config{})
		assert.ErrorIs(t, err, ErrDeviceUnavailable)
	})
	t.Run("ok", func(t *testing.T) {
		bus := newFakeBus()
		var gotID string
		o := transport.OpenerFunc(func(id string) (transport.Conn, error) {
			gotID = id
			return bus, nil
		})
		d, err := Open(o, "1", AddressDefault, Config{Sleep: func(time.Duration) {}})
		require.NoError(t, err)
		assert.Equal(t, "1", gotID)
		require.NoError(t, d.Close())
		assert.Equal(t, 1, bus.closed)
	})
}

func TestSetModeIsReadModifyWrite(t *testing.T) {
	cases := []struct {
		name string
		live byte
		mode Mode
		want byte
	}{
		{"to altimeter keeps OS, SBYB", 0x39, ModeAltimeter, 0xB9},
		{"to barometer keeps RAW, OS", 0xF8, ModeBarometer, 0x78},
		{"already altimeter", 0x80, ModeAltimeter, 0x80},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bus := newFakeBus()
			d := newTestDevice(t, bus, &sleepCounter{})
			bus.regs[regCtrlReg1] = tc.live
			mark := len(bus.ops)

			require.NoError(t, d.setMode(tc.mode))

			ops := bus.since(mark)
			require.Len(t, ops, 2)
			assert.Equal(t, op{kind: opRead, reg: regCtrlReg1, val: tc.live}, ops[0])
			assert.Equal(t, op{kind: opWrite, reg: regCtrlReg1, val: tc.want}, ops[1])
			assert.Equal(t, tc.live^tc.want, (tc.live^tc.want)&ctrlALT, "only ALT may differ")
		})
	}
}

func TestOneShotWaitsForPendingTrigger(t *testing.T) {
	for _, n := range []int{0, 1, 3, 7} {
		bus := newFakeBus()
		s := &sleepCounter{}
		d := newTestDevice(t, bus, s)
		s.n = 0

		base := byte(0x38) // OS128, barometer
		script := make([]byte, 0, n+1)
		for i := 0; i < n; i++ {
			script = append(script, base|ctrlOST)
		}
		bus.script[regCtrlReg1] = append(script, base)
		mark := len(bus.ops)

		require.NoError(t, d.oneShot(context.Background()))

		ops := bus.since(mark)
		require.Len(t, ops, n+2)
		assert.Equal(t, n+1, reads(ops[:n+1], regCtrlReg1), "n=%d", n)
		assert.Equal(t, op{kind: opWrite, reg: regCtrlReg1, val: base | ctrlOST}, ops[n+1])
		assert.Equal(t, n, s.n)
	}
}

func TestOneShotTimeout(t *testing.T) {
	bus := newFakeBus()
	d := newTestDevice(t, bus, &sleepCounter{})
	stuck := make([]byte, 100)
	for i := range stuck {
		stuck[i] = ctrlOST
	}
	bus.script[regCtrlReg1] = stuck
	mark := len(bus.ops)

	err := d.oneShot(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Empty(t, writes(bus.since(mark)))
}

func TestTriggerContextStopsWaiting(t *testing.T) {
	bus := newFakeBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sleeps, armed := 0, false
	d, err := New(bus, AddressDefault, Config{MaxPolls: -1, Sleep: func(time.Duration) {
		if !armed {
			return
		}
		if sleeps++; sleeps == 3 {
			cancel()
		}
	}})
	require.NoError(t, err)

	stuck := make([]byte, 100)
	for i := range stuck {
		stuck[i] = 0x38 | ctrlOST
	}
	bus.script[regCtrlReg1] = stuck
	armed = true
	mark := len(bus.ops)

	err = d.TriggerContext(ctx, ModeBarometer)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, sleeps)

	// setMode's read and write, then four CTRL_REG1 polls and no trigger write.
	ops := bus.since(mark)
	assert.Equal(t, 5, reads(ops, regCtrlReg1))
	assert.Len(t, writes(ops), 1)
}

func TestAwaitCompletionUsesMask(t *testing.T) {
	bus := newFakeBus()
	s := &sleepCounter{}
	d := newTestDevice(t, bus, s)
	s.n = 0
	bus.script[regStatus] = []byte{0, StatusPTDR, StatusTDR}

	require.NoError(t, d.awaitCompletion(context.Background(), StatusTDR))
	assert.Equal(t, 2, s.n)

	bus.script[regStatus] = []byte{StatusPDR}
	require.NoError(t, d.awaitCompletion(context.Background(), 0))
}

func TestUnboundedPolling(t *testing.T) {
	bus := newFakeBus()
	s := &sleepCounter{}
	d, err := New(bus, AddressDefault, Config{Sleep: s.sleep, MaxPolls: -1})
	require.NoError(t, err)
	s.n = 0
	bus.script[regStatus] = make([]byte, 500) // 500 reads of "not ready"
	bus.regs[regStatus] = StatusPDR

	require.NoError(t, d.awaitCompletion(context.Background(), statusAnyReady|StatusPTDR))
	assert.Equal(t, 500, s.n)
}

func TestPressurePipeline(t *testing.T) {
	bus := newFakeBus()
	d := newTestDevice(t, bus, &sleepCounter{})
	bus.regs[regStatus] = StatusPDR | StatusTDR
	copy5(bus, OutputBlock{0x01, 0x00, 0x00, 0x19, 0x80})
	mark := len(bus.ops)

	p, err := d.Pressure()
	require.NoError(t, err)
	assert.InDelta(t, 10.24, p, 1e-9)

	assert.Equal(t, []op{
		{kind: opRead, reg: regCtrlReg1, val: 0xB8},
		{kind: opWrite, reg: regCtrlReg1, val: 0x38},
		{kind: opRead, reg: regCtrlReg1, val: 0x38},
		{kind: opWrite, reg: regCtrlReg1, val: 0x38 | ctrlOST},
		{kind: opRead, reg: regStatus, val: StatusPDR | StatusTDR},
		{kind: opBlock, reg: regOutPMSB},
	}, bus.since(mark)[0:6])
}

func TestAltitudePipelineSelectsAltimeter(t *testing.T) {
	bus := newFakeBus()
	d := newTestDevice(t, bus, &sleepCounter{})
	bus.regs[regCtrlReg1] = 0x38
	bus.regs[regStatus] = StatusPDR
	copy5(bus, OutputBlock{0x00, 0x01, 0x00, 0, 0})
	mark := len(bus.ops)

	a, err := d.Altitude()
	require.NoError(t, err)
	assert.Equal(t, 1.0, a)
	w := writes(bus.since(mark))
	require.Len(t, w, 2)
	assert.Equal(t, byte(0xB8), w[0].val)
	assert.Equal(t, byte(0xB8|ctrlOST), w[1].val)
}

func TestTemperatureKeepsMode(t *testing.T) {
	bus := newFakeBus()
	d := newTestDevice(t, bus, &sleepCounter{})
	bus.regs[regStatus] = StatusTDR
	copy5(bus, OutputBlock{0, 0, 0, 0x19, 0x80})
	mark := len(bus.ops)

	c, err := d.Temperature()
	require.NoError(t, err)
	assert.Equal(t, 25.5, c)
	w := writes(bus.since(mark))
	require.Len(t, w, 1, "only the trigger is written")
	assert.Equal(t, byte(0xB8|ctrlOST), w[0].val)
}

func TestMeasurementBusError(t *testing.T) {
	bus := newFakeBus()
	d := newTestDevice(t, bus, &sleepCounter{})
	boom := errors.New("arbitration lost")
	bus.failOn[regStatus] = boom

	_, err := d.Pressure()
	assert.ErrorIs(t, err, ErrBus)
	assert.ErrorIs(t, err, boom)
}

func TestTriggerCollect(t *testing.T) {
	bus := newFakeBus()
	d := newTestDevice(t, bus, &sleepCounter{})
	copy5(bus, OutputBlock{0x00, 0x78, 0x80, 0x15, 0x80})

	require.NoError(t, d.Trigger(ModeAltimeter))

	var s Sample
	bus.regs[regStatus] = 0
	assert.ErrorIs(t, d.Collect(&s), ErrNotReady)

	bus.regs[regStatus] = StatusPDR | StatusTDR
	require.NoError(t, d.Collect(&s))
	assert.Equal(t, ModeAltimeter, s.Mode)
	assert.Equal(t, 120.5, s.Altitude)
	assert.Equal(t, 21.5, s.Temperature)
	assert.Zero(t, s.Pressure)
}

func TestCloseIsIdempotent(t *testing.T) {
	bus := newFakeBus()
	d := newTestDevice(t, bus, &sleepCounter{})

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	assert.Equal(t, 1, bus.closed)

	_, err := d.Pressure()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, d.Trigger(ModeBarometer), ErrClosed)
	assert.ErrorIs(t, d.Collect(nil), ErrClosed)
}

func TestSequentialReadsAgainstSimulatedPart(t *testing.T) {
	chip := mplsim.NewChip(mplsim.Env{PressureHPa: 1013.25, AltitudeM: 120.5, TemperatureC: 21.5})
	bus := transport.NewSimBus()
	bus.Attach(mplsim.Address, chip)

	d, err := New(bus, mplsim.Address, Config{Sleep: func(time.Duration) {}})
	require.NoError(t, err)
	defer d.Close()

	p, err := d.Pressure()
	require.NoError(t, err)
	assert.InDelta(t, 1013.25, p, 1e-9)
	assert.Equal(t, 1, chip.Triggers())

	a, err := d.Altitude()
	require.NoError(t, err)
	assert.InDelta(t, 120.5, a, 1e-9)
	assert.Equal(t, 2, chip.Triggers())

	c, err := d.Temperature()
	require.NoError(t, err)
	assert.InDelta(t, 21.5, c, 1e-9)
	assert.Equal(t, 3, chip.Triggers())

	// No caching: a changed environment shows up on the next call.
	chip.SetEnv(mplsim.Env{PressureHPa: 990.5, AltitudeM: 300.25, TemperatureC: 18})
	p, err = d.Pressure()
	require.NoError(t, err)
	assert.InDelta(t, 990.5, p, 1e-9)
	assert.Equal(t, 4, chip.Triggers())
}

func TestSimulatedPartBelowSeaLevel(t *testing.T) {
	chip := mplsim.NewChip(mplsim.Env{PressureHPa: 1020, AltitudeM: -10, TemperatureC: -0.5})
	bus := transport.NewSimBus()
	bus.Attach(mplsim.Address, chip)
	defer bus.Close()

	unsigned, err := New(transport.Conn(noClose{bus}), mplsim.Address, Config{Sleep: func(time.Duration) {}})
	require.NoError(t, err)
	a, err := unsigned.Altitude()
	require.NoError(t, err)
	assert.Equal(t, 65526.0, a)
	c, err := unsigned.Temperature()
	require.NoError(t, err)
	assert.Equal(t, 255.5, c)
	require.NoError(t, unsigned.Close())
	assert.Equal(t, 0, bus.Closes())

	signed, err := New(transport.Conn(noClose{bus}), mplsim.Address, Config{Sleep: func(time.Duration) {}, SignedDecode: true})
	require.NoError(t, err)
	defer signed.Close()
	a, err = signed.Altitude()
	require.NoError(t, err)
	assert.Equal(t, -10.0, a)
	c, err = signed.Temperature()
	require.NoError(t, err)
	assert.Equal(t, -0.5, c)
}

func TestConversionTime(t *testing.T) {
	d, err := New(newFakeBus(), AddressDefault, Config{OversampleRatio: 8, Sleep: func(time.Duration) {}})
	require.NoError(t, err)
	assert.Equal(t, OS8, d.Oversampling())
	assert.Equal(t, 34*time.Millisecond, d.ConversionTime())
}

// noClose keeps a shared sim bus open when one of two devices is dropped.
type noClose struct{ *transport.SimBus }

func (noClose) Close() error { return nil }

func copy5(bus *fakeBus, b OutputBlock) {
	for i, v := range b {
		bus.regs[regOutPMSB+byte(i)] = v
	}
}
