// Package mpl3115a2 provides a driver for the NXP MPL3115A2 barometric
// pressure/altitude and temperature sensor.
//
// Every measurement is a one-shot conversion:
//
//	mode select -> OST trigger -> poll STATUS -> read OUT_P_MSB..OUT_T_LSB -> decode
//
// Pressure, Altitude and Temperature run the whole cycle and block until it
// completes. Trigger and Collect split it in two for callers that schedule
// their own waits (the HAL measure worker does).
//
// Waits poll every Config.PollInterval (5 ms) and give up with ErrTimeout
// after Config.MaxPolls reads. Set MaxPolls < 0 to poll for as long as
// the chip takes.
package mpl3115a2

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"baro-go/transport"
)

// Errors returned by the driver.
var (
	ErrDeviceUnavailable = errors.New("mpl3115a2: device unavailable")
	ErrAddressNotFound   = errors.New("mpl3115a2: address not found")
	ErrUnexpectedDevice  = errors.New("mpl3115a2: unexpected device")
	ErrTimeout           = errors.New("mpl3115a2: timeout")
	ErrBus               = errors.New("mpl3115a2: bus error")
	ErrNotReady          = errors.New("mpl3115a2: not ready")
	ErrClosed            = errors.New("mpl3115a2: closed")
	ErrInvalidConfig     = errors.New("mpl3115a2: invalid config")
)

const (
	defaultPollInterval = 5 * time.Millisecond
	defaultMaxPolls     = 200
	defaultOversample   = 128
)

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// PollInterval is the sleep between reads in every wait. Default 5 ms.
	PollInterval time.Duration
	// MaxPolls bounds each wait (reset, trigger, data ready). Default 200.
	// Negative means wait forever.
	MaxPolls int
	// OversampleRatio is 1, 2, 4 ... 128. Default 128.
	OversampleRatio int
	// SignedDecode reads altitude and temperature as two's complement.
	// Off by default, so both decode as unsigned words.
	SignedDecode bool
	// Sleep replaces time.Sleep, mostly for tests.
	Sleep func(time.Duration)
	// Logger receives debug output. Default zap.NewNop().
	Logger *zap.Logger
}

// Validate checks the fields that have no sane fallback.
func (c Config) Validate() error {
	if c.PollInterval < 0 {
		return errors.Wrap(ErrInvalidConfig, "negative poll interval")
	}
	if c.OversampleRatio != 0 {
		if _, ok := oversamplingFromRatio(c.OversampleRatio); !ok {
			return errors.Wrapf(ErrInvalidConfig, "oversample ratio %d", c.OversampleRatio)
		}
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.PollInterval == 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.MaxPolls == 0 {
		c.MaxPolls = defaultMaxPolls
	}
	if c.OversampleRatio == 0 {
		c.OversampleRatio = defaultOversample
	}
	if c.Sleep == nil {
		c.Sleep = time.Sleep
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

func oversamplingFromRatio(r int) (Oversampling, bool) {
	for o := OS1; o <= OS128; o++ {
		if o.Ratio() == r {
			return o, true
		}
	}
	return 0, false
}

// Device is an open MPL3115A2. It owns its bus connection.
//
// A Device is not safe for concurrent use: the chip holds a single
// conversion state, so callers must serialise Pressure, Altitude,
// Temperature, Trigger and Collect on one Device.
type Device struct {
	bus  transport.Conn
	addr uint16
	cfg  Config
	os   Oversampling
	log  *zap.Logger

	ctrl   CtrlReg1 // last CTRL_REG1 value read or written
	closed bool

	// Fixed buffers reused across calls.
	w   [2]byte
	r   [1]byte
	out OutputBlock
}

// Open opens busID through o and builds a Device at addr.
// The connection is closed again if any construction step fails.
func Open(o transport.Opener, busID string, addr uint8, cfg Config) (*Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if o == nil {
		return nil, errors.Wrap(ErrDeviceUnavailable, "no bus opener")
	}
	conn, err := o.Open(busID)
	if err != nil {
		return nil, multierr.Append(errors.Wrapf(ErrDeviceUnavailable, "bus %q", busID), err)
	}
	return New(conn, addr, cfg)
}

// New takes ownership of conn, verifies WHO_AM_I, soft-resets the part and
// leaves it in standby, altimeter mode, with data-ready flags enabled.
// On error conn has been closed.
func New(conn transport.Conn, addr uint8, cfg Config) (dev *Device, err error) {
	if conn == nil {
		return nil, errors.Wrap(ErrDeviceUnavailable, "nil bus")
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, conn.Close())
			dev = nil
		}
	}()
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	os, _ := oversamplingFromRatio(cfg.OversampleRatio)

	d := &Device{
		bus:  conn,
		addr: uint16(addr & 0x7f),
		cfg:  cfg,
		os:   os,
		log:  cfg.Logger.With(zap.String("driver", "mpl3115a2"), zap.Uint16("addr", uint16(addr&0x7f))),
	}
	if err = d.checkAddress(); err != nil {
		return nil, err
	}
	if err = d.checkID(); err != nil {
		return nil, err
	}
	if err = d.reset(); err != nil {
		return nil, err
	}
	if err = d.configure(); err != nil {
		return nil, err
	}
	return d, nil
}

// Address returns the 7-bit bus address.
func (d *Device) Address() uint16 { return d.addr }

// Oversampling returns the configured oversampling ratio.
func (d *Device) Oversampling() Oversampling { return d.os }

// ConversionTime is the worst-case conversion time at the configured
// oversampling, a hint for callers scheduling Collect.
func (d *Device) ConversionTime() time.Duration { return d.os.ConversionTime() }

// Close releases the bus. Further calls return nil.
func (d *Device) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.bus.Close()
}

// ---------------- Construction steps ----------------

func (d *Device) checkAddress() error {
	if err := d.bus.Tx(d.addr, nil, d.r[:1]); err != nil {
		return multierr.Append(errors.Wrapf(ErrAddressNotFound, "0x%02x", d.addr), err)
	}
	return nil
}

func (d *Device) checkID() error {
	id, err := d.readReg(regWhoAmI)
	if err != nil {
		return err
	}
	if id != DeviceID {
		return errors.Wrapf(ErrUnexpectedDevice, "WHO_AM_I=0x%02x, want 0x%02x", id, DeviceID)
	}
	return nil
}

func (d *Device) reset() error {
	// The part reboots straight away and usually NAKs the reset write.
	if err := d.writeReg(regCtrlReg1, ctrlRST); err != nil {
		d.log.Debug("reset write not acknowledged", zap.Error(err))
	}
	var last error
	err := d.poll(context.Background(), "reset", func() (bool, error) {
		v, err := d.readReg(regCtrlReg1)
		if err != nil {
			last = err
			return false, nil
		}
		d.ctrl = CtrlReg1(v)
		return !d.ctrl.Reset(), nil
	})
	if err != nil {
		return multierr.Append(err, last)
	}
	d.log.Debug("reset complete")
	return nil
}

func (d *Device) configure() error {
	d.ctrl = CtrlReg1(0).WithOversampling(d.os).WithAltimeter(true)
	if err := d.writeReg(regCtrlReg1, byte(d.ctrl)); err != nil {
		return err
	}
	return d.writeReg(regPTDataCfg, ptTDEFE|ptPDEFE|ptDREM)
}

// ---------------- Measurement ----------------

// Pressure runs a barometer conversion and returns the raw reading / 6400
// (hPa for the chip's Q18.2 pascal encoding).
func (d *Device) Pressure() (float64, error) {
	s, err := d.measure(ModeBarometer, true)
	return s.Pressure, err
}

// Altitude runs an altimeter conversion and returns metres.
func (d *Device) Altitude() (float64, error) {
	s, err := d.measure(ModeAltimeter, true)
	return s.Altitude, err
}

// Temperature runs a conversion in whatever mode is currently selected and
// returns °C. The temperature channel does not depend on the mode.
func (d *Device) Temperature() (float64, error) {
	s, err := d.measure(0, false)
	return s.Temperature, err
}

// Read runs one conversion in mode m and returns the whole sample.
func (d *Device) Read(m Mode) (Sample, error) {
	return d.measure(m, true)
}

func (d *Device) measure(m Mode, setMode bool) (Sample, error) {
	if d.closed {
		return Sample{}, ErrClosed
	}
	if setMode {
		if err := d.setMode(m); err != nil {
			return Sample{}, err
		}
	}
	ctx := context.Background()
	if err := d.oneShot(ctx); err != nil {
		return Sample{}, err
	}
	if err := d.awaitCompletion(ctx, statusAnyReady); err != nil {
		return Sample{}, err
	}
	if err := d.readBlock(regOutPMSB, d.out[:]); err != nil {
		return Sample{}, err
	}
	return d.decode(d.ctrl.Mode(), d.out), nil
}

// Trigger selects mode m and starts one conversion. It returns once the
// trigger is written; use Collect to fetch the result.
func (d *Device) Trigger(m Mode) error {
	return d.TriggerContext(context.Background(), m)
}

// TriggerContext is Trigger with the wait for a pending conversion also
// ending when ctx is done.
func (d *Device) TriggerContext(ctx context.Context, m Mode) error {
	if d.closed {
		return ErrClosed
	}
	if err := d.setMode(m); err != nil {
		return err
	}
	return d.oneShot(ctx)
}

// Collect checks STATUS once. It returns ErrNotReady while no data-ready bit
// is set, otherwise reads and decodes the output block into out.
func (d *Device) Collect(out *Sample) error {
	if d.closed {
		return ErrClosed
	}
	st, err := d.readReg(regStatus)
	if err != nil {
		return err
	}
	if st&statusAnyReady == 0 {
		return ErrNotReady
	}
	if err := d.readBlock(regOutPMSB, d.out[:]); err != nil {
		return err
	}
	if out != nil {
		*out = d.decode(d.ctrl.Mode(), d.out)
	}
	return nil
}

// setMode flips only CTRL_REG1.ALT, starting from the live register value.
func (d *Device) setMode(m Mode) error {
	v, err := d.readReg(regCtrlReg1)
	if err != nil {
		return err
	}
	d.ctrl = CtrlReg1(v).WithMode(m)
	return d.writeReg(regCtrlReg1, byte(d.ctrl))
}

// oneShot waits for any pending OST to clear, then sets it.
func (d *Device) oneShot(ctx context.Context) error {
	err := d.poll(ctx, "one-shot", func() (bool, error) {
		v, err := d.readReg(regCtrlReg1)
		if err != nil {
			return false, err
		}
		d.ctrl = CtrlReg1(v)
		return !d.ctrl.OneShot(), nil
	})
	if err != nil {
		return err
	}
	d.ctrl = d.ctrl.WithOneShot(true)
	return d.writeReg(regCtrlReg1, byte(d.ctrl))
}

// awaitCompletion polls STATUS until any bit of mask is set.
// A zero mask means pressure/altitude or temperature ready.
func (d *Device) awaitCompletion(ctx context.Context, mask byte) error {
	if mask == 0 {
		mask = statusAnyReady
	}
	return d.poll(ctx, "data ready", func() (bool, error) {
		st, err := d.readReg(regStatus)
		if err != nil {
			return false, err
		}
		return st&mask != 0, nil
	})
}

// poll calls done until it reports true, sleeping PollInterval between
// calls. After MaxPolls calls, or once ctx is done, it gives up with
// ErrTimeout.
func (d *Device) poll(ctx context.Context, what string, done func() (bool, error)) error {
	for n := 1; ; n++ {
		ok, err := done()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if d.cfg.MaxPolls >= 0 && n >= d.cfg.MaxPolls {
			d.log.Debug("poll gave up", zap.String("wait", what), zap.Int("polls", n))
			return errors.Wrapf(ErrTimeout, "%s: %d polls", what, n)
		}
		if err := ctx.Err(); err != nil {
			d.log.Debug("poll cancelled", zap.String("wait", what), zap.Int("polls", n))
			return multierr.Append(errors.Wrapf(ErrTimeout, "%s: %d polls", what, n), err)
		}
		d.cfg.Sleep(d.cfg.PollInterval)
	}
}

// ---------------- Register access ----------------

// busErr keeps both ErrBus and the transport's own error in the chain.
func busErr(cause error, format string, args ...any) error {
	return multierr.Append(errors.Wrapf(ErrBus, format, args...), cause)
}

func (d *Device) readReg(reg byte) (byte, error) {
	d.w[0] = reg
	if err := d.bus.Tx(d.addr, d.w[:1], d.r[:1]); err != nil {
		return 0, busErr(err, "read 0x%02x", reg)
	}
	return d.r[0], nil
}

func (d *Device) writeReg(reg, v byte) error {
	d.w[0] = reg
	d.w[1] = v
	if err := d.bus.Tx(d.addr, d.w[:2], nil); err != nil {
		return busErr(err, "write 0x%02x", reg)
	}
	return nil
}

func (d *Device) readBlock(reg byte, p []byte) error {
	d.w[0] = reg
	if err := d.bus.Tx(d.addr, d.w[:1], p); err != nil {
		return busErr(err, "read block 0x%02x", reg)
	}
	return nil
}
