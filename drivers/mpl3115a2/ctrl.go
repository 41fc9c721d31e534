package mpl3115a2

import "time"

// Mode selects how the chip interprets the pressure output registers.
type Mode uint8

const (
	ModeBarometer Mode = 0
	ModeAltimeter Mode = 1
)

func (m Mode) String() string {
	if m == ModeAltimeter {
		return "altimeter"
	}
	return "barometer"
}

// Oversampling is the OS field of CTRL_REG1: ratio = 1 << value.
type Oversampling uint8

const (
	OS1 Oversampling = iota
	OS2
	OS4
	OS8
	OS16
	OS32
	OS64
	OS128
)

// Ratio returns the number of internal samples per conversion.
func (o Oversampling) Ratio() int { return 1 << (o & 0x07) }

// conversionTimes holds the datasheet maximum conversion time per OS value.
var conversionTimes = [8]time.Duration{
	6 * time.Millisecond,
	10 * time.Millisecond,
	18 * time.Millisecond,
	34 * time.Millisecond,
	66 * time.Millisecond,
	130 * time.Millisecond,
	258 * time.Millisecond,
	512 * time.Millisecond,
}

// ConversionTime is the worst-case one-shot conversion time at o.
func (o Oversampling) ConversionTime() time.Duration { return conversionTimes[o&0x07] }

// CtrlReg1 mirrors CTRL_REG1. It is a plain value: only trust it right after
// it was read from the device.
type CtrlReg1 uint8

func (c CtrlReg1) Reset() bool     { return c&ctrlRST != 0 }
func (c CtrlReg1) OneShot() bool   { return c&ctrlOST != 0 }
func (c CtrlReg1) Active() bool    { return c&ctrlSBYB != 0 }
func (c CtrlReg1) Altimeter() bool { return c&ctrlALT != 0 }

func (c CtrlReg1) Oversampling() Oversampling {
	return Oversampling((c & ctrlOS) >> ctrlOSShift)
}

func (c CtrlReg1) Mode() Mode {
	if c.Altimeter() {
		return ModeAltimeter
	}
	return ModeBarometer
}

func (c CtrlReg1) WithOneShot(on bool) CtrlReg1 { return c.with(ctrlOST, on) }

func (c CtrlReg1) WithAltimeter(on bool) CtrlReg1 { return c.with(ctrlALT, on) }

func (c CtrlReg1) WithMode(m Mode) CtrlReg1 { return c.with(ctrlALT, m == ModeAltimeter) }

func (c CtrlReg1) WithOversampling(o Oversampling) CtrlReg1 {
	return c&^ctrlOS | CtrlReg1(o&0x07)<<ctrlOSShift
}

func (c CtrlReg1) with(mask CtrlReg1, on bool) CtrlReg1 {
	if on {
		return c | mask
	}
	return c &^ mask
}
