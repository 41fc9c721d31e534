// Package mplsim is a register-level model of the MPL3115A2 for host builds.
// It registers the "sim" transport backend: every bus opened through it
// carries one simulated part at the default address.
package mplsim

import (
	"math"
	"sync"

	"baro-go/transport"
)

// Register addresses and bits used by the model (datasheet values).
const (
	regStatus    = 0x00
	regOutPMSB   = 0x01
	regOutTMSB   = 0x04
	regOutTLSB   = 0x05
	regWhoAmI    = 0x0C
	regPTDataCfg = 0x13
	regCtrlReg1  = 0x26

	ctrlOST = 0x02
	ctrlRST = 0x04
	ctrlALT = 0x80

	statusTDR  = 0x02
	statusPDR  = 0x04
	statusPTDR = 0x08

	// Address is where the backend attaches its chip.
	Address = 0x60
)

// Env is what the simulated part measures.
type Env struct {
	PressureHPa  float64
	AltitudeM    float64
	TemperatureC float64
}

// DefaultEnv is standard sea-level air at 21.5 °C and a 120.5 m field.
var DefaultEnv = Env{PressureHPa: 1013.25, AltitudeM: 120.5, TemperatureC: 21.5}

// Chip models CTRL_REG1/STATUS behaviour: RST and OST self-clear after a
// number of register reads, and the output block is latched when a
// conversion finishes.
type Chip struct {
	mu sync.Mutex

	env Env
	id  byte

	// ResetReads is how many CTRL_REG1 reads still report RST after a reset.
	ResetReads int
	// ConversionReads is how many CTRL_REG1/STATUS reads a conversion takes.
	ConversionReads int

	regs       [256]byte
	resetLeft  int
	convLeft   int
	converting bool
	triggers   int
}

// NewChip returns a chip reporting env with the genuine WHO_AM_I value.
func NewChip(env Env) *Chip {
	c := &Chip{env: env, id: 0xC4, ResetReads: 2, ConversionReads: 1}
	c.regs[regWhoAmI] = c.id
	return c
}

// SetEnv changes what the next conversion reports.
func (c *Chip) SetEnv(env Env) {
	c.mu.Lock()
	c.env = env
	c.mu.Unlock()
}

// SetWhoAmI makes the part pretend to be something else.
func (c *Chip) SetWhoAmI(id byte) {
	c.mu.Lock()
	c.id = id
	c.regs[regWhoAmI] = id
	c.mu.Unlock()
}

// Triggers counts one-shot conversions started since creation.
func (c *Chip) Triggers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.triggers
}

// Ctrl returns the raw CTRL_REG1 value.
func (c *Chip) Ctrl() byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regs[regCtrlReg1]
}

// PTDataCfg returns the raw PT_DATA_CFG value.
func (c *Chip) PTDataCfg() byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regs[regPTDataCfg]
}

func (c *Chip) ReadReg(reg byte) byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch reg {
	case regCtrlReg1:
		if c.resetLeft > 0 {
			c.resetLeft--
			return ctrlRST
		}
		c.tick()
		return c.regs[regCtrlReg1]
	case regStatus:
		c.tick()
		return c.regs[regStatus]
	case regOutPMSB:
		c.regs[regStatus] &^= statusPDR | statusPTDR
	case regOutTMSB:
		c.regs[regStatus] &^= statusTDR
	}
	return c.regs[reg]
}

func (c *Chip) WriteReg(reg, v byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch reg {
	case regWhoAmI, regStatus:
		// read-only
	case regCtrlReg1:
		if v&ctrlRST != 0 {
			c.regs = [256]byte{}
			c.regs[regWhoAmI] = c.id
			c.converting = false
			c.resetLeft = c.ResetReads
			return
		}
		start := v&ctrlOST != 0 && c.regs[regCtrlReg1]&ctrlOST == 0
		c.regs[regCtrlReg1] = v
		if start {
			c.triggers++
			c.converting = true
			c.convLeft = c.ConversionReads
			c.regs[regStatus] = 0
		}
	default:
		c.regs[reg] = v
	}
}

// tick advances a running conversion by one read.
func (c *Chip) tick() {
	if !c.converting {
		return
	}
	if c.convLeft > 0 {
		c.convLeft--
		return
	}
	c.converting = false
	c.latch()
	c.regs[regCtrlReg1] &^= ctrlOST
	c.regs[regStatus] |= statusPDR | statusTDR | statusPTDR
}

func (c *Chip) latch() {
	if c.regs[regCtrlReg1]&ctrlALT != 0 {
		// Q16.8 metres, two's complement.
		raw := uint32(int32(math.Round(c.env.AltitudeM * 256)))
		c.regs[regOutPMSB] = byte(raw >> 16)
		c.regs[regOutPMSB+1] = byte(raw >> 8)
		c.regs[regOutPMSB+2] = byte(raw)
	} else {
		raw := uint32(math.Round(c.env.PressureHPa * 6400))
		c.regs[regOutPMSB] = byte(raw >> 16)
		c.regs[regOutPMSB+1] = byte(raw >> 8)
		c.regs[regOutPMSB+2] = byte(raw)
	}
	t := uint16(int16(math.Round(c.env.TemperatureC * 256)))
	c.regs[regOutTMSB] = byte(t >> 8)
	c.regs[regOutTLSB] = byte(t)
}

var (
	chipsMu sync.Mutex
	chips   = map[string]*Chip{}
)

func init() {
	transport.Register(transport.BackendSim, transport.OpenerFunc(open))
}

// Lookup returns the chip behind a sim bus id once that bus has been opened.
func Lookup(id string) (*Chip, bool) {
	chipsMu.Lock()
	defer chipsMu.Unlock()
	c, ok := chips[id]
	return c, ok
}

// open gives every bus id its own persistent chip so reopening a bus finds
// the same part again.
func open(id string) (transport.Conn, error) {
	chipsMu.Lock()
	c, ok := chips[id]
	if !ok {
		c = NewChip(DefaultEnv)
		chips[id] = c
	}
	chipsMu.Unlock()

	b := transport.NewSimBus()
	b.Attach(Address, c)
	return b, nil
}
