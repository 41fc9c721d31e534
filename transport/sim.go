package transport

import (
	"errors"
	"sync"
)

// BackendSim is the name the simulated MPL3115A2 backend registers under
// (see drivers/mpl3115a2/mplsim).
const BackendSim = "sim"

var (
	// ErrNack is returned by SimBus when nothing answers at the address.
	ErrNack = errors.New("sim: address not acknowledged")
	// ErrClosed is returned by SimBus after Close.
	ErrClosed = errors.New("sim: bus closed")
)

// SimTarget is a register-file device attached to a SimBus.
type SimTarget interface {
	ReadReg(reg byte) byte
	WriteReg(reg, v byte)
}

// SimBus is an in-memory I²C bus with register-pointer semantics: the first
// written byte selects the register, further written bytes are stored with
// auto-increment, and reads continue from the pointer.
type SimBus struct {
	mu      sync.Mutex
	targets map[uint16]SimTarget
	ptr     map[uint16]byte
	closed  bool
	closes  int
}

func NewSimBus() *SimBus {
	return &SimBus{targets: map[uint16]SimTarget{}, ptr: map[uint16]byte{}}
}

// Attach places t at addr, replacing any previous target.
func (b *SimBus) Attach(addr uint16, t SimTarget) {
	b.mu.Lock()
	b.targets[addr] = t
	b.mu.Unlock()
}

func (b *SimBus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	t, ok := b.targets[addr]
	if !ok {
		return ErrNack
	}
	p := b.ptr[addr]
	if len(w) > 0 {
		p = w[0]
		for _, v := range w[1:] {
			t.WriteReg(p, v)
			p++
		}
	}
	for i := range r {
		r[i] = t.ReadReg(p)
		p++
	}
	b.ptr[addr] = p
	return nil
}

func (b *SimBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closes++
	b.closed = true
	return nil
}

// Closes reports how many times Close was called.
func (b *SimBus) Closes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closes
}
