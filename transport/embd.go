//go:build linux

package transport

import (
	"strconv"
	"strings"
	"sync"

	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/all" // host detection for InitI2C
	"github.com/pkg/errors"
)

// BackendEmbd opens buses through kidoman/embd. The id is the numeric bus
// index ("1" or "i2c-1").
const BackendEmbd = "embd"

func init() {
	Register(BackendEmbd, OpenerFunc(openEmbd))
}

func openEmbd(id string) (Conn, error) {
	n, err := strconv.ParseUint(strings.TrimPrefix(id, "i2c-"), 10, 8)
	if err != nil {
		return nil, errors.Wrapf(err, "embd: bad bus id %q", id)
	}
	if err := embd.InitI2C(); err != nil {
		return nil, errors.Wrap(err, "embd: init i2c")
	}
	return &embdConn{bus: embd.NewI2CBus(byte(n))}, nil
}

// embdConn maps the Tx shape onto embd's register calls. embd only speaks
// 8-bit addresses, which is all a 7-bit device needs.
type embdConn struct {
	mu     sync.Mutex
	bus    embd.I2CBus
	closed bool
}

func (c *embdConn) Tx(addr uint16, w, r []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("embd: bus closed")
	}
	a := byte(addr)
	switch {
	case len(w) == 1 && len(r) > 0:
		return c.bus.ReadFromReg(a, w[0], r)
	case len(w) == 0 && len(r) == 1:
		b, err := c.bus.ReadByte(a)
		if err != nil {
			return err
		}
		r[0] = b
		return nil
	case len(w) == 0 && len(r) > 1:
		b, err := c.bus.ReadBytes(a, len(r))
		if err != nil {
			return err
		}
		copy(r, b)
		return nil
	case len(w) == 1:
		return c.bus.WriteByte(a, w[0])
	case len(w) > 1 && len(r) == 0:
		return c.bus.WriteToReg(a, w[0], w[1:])
	case len(w) == 0 && len(r) == 0:
		return nil
	default:
		// Multi-byte write followed by read has no embd equivalent.
		return errors.New("embd: unsupported transaction shape")
	}
}

func (c *embdConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.bus.Close()
}
