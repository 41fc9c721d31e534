package mpl3115a2

import (
	"errors"
	"time"
)

type opKind uint8

const (
	opAddrCheck opKind = iota
	opRead
	opWrite
	opBlock
)

type op struct {
	kind opKind
	reg  byte
	val  byte
}

// fakeBus is a scripted register file. Reads of a register pop from its
// script first and fall back to the stored value. Writes to CTRL_REG1 are
// logged as written but stored with RST/OST already cleared.
type fakeBus struct {
	regs   map[byte]byte
	script map[byte][]byte
	failOn map[byte]error
	nack   bool
	ops    []op
	closed int
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		regs:   map[byte]byte{regWhoAmI: DeviceID},
		script: map[byte][]byte{},
		failOn: map[byte]error{},
	}
}

var errNack = errors.New("nack")

func (f *fakeBus) Tx(addr uint16, w, r []byte) error {
	if f.nack {
		return errNack
	}
	switch {
	case len(w) == 0:
		f.ops = append(f.ops, op{kind: opAddrCheck})
		return nil
	case len(w) == 2:
		f.ops = append(f.ops, op{kind: opWrite, reg: w[0], val: w[1]})
		if err := f.failOn[w[0]]; err != nil {
			return err
		}
		v := w[1]
		if w[0] == regCtrlReg1 {
			v &^= ctrlRST | ctrlOST
		}
		f.regs[w[0]] = v
		return nil
	case len(r) == 1:
		if err := f.failOn[w[0]]; err != nil {
			f.ops = append(f.ops, op{kind: opRead, reg: w[0]})
			return err
		}
		v := f.regs[w[0]]
		if q := f.script[w[0]]; len(q) > 0 {
			v = q[0]
			f.script[w[0]] = q[1:]
		}
		f.ops = append(f.ops, op{kind: opRead, reg: w[0], val: v})
		r[0] = v
		return nil
	default:
		f.ops = append(f.ops, op{kind: opBlock, reg: w[0]})
		for i := range r {
			r[i] = f.regs[w[0]+byte(i)]
		}
		return nil
	}
}

func (f *fakeBus) Close() error {
	f.closed++
	return nil
}

// since returns the ops logged after mark.
func (f *fakeBus) since(mark int) []op { return f.ops[mark:] }

// reads counts reads of reg in ops.
func reads(ops []op, reg byte) int {
	n := 0
	for _, o := range ops {
		if o.kind == opRead && o.reg == reg {
			n++
		}
	}
	return n
}

func writes(ops []op) []op {
	var out []op
	for _, o := range ops {
		if o.kind == opWrite {
			out = append(out, o)
		}
	}
	return out
}

type sleepCounter struct{ n int }

func (s *sleepCounter) sleep(time.Duration) { s.n++ }

func testConfig(s *sleepCounter) Config {
	return Config{Sleep: s.sleep, MaxPolls: 50}
}
