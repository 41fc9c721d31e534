package main

import (
	"encoding/csv"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"baro-go/drivers/mpl3115a2"
	"baro-go/transport"
)

var csvHeader = []string{"n", "pressure_hpa", "altitude_m", "temperature_c"}

func readCommand() *cli.Command {
	return &cli.Command{
		Name:  "read",
		Usage: "open one sensor and print pressure, altitude and temperature as CSV",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: flagBackend, Value: transport.BackendSim, Usage: "bus backend: sim, periph or embd"},
			&cli.StringFlag{Name: flagBus, Value: "sim0", Usage: "bus id understood by the backend"},
			&cli.StringFlag{Name: flagAddr, Value: "0x60", Usage: "7-bit device address"},
			&cli.IntFlag{Name: flagOS, Value: 128, Usage: "oversampling ratio 1..128"},
			&cli.BoolFlag{Name: flagSigned, Usage: "decode altitude and temperature as two's complement"},
			&cli.IntFlag{Name: flagMaxPolls, Usage: "poll bound per wait, negative for none (default 200)"},
			&cli.IntFlag{Name: flagCount, Value: 1, Usage: "number of rows"},
			&cli.DurationFlag{Name: flagInterval, Value: time.Second, Usage: "pause between rows"},
		},
		Action: runRead,
	}
}

func runRead(c *cli.Context) (err error) {
	log, err := newLogger(c, "warn")
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	opener, ok := transport.Lookup(c.String(flagBackend))
	if !ok {
		return errors.Errorf("unknown backend %q (have %v)", c.String(flagBackend), transport.Backends())
	}
	addr, err := strconv.ParseUint(c.String(flagAddr), 0, 7)
	if err != nil {
		return errors.Wrapf(err, "bad address %q", c.String(flagAddr))
	}

	dev, err := mpl3115a2.Open(opener, c.String(flagBus), uint8(addr), mpl3115a2.Config{
		MaxPolls:        c.Int(flagMaxPolls),
		OversampleRatio: c.Int(flagOS),
		SignedDecode:    c.Bool(flagSigned),
		Logger:          log,
	})
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dev.Close()) }()

	w := csv.NewWriter(c.App.Writer)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for n := 0; n < c.Int(flagCount); n++ {
		if n > 0 {
			select {
			case <-c.Context.Done():
				w.Flush()
				return w.Error()
			case <-time.After(c.Duration(flagInterval)):
			}
		}
		row, err := readRow(dev)
		if err != nil {
			w.Flush()
			return err
		}
		if err := w.Write(append([]string{strconv.Itoa(n)}, row...)); err != nil {
			return err
		}
		w.Flush()
	}
	return w.Error()
}

func readRow(dev *mpl3115a2.Device) ([]string, error) {
	p, err := dev.Pressure()
	if err != nil {
		return nil, err
	}
	a, err := dev.Altitude()
	if err != nil {
		return nil, err
	}
	t, err := dev.Temperature()
	if err != nil {
		return nil, err
	}
	return []string{ff(p), ff(a), ff(t)}, nil
}

func ff(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
