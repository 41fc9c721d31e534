package transport

import (
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// BackendPeriph opens buses through periph.io's host drivers (sysfs i2c-dev
// on Linux).
const BackendPeriph = "periph"

var (
	periphOnce sync.Once
	periphErr  error
)

func init() {
	Register(BackendPeriph, OpenerFunc(openPeriph))
}

// openPeriph accepts anything i2creg understands: "1", "I2C1" or
// "/dev/i2c-1". An empty id opens the first bus found.
func openPeriph(id string) (Conn, error) {
	periphOnce.Do(func() {
		_, periphErr = host.Init()
	})
	if periphErr != nil {
		return nil, errors.Wrap(periphErr, "periph host init")
	}
	bc, err := i2creg.Open(id)
	if err != nil {
		return nil, errors.Wrapf(err, "periph open i2c bus %q", id)
	}
	return bc, nil
}
