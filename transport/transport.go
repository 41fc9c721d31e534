// Package transport provides the register-bus capability the sensor drivers
// sit on: open a bus by identifier and exchange bytes with an addressed device.
//
// Backends register themselves by name ("periph", "embd", "sim") and are
// looked up by the HAL builders and the command-line tools.
package transport

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"tinygo.org/x/drivers"
)

// Conn is an open I²C bus. It is the TinyGo drivers.I2C shape plus Close so
// the owner can release the handle.
//
// Tx MUST perform the write followed by a repeated-start read when both w and
// r are provided.
type Conn interface {
	drivers.I2C
	io.Closer
}

// Opener opens a bus by its platform identifier (e.g. "1" for /dev/i2c-1).
type Opener interface {
	Open(id string) (Conn, error)
}

// OpenerFunc adapts a plain function to Opener.
type OpenerFunc func(id string) (Conn, error)

func (f OpenerFunc) Open(id string) (Conn, error) { return f(id) }

var (
	mu       sync.RWMutex
	backends = map[string]Opener{}
)

// Register makes a backend available under name. Registering the same name
// twice panics.
func Register(name string, o Opener) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := backends[name]; exists {
		panic(fmt.Sprintf("transport backend already registered: %q", name))
	}
	backends[name] = o
}

// Lookup returns the backend registered under name.
func Lookup(name string) (Opener, bool) {
	mu.RLock()
	defer mu.RUnlock()
	o, ok := backends[name]
	return o, ok
}

// Backends lists the registered backend names in sorted order.
func Backends() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(backends))
	for k := range backends {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
