// services/hal/internal/halcore/types.go
package halcore

import (
	"context"
	"time"

	"baro-go/errcode"
	"baro-go/transport"
)

// Reading is one datum for one capability kind.
type Reading struct {
	Kind    string // "pressure", "altitude", "temperature"
	Payload any    // JSON-serialisable, types.Measurement for sensors
	TsMs    int64  // producer timestamp (ms)
}

// Sample is a batch collected together.
type Sample []Reading

// CapInfo describes one capability's retained info document.
type CapInfo struct {
	Kind string
	Info any
}

// Adaptor abstracts a concrete device/driver. It must not own goroutines;
// the measure worker for its bus is the only caller of Trigger and Collect.
type Adaptor interface {
	ID() string
	Capabilities() []CapInfo
	// Split-phase measurement cycle.
	Trigger(ctx context.Context) (collectAfter time.Duration, err error)
	Collect(ctx context.Context) (Sample, error)
	// Close releases the device. Later Trigger/Collect calls fail.
	Close() error
}

// WorkerConfig centralises timings and limits.
type WorkerConfig struct {
	TriggerTimeout time.Duration
	CollectTimeout time.Duration
	RetryBackoff   time.Duration
	MaxRetries     int
	InputQueueSize int
}

// MeasureReq asks a worker to service an adaptor.
type MeasureReq struct {
	ID      string
	Adaptor Adaptor
	Prio    bool // true for "read_now"
}

// Result emitted by a worker.
type Result struct {
	ID      string
	Sample  Sample
	Err     error
	Retries int
}

// ErrNotReady signals the worker to retry Collect after backoff. When the
// retries run out it reaches the bus as the not_ready code.
var ErrNotReady error = errcode.NotReady

// ---- Buses ----

// BusFactory resolves a transport backend by name.
type BusFactory interface {
	Opener(backend string) (transport.Opener, bool)
}

// TransportBuses resolves backends from the transport registry.
type TransportBuses struct{}

func (TransportBuses) Opener(backend string) (transport.Opener, bool) {
	return transport.Lookup(backend)
}
