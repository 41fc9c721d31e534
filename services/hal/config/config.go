package config

import "time"

// HALConfig is supplied on the "config/hal" bus topic.
type HALConfig struct {
	Worker  Worker   `yaml:"worker" json:"worker"`
	Devices []Device `yaml:"devices" json:"devices"`
}

// Worker tunes the per-bus measure workers. Zero fields take the worker's
// defaults.
type Worker struct {
	TriggerTimeout time.Duration `yaml:"trigger_timeout" json:"trigger_timeout"`
	CollectTimeout time.Duration `yaml:"collect_timeout" json:"collect_timeout"`
	RetryBackoff   time.Duration `yaml:"retry_backoff" json:"retry_backoff"`
	MaxRetries     int           `yaml:"max_retries" json:"max_retries"`
	QueueSize      int           `yaml:"queue_size" json:"queue_size"`
}

// Device describes one sensor managed by the HAL.
type Device struct {
	ID          string         `yaml:"id" json:"id"`
	Type        string         `yaml:"type" json:"type"`
	Bus         BusRef         `yaml:"bus" json:"bus"`
	SampleEvery time.Duration  `yaml:"sample_every" json:"sample_every"`
	Params      map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// BusRef names a transport backend and the bus id it should open.
type BusRef struct {
	Backend string `yaml:"backend" json:"backend"` // "periph", "embd", "sim"
	ID      string `yaml:"id" json:"id"`           // e.g. "1" for /dev/i2c-1
}

// Key identifies the physical bus; devices sharing a key share a worker.
func (b BusRef) Key() string { return b.Backend + ":" + b.ID }
