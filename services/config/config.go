// Package config loads the process configuration and publishes the HAL
// section on the bus.
package config

import (
	"bytes"
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"baro-go/bus"
	halconfig "baro-go/services/hal/config"
	"baro-go/transport"
)

const (
	serviceName  = "config"
	configPrefix = "config"
	halKey       = "hal"

	defaultLogLevel    = "info"
	defaultMetricsAddr = ":9108"
	defaultSampleEvery = time.Second
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("config: invalid")

// Config is the whole YAML document. The HAL fields sit at the top level.
type Config struct {
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`

	HAL halconfig.HALConfig `yaml:",inline"`
}

// Load reads and validates the file at path.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "config: read")
	}
	return Parse(raw)
}

// Parse decodes raw YAML, rejecting unknown keys, then applies defaults and
// validates.
func Parse(raw []byte) (Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return Config{}, errors.Wrap(err, "config: decode")
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Embedded returns a built-in configuration by name.
func Embedded(name string) (Config, error) {
	raw, ok := EmbeddedConfigLookup(name)
	if !ok {
		return Config{}, errors.Errorf("config: no embedded config %q", name)
	}
	return Parse(raw)
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = defaultMetricsAddr
	}
	for i := range c.HAL.Devices {
		if c.HAL.Devices[i].SampleEvery == 0 {
			c.HAL.Devices[i].SampleEvery = defaultSampleEvery
		}
	}
}

// Validate rejects configurations the HAL cannot act on.
func (c Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrapf(ErrInvalid, "log_level %q", c.LogLevel)
	}
	seen := map[string]struct{}{}
	for i, d := range c.HAL.Devices {
		switch {
		case d.ID == "":
			return errors.Wrapf(ErrInvalid, "devices[%d]: empty id", i)
		case d.Type == "":
			return errors.Wrapf(ErrInvalid, "device %q: empty type", d.ID)
		case d.SampleEvery < 0:
			return errors.Wrapf(ErrInvalid, "device %q: negative sample_every", d.ID)
		}
		if _, dup := seen[d.ID]; dup {
			return errors.Wrapf(ErrInvalid, "device %q: duplicate id", d.ID)
		}
		seen[d.ID] = struct{}{}
		if _, ok := transport.Lookup(d.Bus.Backend); !ok {
			return errors.Wrapf(ErrInvalid, "device %q: unknown bus backend %q (have %v)",
				d.ID, d.Bus.Backend, transport.Backends())
		}
	}
	return nil
}

// ConfigService publishes the loaded configuration as retained messages.
type ConfigService struct {
	Name string
	cfg  Config
	log  *zap.Logger
}

func NewConfigService(cfg Config, log *zap.Logger) *ConfigService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ConfigService{Name: serviceName, cfg: cfg, log: log.Named(serviceName)}
}

// publishConfig places the HAL section on config/hal.
func (s *ConfigService) publishConfig(conn *bus.Connection) {
	conn.Publish(conn.NewMessage(bus.T(configPrefix, halKey), s.cfg.HAL, true))
	s.log.Debug("published", zap.String("topic", configPrefix+"/"+halKey),
		zap.Int("devices", len(s.cfg.HAL.Devices)))
}

// Start publishes once. Retained delivery covers subscribers that arrive
// later; ctx is accepted for symmetry with the other services.
func (s *ConfigService) Start(_ context.Context, conn *bus.Connection) {
	s.publishConfig(conn)
}
