package config

// Built-in configurations, selectable by name when no file is given.
// "sim" runs one simulated sensor in each mode and needs no hardware.

const cfgSim = `
log_level: info
metrics_addr: ":9108"
devices:
  - id: baro-sim
    type: mpl3115a2
    bus: {backend: sim, id: sim0}
    sample_every: 1s
    params:
      mode: barometer
      poll_interval: 1ms
  - id: alti-sim
    type: mpl3115a2
    bus: {backend: sim, id: sim1}
    sample_every: 1s
    params:
      mode: altimeter
      oversampling: 16
      poll_interval: 1ms
`

const cfgPi = `
log_level: info
devices:
  - id: baro0
    type: mpl3115a2
    bus: {backend: periph, id: "1"}
    sample_every: 5s
    params:
      addr: 0x60
      mode: barometer
`

var embeddedConfigs = map[string][]byte{
	"sim": []byte(cfgSim),
	"pi":  []byte(cfgPi),
}

// EmbeddedConfigLookup allows overriding how built-in configs are resolved.
var EmbeddedConfigLookup = func(name string) ([]byte, bool) {
	b, ok := embeddedConfigs[name]
	return b, ok
}
