package types

// ---- Capability kinds ----

type Kind string

const (
	KindPressure    Kind = "pressure"
	KindAltitude    Kind = "altitude"
	KindTemperature Kind = "temperature"
)

// Unit returns the unit readings of k are published in.
func (k Kind) Unit() string {
	switch k {
	case KindPressure:
		return "hPa"
	case KindAltitude:
		return "m"
	case KindTemperature:
		return "C"
	}
	return ""
}

// SensorInfo is retained on hal/capability/<kind>/<id>/info.
type SensorInfo struct {
	Device       string `json:"device"` // configured device id
	Sensor       string `json:"sensor"` // "mpl3115a2"
	Addr         uint16 `json:"addr"`
	Bus          string `json:"bus"` // backend:id
	Unit         string `json:"unit"`
	Oversampling int    `json:"oversampling"`
}

// Measurement is published on hal/capability/<kind>/<id>/value.
type Measurement struct {
	Device string  `json:"device"`
	Value  float64 `json:"value"`
	Unit   string  `json:"unit"`
	TsMs   int64   `json:"ts_ms"`
}
