package mpl3115a2

// OutputBlock is the 5-byte read starting at OUT_P_MSB:
// P/A MSB, P/A CSB, P/A LSB, T MSB, T LSB.
type OutputBlock [outBlockLen]byte

// Fixed-point scale divisors for the output registers.
const (
	pressureDivisor    = 6400.0
	altitudeDivisor    = 65536.0
	temperatureDivisor = 256.0
)

// DecodePressure returns (b0·65536 + b1·256 + b2) / 6400. For the chip's
// Q18.2 pascal encoding that is hectopascals (mbar).
func DecodePressure(b OutputBlock) float64 {
	raw := uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	return float64(raw) / pressureDivisor
}

// DecodeAltitude returns (b0·16777216 + b1·65536 + b2·256) / 65536 in metres.
// The word is taken as unsigned, so altitudes below sea level come back as
// large positive values; see DecodeAltitudeSigned.
func DecodeAltitude(b OutputBlock) float64 {
	return float64(altitudeWord(b)) / altitudeDivisor
}

// DecodeTemperature returns (b3·256 + b4) / 256 in °C, unsigned.
func DecodeTemperature(b OutputBlock) float64 {
	return float64(temperatureWord(b)) / temperatureDivisor
}

// DecodeAltitudeSigned is the two's-complement reading of the altitude word.
// Only used when Config.SignedDecode is set.
func DecodeAltitudeSigned(b OutputBlock) float64 {
	return float64(int32(altitudeWord(b))) / altitudeDivisor
}

// DecodeTemperatureSigned is the two's-complement reading of the temperature
// word. Only used when Config.SignedDecode is set.
func DecodeTemperatureSigned(b OutputBlock) float64 {
	return float64(int16(temperatureWord(b))) / temperatureDivisor
}

func altitudeWord(b OutputBlock) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8
}

func temperatureWord(b OutputBlock) uint16 {
	return uint16(b[3])<<8 | uint16(b[4])
}

// Sample is one decoded conversion. Exactly one of Pressure or Altitude is
// meaningful, depending on Mode.
type Sample struct {
	Mode        Mode
	Pressure    float64 // hPa, barometer mode
	Altitude    float64 // m, altimeter mode
	Temperature float64 // °C
	Raw         OutputBlock
}

func (d *Device) decode(m Mode, b OutputBlock) Sample {
	s := Sample{Mode: m, Raw: b}
	if d.cfg.SignedDecode {
		s.Temperature = DecodeTemperatureSigned(b)
	} else {
		s.Temperature = DecodeTemperature(b)
	}
	switch {
	case m == ModeBarometer:
		s.Pressure = DecodePressure(b)
	case d.cfg.SignedDecode:
		s.Altitude = DecodeAltitudeSigned(b)
	default:
		s.Altitude = DecodeAltitude(b)
	}
	return s
}
