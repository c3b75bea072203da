// Package sensor defines an environmental sensing device that can provide measurement readings.
package sensor

import (
	"context"
	"math"
	"time"
)

// A Reading is one compensated measurement.
type Reading struct {
	Time time.Time
	// Temperature in degrees Celsius.
	Temperature float64
	// Pressure in hectopascal.
	Pressure float64
	// Humidity in percent relative humidity.
	Humidity float64
	// GasResistance in ohms. Only meaningful when GasValid is set.
	GasResistance float64
	// GasValid reports that the gas measurement finished with a stable heater.
	GasValid bool
}

// DewPoint returns the dew point in degrees Celsius.
func (r Reading) DewPoint() float64 {
	ratio := 373.15 / (273.15 + r.Temperature)
	rhs := -7.90298 * (ratio - 1)
	rhs += 5.02808 * math.Log10(ratio)
	rhs += -1.3816e-7 * (math.Pow(10, 11.344*(1-1/ratio)) - 1)
	rhs += 8.1328e-3 * (math.Pow(10, -3.49149*(ratio-1)) - 1)
	rhs += math.Log10(1013.246)

	// factor -3 is to adjust units - Vapor Pressure SVP * humidity
	vp := math.Pow(10, rhs-3) * r.Humidity
	t := math.Log(vp / 0.61078)
	return (241.88 * t) / (17.558 - t)
}

// Fields returns the reading as alternating keys and values for structured logging.
func (r Reading) Fields() []interface{} {
	fields := []interface{}{
		"temperature_celsius", r.Temperature,
		"pressure_hpa", r.Pressure,
		"humidity_pct_rh", r.Humidity,
		"dew_point_celsius", r.DewPoint(),
	}
	if r.GasValid {
		fields = append(fields, "gas_resistance_ohms", r.GasResistance)
	}
	return fields
}

// A Sensor represents an environmental sensor that can take readings on demand.
type Sensor interface {
	// Readings triggers a measurement and returns its compensated result.
	Readings(ctx context.Context) (Reading, error)
	Close() error
}
