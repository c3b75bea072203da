package sensor

import (
	"testing"

	"go.viam.com/test"
)

func TestDewPoint(t *testing.T) {
	saturated := Reading{Temperature: 20, Humidity: 100}
	test.That(t, saturated.DewPoint(), test.ShouldAlmostEqual, 20, 0.1)

	dry := Reading{Temperature: 25, Humidity: 50}
	test.That(t, dry.DewPoint(), test.ShouldAlmostEqual, 13.9, 0.2)
}

func TestFields(t *testing.T) {
	r := Reading{Temperature: 21.5, Pressure: 1013.25, Humidity: 40}
	test.That(t, r.Fields(), test.ShouldHaveLength, 8)

	r.GasValid = true
	r.GasResistance = 12000
	fields := r.Fields()
	test.That(t, fields, test.ShouldHaveLength, 10)
	test.That(t, fields[8], test.ShouldEqual, "gas_resistance_ohms")
	test.That(t, fields[9], test.ShouldEqual, 12000.0)
}
