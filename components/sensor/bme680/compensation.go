package bme680

import (
	"math"
	"time"
)

// calibration holds the factory trimming parameters of one sensor.
type calibration struct {
	t1, t2, t3                                  float64
	p1, p2, p3, p4, p5, p6, p7, p8, p9, p10     float64
	h1, h2, h3, h4, h5, h6, h7                  float64
	gh1, gh2, gh3                               float64
	resHeatRange, resHeatVal, rangeSwitchingErr float64
}

// parseCalibration decodes the two coefficient blocks read from 0x89 and 0xE1, concatenated.
func parseCalibration(coeff []byte, resHeatRange, resHeatVal, rangeSwErr byte) calibration {
	u16 := func(msb, lsb int) float64 { return float64(uint16(coeff[msb])<<8 | uint16(coeff[lsb])) }
	s16 := func(msb, lsb int) float64 { return float64(int16(uint16(coeff[msb])<<8 | uint16(coeff[lsb]))) }
	s8 := func(i int) float64 { return float64(int8(coeff[i])) }

	return calibration{
		t1: u16(34, 33),
		t2: s16(2, 1),
		t3: s8(3),

		p1:  u16(6, 5),
		p2:  s16(8, 7),
		p3:  s8(9),
		p4:  s16(12, 11),
		p5:  s16(14, 13),
		p6:  s8(16),
		p7:  s8(15),
		p8:  s16(20, 19),
		p9:  s16(22, 21),
		p10: float64(coeff[23]),

		h1: float64(uint16(coeff[27])<<4 | uint16(coeff[26]&0x0F)),
		h2: float64(uint16(coeff[25])<<4 | uint16(coeff[26]>>4)),
		h3: s8(28),
		h4: s8(29),
		h5: s8(30),
		h6: float64(coeff[31]),
		h7: s8(32),

		gh1: s8(37),
		gh2: s16(36, 35),
		gh3: s8(38),

		resHeatRange:      float64((resHeatRange & 0x30) >> 4),
		resHeatVal:        float64(int8(resHeatVal)),
		rangeSwitchingErr: float64(int8(rangeSwErr&0xF0) / 16),
	}
}

// fieldData is the raw content of the field 0 registers.
type fieldData struct {
	status      byte
	temperature uint32
	pressure    uint32
	humidity    uint16
	gas         uint16
	gasRange    byte
}

func parseFieldData(buf []byte) fieldData {
	return fieldData{
		status:      buf[0]&newDataMask | buf[14]&(gasValidMask|heatStableMask),
		pressure:    uint32(buf[2])<<12 | uint32(buf[3])<<4 | uint32(buf[4])>>4,
		temperature: uint32(buf[5])<<12 | uint32(buf[6])<<4 | uint32(buf[7])>>4,
		humidity:    uint16(buf[8])<<8 | uint16(buf[9]),
		gas:         uint16(buf[13])<<2 | uint16(buf[14])>>6,
		gasRange:    buf[14] & gasRangeMask,
	}
}

// temperature returns degrees Celsius and the fine temperature the other channels are
// compensated with.
func (c *calibration) temperature(adc uint32, offset float64) (float64, float64) {
	var1 := (float64(adc)/16384 - c.t1/1024) * c.t2
	var2 := (float64(adc)/131072 - c.t1/8192) * (float64(adc)/131072 - c.t1/8192) * (c.t3 * 16)
	tFine := var1 + var2 + offset*5120
	return tFine / 5120, tFine
}

// pressure returns pascal.
func (c *calibration) pressure(adc uint32, tFine float64) float64 {
	var1 := tFine/2 - 64000
	var2 := var1 * var1 * (c.p6 / 131072)
	var2 += var1 * c.p5 * 2
	var2 = var2/4 + c.p4*65536
	var1 = (c.p3*var1*var1/16384 + c.p2*var1) / 524288
	var1 = (1 + var1/32768) * c.p1
	if int(var1) == 0 {
		return 0
	}

	p := 1048576 - float64(adc)
	p = (p - var2/4096) * 6250 / var1
	var1 = c.p9 * p * p / 2147483648
	var2 = p * (c.p8 / 32768)
	var3 := (p / 256) * (p / 256) * (p / 256) * (c.p10 / 131072)
	return p + (var1+var2+var3+c.p7*128)/16
}

// humidity returns percent relative humidity, limited to 0..100.
func (c *calibration) humidity(adc uint16, tFine float64) float64 {
	tempComp := tFine / 5120
	var1 := float64(adc) - (c.h1*16 + c.h3/2*tempComp)
	var2 := var1 * (c.h2 / 262144 * (1 + c.h4/16384*tempComp + c.h5/1048576*tempComp*tempComp))
	var3 := c.h6 / 16384
	var4 := c.h7 / 2097152
	h := var2 + (var3+var4*tempComp)*var2*var2
	return math.Max(0, math.Min(h, 100))
}

var (
	gasRangeK1 = [16]float64{0, 0, 0, 0, 0, -1, 0, -0.8, 0, 0, -0.2, -0.5, 0, -1, 0, 0}
	gasRangeK2 = [16]float64{0, 0, 0, 0, 0.1, 0.7, 0, -0.8, -0.1, 0, 0, 0, 0, 0, 0, 0}
)

// gasResistance returns ohms.
func (c *calibration) gasResistance(adc uint16, gasRange byte) float64 {
	var1 := 1340 + 5*c.rangeSwitchingErr
	var2 := var1 * (1 + gasRangeK1[gasRange]/100)
	var3 := 1 + gasRangeK2[gasRange]/100
	return 1 / (var3 * 0.000000125 * float64(uint32(1)<<gasRange) * ((float64(adc)-512)/var2 + 1))
}

// heaterResistance returns the res_heat register value for a heater target in degrees Celsius.
func (c *calibration) heaterResistance(target int, ambient float64) byte {
	if target > maxHeaterTemperature {
		target = maxHeaterTemperature
	}
	var1 := c.gh1/16 + 49
	var2 := c.gh2/32768*0.0005 + 0.00235
	var3 := c.gh3 / 1024
	var4 := var1 * (1 + var2*float64(target))
	var5 := var4 + var3*ambient
	return byte(3.4 * (var5*(4/(4+c.resHeatRange))*(1/(1+c.resHeatVal*0.002)) - 25))
}

// heaterDuration encodes milliseconds into the gas_wait register format: six bits of value and
// a two bit multiplier of 1, 4, 16 or 64.
func heaterDuration(ms int) byte {
	if ms >= 0xfc0 {
		return 0xff
	}
	factor := 0
	for ms > 0x3f {
		ms /= 4
		factor++
	}
	return byte(ms + factor*64)
}

var oversamplingCycles = [...]int{0, 1, 2, 4, 8, 16}

func profileDuration(cfg Config) time.Duration {
	cycles := oversamplingCycles[cfg.TemperatureOversampling] +
		oversamplingCycles[cfg.PressureOversampling] +
		oversamplingCycles[cfg.HumidityOversampling]

	us := cycles * 1963
	us += 477 * 4
	us += 477 * 5
	us += 500
	ms := us/1000 + 1
	if cfg.GasEnabled {
		ms += cfg.HeaterDuration
	}
	return time.Duration(ms) * time.Millisecond
}
