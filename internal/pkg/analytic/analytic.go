// Package analytic is the continuous lighting model used for capacity
// planning. It replaces live sensing with daily sinusoidal proxies for
// traffic density and daylight, and clips every lamp to the regulatory
// band [MinBrightness, MaxBrightness].
package analytic

import (
	"fmt"
	"math"

	"github.com/kwakser/lighting-optimization/internal/pkg/lighting"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// Day is the length of the daily cycle in seconds.
	Day = 86400.0
	// ReferenceSpeed moves the single synthetic vehicle along the road.
	ReferenceSpeed = 25.0

	MinBrightness = 0.2
	MaxBrightness = 1.0

	// morning traffic peak offset, 07:00
	densityShift = 25200.0
)

// Model evaluates brightness over a fixed set of evenly spaced lamps.
type Model struct {
	coeff      lighting.Coefficients
	roadLength float64
	positions  []float64
}

// New places lamps over [0, roadLength], both ends included.
func New(coeff lighting.Coefficients, roadLength float64, lamps int) (*Model, error) {
	if err := coeff.Validate(); err != nil {
		return nil, err
	}
	if !(roadLength > 0) {
		return nil, fmt.Errorf("road length %v: %w", roadLength, lighting.ErrInvalidValue)
	}
	if lamps < 2 {
		return nil, fmt.Errorf("lamp count %v: %w", lamps, lighting.ErrInvalidValue)
	}
	return &Model{
		coeff:      coeff,
		roadLength: roadLength,
		positions:  floats.Span(make([]float64, lamps), 0, roadLength),
	}, nil
}

// Positions returns a copy of the lamp positions.
func (m *Model) Positions() []float64 {
	return append([]float64(nil), m.positions...)
}

// Coefficients returns the coefficient set the model was built with.
func (m *Model) Coefficients() lighting.Coefficients {
	return m.coeff
}

// VehicleDensity is the synthetic vehicle count at time t.
func VehicleDensity(t float64) float64 {
	return 20 + 15*math.Sin(2*math.Pi*(t-densityShift)/Day)
}

// AmbientLight is the normalized daylight level at time t, darkest at midnight.
func AmbientLight(t float64) float64 {
	return lighting.Clip(0.5*math.Sin(2*math.Pi*t/Day-math.Pi/2)+0.5, 0, 1)
}

// VehiclePosition is where the synthetic vehicle sits at time t for a lamp
// spacing. The cycle length is the last lamp position plus one spacing.
func (m *Model) VehiclePosition(t, spacing float64) float64 {
	cycle := m.positions[len(m.positions)-1] + spacing
	p := math.Mod(ReferenceSpeed*t, cycle)
	if p < 0 {
		p += cycle
	}
	return p
}

// Brightness returns the per-lamp level at time t. Power does not enter the
// lighting law; it is accepted so callers evaluate one design point.
func (m *Model) Brightness(t, power, spacing float64) []float64 {
	c := m.coeff
	car := m.VehiclePosition(t, spacing)
	traffic := c.Gamma * VehicleDensity(t) / c.NMax
	dark := c.Delta * (1 - AmbientLight(t))

	out := make([]float64, len(m.positions))
	for i, x := range m.positions {
		f := c.Alpha*math.Exp(-c.Beta*math.Abs(x-car)) + traffic + dark
		out[i] = lighting.Clip(f, MinBrightness, MaxBrightness)
	}
	return out
}

// MeanBrightness averages Brightness over the lamps.
func (m *Model) MeanBrightness(t, power, spacing float64) float64 {
	return stat.Mean(m.Brightness(t, power, spacing), nil)
}

// Point is one sample of a brightness profile.
type Point struct {
	Time           float64 `json:"time"`
	MeanBrightness float64 `json:"mean_brightness"`
}

// Profile samples MeanBrightness at n evenly spaced times over [t0, t1].
func (m *Model) Profile(t0, t1 float64, n int, power, spacing float64) []Point {
	if n < 2 {
		return nil
	}
	times := floats.Span(make([]float64, n), t0, t1)
	out := make([]Point, n)
	for i, t := range times {
		out[i] = Point{Time: t, MeanBrightness: m.MeanBrightness(t, power, spacing)}
	}
	return out
}
