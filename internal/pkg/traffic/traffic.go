// Package traffic generates and moves the vehicles on the road segment.
package traffic

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/kwakser/lighting-optimization/internal/pkg/lighting"
	"gonum.org/v1/gonum/stat/distuv"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// Mode selects how vehicles are placed on the road.
type Mode string

const (
	Uniform Mode = "uniform"
	Sparse  Mode = "sparse"
	Jam     Mode = "jam"
)

// vehicle spacing in meters per unit density
var spacing = map[Mode]float64{
	Uniform: 50,
	Sparse:  100,
	Jam:     10,
}

// ParseMode maps s to a traffic Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if _, ok := spacing[m]; !ok {
		return "", fmt.Errorf("traffic mode %q: %w", s, lighting.ErrInvalidValue)
	}
	return m, nil
}

// Vehicle is a single car on the road.
type Vehicle struct {
	Position float64 `json:"position"`
	Speed    float64 `json:"speed"`
}

// Generator builds vehicle sets for a road of fixed length.
type Generator struct {
	roadLength float64
	src        rand.Source
}

// NewGenerator returns a Generator drawing sparse placements from src. A nil
// src is seeded from the runtime.
func NewGenerator(roadLength float64, src rand.Source) *Generator {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Generator{roadLength: roadLength, src: src}
}

// RoadLength is the length the generator places vehicles on.
func (g Generator) RoadLength() float64 {
	return g.roadLength
}

// Count returns the number of vehicles mode places at density.
func (g Generator) Count(mode Mode, density float64) int {
	return int(math.Floor(g.roadLength * density / spacing[mode]))
}

// Generate returns a fresh vehicle set for mode at density and speed.
func (g *Generator) Generate(mode Mode, density, speed float64) ([]Vehicle, error) {
	if _, ok := spacing[mode]; !ok {
		return nil, fmt.Errorf("traffic mode %q: %w", mode, lighting.ErrInvalidValue)
	}
	if err := ValidateDensity(density); err != nil {
		return nil, err
	}
	if err := ValidateSpeed(speed); err != nil {
		return nil, err
	}

	n := g.Count(mode, density)
	switch mode {
	case Jam:
		return g.evenlySpaced(n, math.Max(5, speed*0.1)), nil
	case Sparse:
		return g.scattered(n, speed), nil
	default:
		return g.evenlySpaced(n, speed), nil
	}
}

func (g Generator) evenlySpaced(n int, speed float64) []Vehicle {
	vehicles := make([]Vehicle, n)
	for i := range vehicles {
		vehicles[i] = Vehicle{
			Position: float64(i) * g.roadLength / float64(n),
			Speed:    speed,
		}
	}
	return vehicles
}

// scattered places n vehicles at distinct integer offsets with speeds
// perturbed by a factor in [0.8, 1.2].
func (g Generator) scattered(n int, speed float64) []Vehicle {
	offsets := make([]int, n)
	if n > 0 {
		sampleuv.WithoutReplacement(offsets, int(g.roadLength), g.src)
	}
	factor := distuv.Uniform{Min: 0.8, Max: 1.2, Src: g.src}

	vehicles := make([]Vehicle, n)
	for i, x := range offsets {
		vehicles[i] = Vehicle{
			Position: float64(x),
			Speed:    speed * factor.Rand(),
		}
	}
	return vehicles
}

// Advance moves every vehicle by speed·dt/3600 and wraps it to the start of
// the road once it reaches roadLength.
func Advance(vehicles []Vehicle, roadLength, dt float64) {
	for i := range vehicles {
		vehicles[i].Position += vehicles[i].Speed * dt / 3600
		if vehicles[i].Position >= roadLength {
			vehicles[i].Position = 0
		}
	}
}

// ValidateDensity accepts densities in (0, 1].
func ValidateDensity(d float64) error {
	if !(d > 0 && d <= 1) {
		return fmt.Errorf("traffic density %v outside (0, 1]: %w", d, lighting.ErrInvalidValue)
	}
	return nil
}

// ValidateSpeed accepts positive speeds.
func ValidateSpeed(s float64) error {
	if !(s > 0) {
		return fmt.Errorf("traffic speed %v must be positive: %w", s, lighting.ErrInvalidValue)
	}
	return nil
}
