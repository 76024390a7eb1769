// Package lighting holds the coefficient set shared by the per-lamp
// illumination law and the analytical planning model.
package lighting

import (
	"errors"
	"fmt"
)

// ErrInvalidValue is returned for unknown categories and out of range inputs.
var ErrInvalidValue = errors.New("invalid value")

// Coefficients weight the three terms of the illumination law:
// distance attenuation (Alpha, Beta), traffic load (Gamma, NMax) and
// darkness compensation (Delta).
type Coefficients struct {
	Alpha float64 `yaml:"alpha" json:"alpha"`
	Beta  float64 `yaml:"beta" json:"beta"`
	Gamma float64 `yaml:"gamma" json:"gamma"`
	Delta float64 `yaml:"delta" json:"delta"`
	NMax  float64 `yaml:"nmax" json:"nmax"`
}

// DefaultCoefficients returns the reference calibration.
func DefaultCoefficients() Coefficients {
	return Coefficients{
		Alpha: 0.4,
		Beta:  0.2,
		Gamma: 0.3,
		Delta: 0.1,
		NMax:  50,
	}
}

// Validate reports whether the coefficient set can be evaluated.
func (c Coefficients) Validate() error {
	if c.NMax <= 0 {
		return fmt.Errorf("nmax %v must be positive: %w", c.NMax, ErrInvalidValue)
	}
	if c.Beta < 0 {
		return fmt.Errorf("beta %v must not be negative: %w", c.Beta, ErrInvalidValue)
	}
	return nil
}

// Clip bounds v to [lo, hi].
func Clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
