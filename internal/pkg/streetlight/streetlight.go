// Package streetlight implements the per-lamp illumination law.
package streetlight

import (
	"fmt"
	"math"
	"reflect"

	"github.com/google/uuid"
	"github.com/kwakser/lighting-optimization/internal/pkg/environment"
	"github.com/kwakser/lighting-optimization/internal/pkg/lighting"
	"github.com/sirupsen/logrus"
)

// Config holds the rated parameters of a lamp.
type Config struct {
	Power         float64 `yaml:"power" json:"power"`
	MinBrightness float64 `yaml:"min_brightness" json:"min_brightness"`
	MaxBrightness float64 `yaml:"max_brightness" json:"max_brightness"`
	SensingRadius float64 `yaml:"sensing_radius" json:"sensing_radius"`
}

// DefaultConfig returns a 100 W lamp dimming between 0.1 and 1.0 with a 50 m sensor.
func DefaultConfig() Config {
	return Config{
		Power:         100,
		MinBrightness: 0.1,
		MaxBrightness: 1.0,
		SensingRadius: 50,
	}
}

// Validate checks 0 <= min < max <= 1 and positive power and radius.
func (c Config) Validate() error {
	if c.MinBrightness < 0 || c.MinBrightness >= c.MaxBrightness || c.MaxBrightness > 1 {
		return fmt.Errorf("brightness range [%v, %v]: %w", c.MinBrightness, c.MaxBrightness, lighting.ErrInvalidValue)
	}
	if c.Power <= 0 {
		return fmt.Errorf("power %v: %w", c.Power, lighting.ErrInvalidValue)
	}
	if c.SensingRadius <= 0 {
		return fmt.Errorf("sensing radius %v: %w", c.SensingRadius, lighting.ErrInvalidValue)
	}
	return nil
}

// StreetLight is one lamp at a fixed position along the road.
type StreetLight struct {
	pid        uuid.UUID
	position   float64
	config     Config
	brightness float64
	sm         *stateMachine
	log        logrus.FieldLogger
}

// Reading is the local input to one illumination update.
type Reading struct {
	Distance float64
	Nearby   int
	Ambient  environment.Ambient
}

// New returns an active lamp at position, resting at its minimum brightness.
func New(position float64, cfg Config, log logrus.FieldLogger) (*StreetLight, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pid, err := uuid.NewUUID()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &StreetLight{
		pid:        pid,
		position:   position,
		config:     cfg,
		brightness: cfg.MinBrightness,
		sm:         &stateMachine{activeState{}},
		log:        log,
	}, nil
}

// PID is an accessor for the lamp id
func (l StreetLight) PID() uuid.UUID {
	return l.pid
}

// Position is the lamp offset from the start of the road in meters.
func (l StreetLight) Position() float64 {
	return l.position
}

// Power is the rated power in watts.
func (l StreetLight) Power() float64 {
	return l.config.Power
}

// SensingRadius is the vehicle detection radius.
func (l StreetLight) SensingRadius() float64 {
	return l.config.SensingRadius
}

// Brightness is the last computed normalized brightness.
func (l StreetLight) Brightness() float64 {
	return l.brightness
}

// Active reports whether the lamp currently draws power.
func (l StreetLight) Active() bool {
	return l.sm.active()
}

// Illuminate updates the lamp from the nearest vehicle distance, the count of
// vehicles within the sensing radius and the environment, and returns the new
// brightness.
func (l *StreetLight) Illuminate(r Reading, c lighting.Coefficients) float64 {
	l.brightness = l.sm.run(l, r, c)
	return l.brightness
}

// Law evaluates the unclipped illumination term
// f = α·e^(−β·d) + γ·(N/Nmax) + δ·(1 − Iamb·w).
func Law(r Reading, c lighting.Coefficients) float64 {
	return c.Alpha*math.Exp(-c.Beta*r.Distance) +
		c.Gamma*(float64(r.Nearby)/c.NMax) +
		c.Delta*(1-r.Ambient.Light*r.Ambient.WeatherFactor)
}

func (l *StreetLight) dimmed(r Reading, c lighting.Coefficients) float64 {
	lo, hi := l.config.MinBrightness, l.config.MaxBrightness
	b := lo + (hi-lo)*Law(r, c)*(1-r.Ambient.PhaseFraction)
	return lighting.Clip(b, 0, 1)
}

type stateMachine struct {
	currentState state
}

func (s *stateMachine) run(l *StreetLight, r Reading, c lighting.Coefficients) float64 {
	next := s.currentState.transition(r)
	if reflect.TypeOf(next) != reflect.TypeOf(s.currentState) {
		l.log.WithFields(logrus.Fields{
			"pid":   l.pid,
			"state": reflect.TypeOf(next).String(),
		}).Debug("[StreetLight] state change")
	}
	s.currentState = next
	return s.currentState.action(l, r, c)
}

func (s stateMachine) active() bool {
	_, ok := s.currentState.(activeState)
	return ok
}

type state interface {
	action(*StreetLight, Reading, lighting.Coefficients) float64
	transition(Reading) state
}

// activeState tracks traffic and ambient light.
type activeState struct{}

func (s activeState) action(l *StreetLight, r Reading, c lighting.Coefficients) float64 {
	return l.dimmed(r, c)
}

func (s activeState) transition(r Reading) state {
	if r.Ambient.Daylight() {
		return offState{}
	}
	return activeState{}
}

// offState holds the lamp dark during clear daylight.
type offState struct{}

func (s offState) action(l *StreetLight, r Reading, c lighting.Coefficients) float64 {
	return 0
}

func (s offState) transition(r Reading) state {
	if !r.Ambient.Daylight() {
		return activeState{}
	}
	return offState{}
}
