// Package simulator runs the per-tick agent model of lamps and vehicles on a
// single road segment and accounts smart against always-on energy.
package simulator

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/kwakser/lighting-optimization/internal/pkg/environment"
	"github.com/kwakser/lighting-optimization/internal/pkg/lighting"
	"github.com/kwakser/lighting-optimization/internal/pkg/streetlight"
	"github.com/kwakser/lighting-optimization/internal/pkg/traffic"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// joules per kilowatt hour
const kwh = 1000 * 3600

// Config fixes the road and its lamps for the life of a Simulator.
type Config struct {
	RoadLength float64            `yaml:"length" json:"length"`
	LampCount  int                `yaml:"lamps" json:"lamps"`
	Lamp       streetlight.Config `yaml:"lamp" json:"lamp"`
}

// DefaultConfig is a 1 km road with 20 default lamps.
func DefaultConfig() Config {
	return Config{
		RoadLength: 1000,
		LampCount:  20,
		Lamp:       streetlight.DefaultConfig(),
	}
}

// Simulator owns the lamps, the vehicles, simulated time and the energy
// history. It is not safe for concurrent use.
type Simulator struct {
	pid        uuid.UUID
	roadLength float64
	lights     []*streetlight.StreetLight
	vehicles   []traffic.Vehicle
	generator  *traffic.Generator
	env        *environment.State
	conditions Conditions
	time       float64
	energy     Energy
	history    []Sample
	log        logrus.FieldLogger
}

// Energy is a pair of cumulative consumptions in kWh.
type Energy struct {
	SmartKWH       float64 `json:"smart_kwh"`
	TraditionalKWH float64 `json:"traditional_kwh"`
}

// Savings returns the smart saving relative to the always-on baseline in percent.
func (e Energy) Savings() float64 {
	if e.TraditionalKWH <= 0 {
		return 0
	}
	return (e.TraditionalKWH - e.SmartKWH) / e.TraditionalKWH * 100
}

// Sample is one history entry appended per tick.
type Sample struct {
	Time           float64 `json:"time"`
	MeanBrightness float64 `json:"mean_brightness"`
	Energy
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithSource injects the random source used for sparse traffic.
func WithSource(src rand.Source) Option {
	return func(s *Simulator) {
		s.generator = traffic.NewGenerator(s.roadLength, src)
	}
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Simulator) {
		s.log = log
	}
}

// New builds a simulator with cfg.LampCount lamps evenly spaced from the
// start of the road, resting at the default conditions with no vehicles.
func New(cfg Config, opts ...Option) (*Simulator, error) {
	if cfg.RoadLength <= 0 {
		return nil, fmt.Errorf("road length %v: %w", cfg.RoadLength, lighting.ErrInvalidValue)
	}
	if cfg.LampCount < 1 {
		return nil, fmt.Errorf("lamp count %v: %w", cfg.LampCount, lighting.ErrInvalidValue)
	}
	pid, err := uuid.NewUUID()
	if err != nil {
		return nil, err
	}

	cond := DefaultConditions()
	s := &Simulator{
		pid:        pid,
		roadLength: cfg.RoadLength,
		env:        environment.New(cond.TimeOfDay, cond.Weather),
		conditions: cond,
		log:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.generator == nil {
		s.generator = traffic.NewGenerator(s.roadLength, nil)
	}

	gap := cfg.RoadLength / float64(cfg.LampCount)
	s.lights = make([]*streetlight.StreetLight, cfg.LampCount)
	for i := range s.lights {
		l, err := streetlight.New(float64(i)*gap, cfg.Lamp, s.log)
		if err != nil {
			return nil, fmt.Errorf("lamp %d: %w", i, err)
		}
		s.lights[i] = l
	}
	return s, nil
}

// PID is an accessor for the simulator id
func (s *Simulator) PID() uuid.UUID {
	return s.pid
}

// RoadLength is the length of the simulated segment in meters.
func (s *Simulator) RoadLength() float64 {
	return s.roadLength
}

// Time is the simulated time in seconds.
func (s *Simulator) Time() float64 {
	return s.time
}

// Energy returns the cumulative totals.
func (s *Simulator) Energy() Energy {
	return s.energy
}

// Lights returns the lamp collection. Callers must not mutate it.
func (s *Simulator) Lights() []*streetlight.StreetLight {
	return s.lights
}

// Vehicles returns a copy of the current vehicle set.
func (s *Simulator) Vehicles() []traffic.Vehicle {
	return append([]traffic.Vehicle(nil), s.vehicles...)
}

// History returns a copy of the per-tick history.
func (s *Simulator) History() []Sample {
	return append([]Sample(nil), s.history...)
}

// Environment returns the environment state.
func (s *Simulator) Environment() environment.State {
	return *s.env
}

// Conditions returns the last applied conditions.
func (s *Simulator) Conditions() Conditions {
	return s.conditions
}

// SetConditions sets the weather immediately and starts a gradual move
// toward tod. Nothing is changed if either category is unknown.
func (s *Simulator) SetConditions(tod environment.TimeOfDay, w environment.Weather) error {
	if _, err := environment.ParseTimeOfDay(string(tod)); err != nil {
		return err
	}
	if _, err := environment.ParseWeather(string(w)); err != nil {
		return err
	}
	s.env.SetWeather(w)
	s.env.SetTarget(tod)
	s.conditions.TimeOfDay = tod
	s.conditions.Weather = w
	return nil
}

// SetTraffic records the traffic parameters used by GenerateTraffic.
func (s *Simulator) SetTraffic(mode traffic.Mode, density, speed float64) error {
	if _, err := traffic.ParseMode(string(mode)); err != nil {
		return err
	}
	if err := traffic.ValidateDensity(density); err != nil {
		return err
	}
	if err := traffic.ValidateSpeed(speed); err != nil {
		return err
	}
	s.conditions.TrafficMode = mode
	s.conditions.TrafficDensity = density
	s.conditions.TrafficSpeed = speed
	return nil
}

// GenerateTraffic replaces the vehicle set from the current traffic parameters.
func (s *Simulator) GenerateTraffic() error {
	c := s.conditions
	vehicles, err := s.generator.Generate(c.TrafficMode, c.TrafficDensity, c.TrafficSpeed)
	if err != nil {
		return err
	}
	s.vehicles = vehicles
	return nil
}

// Apply validates c, applies its time-of-day and weather, records its traffic
// parameters and regenerates the vehicles.
func (s *Simulator) Apply(c Conditions) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := s.SetConditions(c.TimeOfDay, c.Weather); err != nil {
		return err
	}
	if err := s.SetTraffic(c.TrafficMode, c.TrafficDensity, c.TrafficSpeed); err != nil {
		return err
	}
	return s.GenerateTraffic()
}

// Step advances the model by dt seconds.
func (s *Simulator) Step(dt float64, c lighting.Coefficients) error {
	if dt < 0 || math.IsNaN(dt) {
		return fmt.Errorf("time step %v: %w", dt, lighting.ErrInvalidValue)
	}
	if err := c.Validate(); err != nil {
		return err
	}

	s.env.Advance(dt)
	traffic.Advance(s.vehicles, s.roadLength, dt)
	ambient := s.env.Ambient()

	smart := 0.0
	levels := make([]float64, len(s.lights))
	for i, l := range s.lights {
		b := l.Illuminate(s.sense(l, ambient), c)
		if l.Active() {
			smart += l.Power() * b * dt
		}
		levels[i] = b
	}

	traditional := 0.0
	if s.env.TraditionalOn() {
		for _, l := range s.lights {
			traditional += l.Power() * dt
		}
	}

	s.energy.SmartKWH += smart / kwh
	s.energy.TraditionalKWH += traditional / kwh
	s.time += dt
	s.history = append(s.history, Sample{
		Time:           s.time,
		MeanBrightness: stat.Mean(levels, nil),
		Energy:         s.energy,
	})
	return nil
}

// sense finds the nearest vehicle and counts those inside the lamp's radius.
func (s *Simulator) sense(l *streetlight.StreetLight, ambient environment.Ambient) streetlight.Reading {
	r := streetlight.Reading{
		Distance: l.SensingRadius(),
		Ambient:  ambient,
	}
	if len(s.vehicles) == 0 {
		return r
	}
	r.Distance = math.Inf(1)
	for _, v := range s.vehicles {
		d := math.Abs(v.Position - l.Position())
		if d < r.Distance {
			r.Distance = d
		}
		if d <= l.SensingRadius() {
			r.Nearby++
		}
	}
	return r
}

// Reset clears energy, history, vehicles and time and ends any pending
// time-of-day transition.
func (s *Simulator) Reset() {
	s.energy = Energy{}
	s.history = nil
	s.vehicles = nil
	s.time = 0
	s.env.Snap()
	s.log.WithField("pid", s.pid).Debug("[Simulator] reset")
}

// MeanBrightness is the mean of the lamps' current brightness.
func (s *Simulator) MeanBrightness() float64 {
	levels := make([]float64, len(s.lights))
	for i, l := range s.lights {
		levels[i] = l.Brightness()
	}
	return stat.Mean(levels, nil)
}

// Status is a snapshot of the simulator after the latest tick.
type Status struct {
	PID            uuid.UUID             `json:"pid"`
	Time           float64               `json:"time"`
	MeanBrightness float64               `json:"mean_brightness"`
	Savings        float64               `json:"savings"`
	ActiveLamps    int                   `json:"active_lamps"`
	Vehicles       int                   `json:"vehicles"`
	TimeOfDay      environment.TimeOfDay `json:"time_of_day"`
	Phase          float64               `json:"phase"`
	Energy
	Conditions Conditions `json:"conditions"`
}

// Status returns the current snapshot.
func (s *Simulator) Status() Status {
	active := 0
	for _, l := range s.lights {
		if l.Active() {
			active++
		}
	}
	return Status{
		PID:            s.pid,
		Time:           s.time,
		MeanBrightness: s.MeanBrightness(),
		Savings:        s.energy.Savings(),
		ActiveLamps:    active,
		Vehicles:       len(s.vehicles),
		TimeOfDay:      s.env.TimeOfDay(),
		Phase:          s.env.Phase(),
		Energy:         s.energy,
		Conditions:     s.conditions,
	}
}
