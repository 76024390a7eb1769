// Package environment converts time-of-day and weather into the ambient
// light level and attenuation seen by the lamps. Time-of-day is kept as a
// continuous phase that glides toward its requested category so lamps dim
// smoothly across dawn and dusk.
package environment

import "math"

// Ambient is the per-tick environment reading consumed by the lamps.
type Ambient struct {
	Light         float64
	WeatherFactor float64
	PhaseFraction float64 // 0 full night, 1 full day
	BadWeather    bool
}

// Daylight reports whether lamps may switch off entirely.
func (a Ambient) Daylight() bool {
	return a.PhaseFraction >= 1 && !a.BadWeather
}

// State is the environment of one simulator.
type State struct {
	phase   float64
	target  float64
	weather Weather
}

// New returns an environment resting at tod under w.
func New(tod TimeOfDay, w Weather) *State {
	p := tod.Phase()
	return &State{phase: p, target: p, weather: w}
}

// SetTarget requests a gradual move toward tod.
func (s *State) SetTarget(tod TimeOfDay) {
	s.target = tod.Phase()
}

// SetWeather changes the weather immediately.
func (s *State) SetWeather(w Weather) {
	s.weather = w
}

// Advance moves the phase toward the target by dt/TransitionDuration
// without overshooting.
func (s *State) Advance(dt float64) {
	if dt <= 0 || s.phase == s.target {
		return
	}
	step := dt / TransitionDuration
	diff := s.target - s.phase
	if math.Abs(diff) <= step {
		s.phase = s.target
		return
	}
	s.phase += math.Copysign(step, diff)
}

// Snap ends any pending transition at the requested category. The phase
// jumps to the target, not to the label of the phase it was passing through.
func (s *State) Snap() {
	s.phase = s.target
}

// Phase returns the current numeric phase in [0, MaxPhase].
func (s State) Phase() float64 {
	return s.phase
}

// Target returns the requested category.
func (s State) Target() TimeOfDay {
	return Label(s.target)
}

// TimeOfDay returns the category derived from the current phase.
func (s State) TimeOfDay() TimeOfDay {
	return Label(s.phase)
}

// Weather returns the current weather.
func (s State) Weather() Weather {
	return s.weather
}

// Transitioning reports whether the phase has not reached its target.
func (s State) Transitioning() bool {
	return s.phase != s.target
}

// Ambient computes the reading for the current tick.
func (s State) Ambient() Ambient {
	return Ambient{
		Light:         AmbientLight(s.TimeOfDay(), s.weather),
		WeatherFactor: AttenuationFactor(s.weather),
		PhaseFraction: s.phase / MaxPhase,
		BadWeather:    s.weather.Bad(),
	}
}

// TraditionalOn applies the always-on baseline predicate to the current state.
func (s State) TraditionalOn() bool {
	return TraditionalOn(s.TimeOfDay(), s.weather)
}
