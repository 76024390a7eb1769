package environment

import (
	"fmt"

	"github.com/kwakser/lighting-optimization/internal/pkg/lighting"
)

// TimeOfDay is the categorical label of the daylight phase.
type TimeOfDay string

// Weather is the categorical sky condition.
type Weather string

const (
	Night    TimeOfDay = "night"
	Twilight TimeOfDay = "twilight"
	Day      TimeOfDay = "day"
)

const (
	Clear  Weather = "clear"
	Cloudy Weather = "cloudy"
	Rain   Weather = "rain"
	Fog    Weather = "fog"
	Snow   Weather = "snow"
)

// TransitionDuration is the simulated seconds needed to move the phase by one
// whole step (night to twilight, twilight to day).
const TransitionDuration = 20.0

// MaxPhase is the numeric phase of full daylight.
const MaxPhase = 2.0

var phases = map[TimeOfDay]float64{
	Night:    0,
	Twilight: 1,
	Day:      2,
}

// base daylight level per category
var baseLight = map[TimeOfDay]float64{
	Day:      0.9,
	Twilight: 0.4,
	Night:    0.1,
}

// weather transmission used for the ambient light level
var skyFactor = map[Weather]float64{
	Clear:  1.0,
	Cloudy: 0.8,
	Rain:   0.6,
	Fog:    0.4,
	Snow:   0.5,
}

// weather attenuation used by the lamp law
var attenuation = map[Weather]float64{
	Clear:  1.0,
	Cloudy: 0.7,
	Rain:   0.5,
	Fog:    0.3,
	Snow:   0.4,
}

// ParseTimeOfDay maps s to a TimeOfDay category.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	tod := TimeOfDay(s)
	if _, ok := phases[tod]; !ok {
		return "", fmt.Errorf("time of day %q: %w", s, lighting.ErrInvalidValue)
	}
	return tod, nil
}

// ParseWeather maps s to a Weather category.
func ParseWeather(s string) (Weather, error) {
	w := Weather(s)
	if _, ok := skyFactor[w]; !ok {
		return "", fmt.Errorf("weather %q: %w", s, lighting.ErrInvalidValue)
	}
	return w, nil
}

// Phase returns the numeric phase of the category.
func (t TimeOfDay) Phase() float64 {
	return phases[t]
}

// Bad reports whether the weather keeps lamps on in daylight.
func (w Weather) Bad() bool {
	return w == Rain || w == Fog || w == Snow
}

// AttenuationFactor returns the lamp-law weather factor; unknown weather is 1.
func AttenuationFactor(w Weather) float64 {
	if f, ok := attenuation[w]; ok {
		return f
	}
	return 1.0
}

// AmbientLight returns the natural light level in [0,1] for a category pair.
func AmbientLight(tod TimeOfDay, w Weather) float64 {
	base, ok := baseLight[tod]
	if !ok {
		base = baseLight[Night]
	}
	f, ok := skyFactor[w]
	if !ok {
		f = 1.0
	}
	return base * f
}

// TraditionalOn reports whether an always-on lamp would be lit.
func TraditionalOn(tod TimeOfDay, w Weather) bool {
	if tod == Day {
		return w.Bad()
	}
	return true
}

// Label derives the category from a numeric phase.
func Label(phase float64) TimeOfDay {
	switch {
	case phase <= 0.5:
		return Night
	case phase <= 1.5:
		return Twilight
	default:
		return Day
	}
}
