// Package scenario loads timed event schedules and replays them against a
// running simulator: instant "set" actions and linear "ramp" actions over
// simulated time.
package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/kwakser/lighting-optimization/internal/pkg/environment"
	"github.com/kwakser/lighting-optimization/internal/pkg/traffic"
)

// ErrInvalidScenario is returned for malformed schedules.
var ErrInvalidScenario = errors.New("invalid scenario")

// DefaultDuration is the run length in scenario seconds when the file sets none.
const DefaultDuration = 300.0

// Param names a settable run parameter.
type Param string

const (
	TimeOfDay      Param = "time_of_day"
	Weather        Param = "weather"
	TrafficMode    Param = "traffic_mode"
	TrafficDensity Param = "traffic_density"
	TrafficSpeed   Param = "traffic_speed"
)

// Numeric reports whether the parameter takes a number and can be ramped.
func (p Param) Numeric() bool {
	return p == TrafficDensity || p == TrafficSpeed
}

// Known reports whether the engine can address the parameter.
func (p Param) Known() bool {
	switch p {
	case TimeOfDay, Weather, TrafficMode, TrafficDensity, TrafficSpeed:
		return true
	}
	return false
}

// Action types
const (
	Set  = "set"
	Ramp = "ramp"
)

// Action is one change carried by an event.
type Action struct {
	Type     string      `json:"type"`
	Param    Param       `json:"param"`
	Value    interface{} `json:"value,omitempty"`
	From     *float64    `json:"from,omitempty"`
	To       *float64    `json:"to,omitempty"`
	Duration *float64    `json:"duration,omitempty"`
}

// Event is a list of actions triggered at a scenario time.
type Event struct {
	Time    *float64 `json:"time"`
	Actions []Action `json:"actions"`
}

// At returns the trigger time.
func (e Event) At() float64 {
	return *e.Time
}

// Config holds the run-wide settings embedded in the file.
type Config struct {
	TimeScale *float64 `json:"time_scale,omitempty"`
	Duration  *float64 `json:"duration,omitempty"`
}

// Scenario is a parsed schedule with events in ascending time order.
type Scenario struct {
	Events []Event `json:"events"`
	Config Config  `json:"config"`
}

// TimeScale is the multiplier applied to every driving tick, default 1.
func (s Scenario) TimeScale() float64 {
	if s.Config.TimeScale == nil {
		return 1.0
	}
	return *s.Config.TimeScale
}

// Duration is the scenario time at which the run completes.
func (s Scenario) Duration() float64 {
	if s.Config.Duration == nil {
		return DefaultDuration
	}
	return *s.Config.Duration
}

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a scenario, validates it and sorts its events by time.
func Parse(data []byte) (*Scenario, error) {
	s := &Scenario{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	sort.SliceStable(s.Events, func(i, j int) bool {
		return s.Events[i].At() < s.Events[j].At()
	})
	return s, nil
}

func (s Scenario) validate() error {
	if ts := s.Config.TimeScale; ts != nil && !(*ts > 0) {
		return fmt.Errorf("%w: time_scale %v must be positive", ErrInvalidScenario, *ts)
	}
	if d := s.Config.Duration; d != nil && !(*d > 0) {
		return fmt.Errorf("%w: duration %v must be positive", ErrInvalidScenario, *d)
	}
	for i, e := range s.Events {
		if e.Time == nil {
			return fmt.Errorf("%w: event %d has no time", ErrInvalidScenario, i)
		}
		if !(*e.Time >= 0) {
			return fmt.Errorf("%w: event %d time %v is negative", ErrInvalidScenario, i, *e.Time)
		}
		for j, a := range e.Actions {
			if err := a.validate(); err != nil {
				return fmt.Errorf("%w: event %d action %d: %v", ErrInvalidScenario, i, j, err)
			}
		}
	}
	return nil
}

// validate checks the fields of known action types on known parameters.
// Anything else is reported when dispatched.
func (a Action) validate() error {
	if !a.Param.Known() {
		return nil
	}
	switch a.Type {
	case Set:
		if a.Value == nil {
			return fmt.Errorf("set %s has no value", a.Param)
		}
		return checkValue(a.Param, a.Value)
	case Ramp:
		if a.To == nil {
			return fmt.Errorf("ramp %s has no target", a.Param)
		}
		if a.Duration == nil || !(*a.Duration > 0) {
			return fmt.Errorf("ramp %s needs a positive duration", a.Param)
		}
		if !a.Param.Numeric() {
			return nil
		}
		if a.From != nil {
			if err := checkNumber(a.Param, *a.From); err != nil {
				return err
			}
		}
		return checkNumber(a.Param, *a.To)
	}
	return nil
}

func checkValue(p Param, v interface{}) error {
	if p.Numeric() {
		f, ok := v.(float64)
		if !ok {
			return fmt.Errorf("%s expects a number, got %v", p, v)
		}
		return checkNumber(p, f)
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("%s expects a string, got %v", p, v)
	}
	var err error
	switch p {
	case TimeOfDay:
		_, err = environment.ParseTimeOfDay(s)
	case Weather:
		_, err = environment.ParseWeather(s)
	case TrafficMode:
		_, err = traffic.ParseMode(s)
	}
	return err
}

func checkNumber(p Param, f float64) error {
	if p == TrafficDensity {
		return traffic.ValidateDensity(f)
	}
	return traffic.ValidateSpeed(f)
}
