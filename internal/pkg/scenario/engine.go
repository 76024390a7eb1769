package scenario

import (
	"fmt"

	"github.com/kwakser/lighting-optimization/internal/pkg/environment"
	"github.com/kwakser/lighting-optimization/internal/pkg/lighting"
	"github.com/kwakser/lighting-optimization/internal/pkg/simulator"
	"github.com/kwakser/lighting-optimization/internal/pkg/traffic"
	"github.com/sirupsen/logrus"
)

// Target is the setter surface the engine drives. Apply must validate the
// whole Conditions value, apply it and regenerate traffic.
type Target interface {
	Conditions() simulator.Conditions
	Apply(simulator.Conditions) error
}

// Warning is a non-fatal problem met while dispatching.
type Warning struct {
	Time    float64 `json:"time"`
	Message string  `json:"message"`
}

// RampState is an active linear transition of one parameter.
type RampState struct {
	Param      Param
	StartTime  float64
	EndTime    float64
	StartValue float64
	EndValue   float64
}

// ValueAt returns the interpolated value at scenario time t.
func (r RampState) ValueAt(t float64) float64 {
	if t >= r.EndTime {
		return r.EndValue
	}
	progress := (t - r.StartTime) / (r.EndTime - r.StartTime)
	return r.StartValue + (r.EndValue-r.StartValue)*progress
}

// Engine replays a Scenario against a Target. It never resets itself; load
// a new engine to restart.
type Engine struct {
	scenario *Scenario
	target   Target
	cursor   int
	time     float64
	ramps    []*RampState
	warnings []Warning
	log      logrus.FieldLogger
}

// NewEngine returns an engine at scenario time 0 with no events dispatched.
func NewEngine(s *Scenario, target Target, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		scenario: s,
		target:   target,
		log:      log,
	}
}

// Start dispatches the events due at scenario time 0.
func (e *Engine) Start() error {
	e.log.WithFields(logrus.Fields{
		"events":     len(e.scenario.Events),
		"time_scale": e.scenario.TimeScale(),
		"duration":   e.scenario.Duration(),
	}).Info("[Scenario] starting")
	if err := e.dispatch(); err != nil {
		return err
	}
	return e.evaluateRamps()
}

// Tick advances scenario time by dt·time_scale, dispatches due events and then
// evaluates the active ramps. It reports whether the run is complete.
func (e *Engine) Tick(dt float64) (bool, error) {
	e.time += dt * e.scenario.TimeScale()
	if err := e.dispatch(); err != nil {
		return e.Done(), err
	}
	if err := e.evaluateRamps(); err != nil {
		return e.Done(), err
	}
	return e.Done(), nil
}

// Done reports whether scenario time has reached the configured duration.
func (e *Engine) Done() bool {
	return e.time >= e.scenario.Duration()
}

// Time is the current scenario time.
func (e *Engine) Time() float64 {
	return e.time
}

// Cursor is the index of the next undispatched event.
func (e *Engine) Cursor() int {
	return e.cursor
}

// Ramps returns copies of the active ramps.
func (e *Engine) Ramps() []RampState {
	out := make([]RampState, len(e.ramps))
	for i, r := range e.ramps {
		out[i] = *r
	}
	return out
}

// Warnings returns every warning raised so far.
func (e *Engine) Warnings() []Warning {
	return append([]Warning(nil), e.warnings...)
}

func (e *Engine) dispatch() error {
	events := e.scenario.Events
	for e.cursor < len(events) && events[e.cursor].At() <= e.time {
		ev := events[e.cursor]
		e.cursor++
		for _, a := range ev.Actions {
			if err := e.process(a); err != nil {
				return fmt.Errorf("event at %v: %w", ev.At(), err)
			}
		}
	}
	return nil
}

func (e *Engine) process(a Action) error {
	if !a.Param.Known() {
		e.warn("unknown parameter %q", a.Param)
		return nil
	}
	switch a.Type {
	case Set:
		return e.set(a.Param, a.Value)
	case Ramp:
		e.startRamp(a)
		return nil
	default:
		e.warn("unknown action type %q", a.Type)
		return nil
	}
}

func (e *Engine) startRamp(a Action) {
	if !a.Param.Numeric() {
		e.warn("parameter %q cannot be ramped", a.Param)
		return
	}
	from := e.current(a.Param)
	if a.From != nil {
		from = *a.From
	}
	r := &RampState{
		Param:      a.Param,
		StartTime:  e.time,
		EndTime:    e.time + *a.Duration,
		StartValue: from,
		EndValue:   *a.To,
	}
	e.log.WithFields(logrus.Fields{
		"param": r.Param,
		"from":  r.StartValue,
		"to":    r.EndValue,
		"until": r.EndTime,
	}).Debug("[Scenario] ramp started")

	// a new ramp replaces a running one on the same parameter
	for i, old := range e.ramps {
		if old.Param == a.Param {
			e.ramps[i] = r
			return
		}
	}
	e.ramps = append(e.ramps, r)
}

// evaluateRamps applies every active ramp and drops the finished ones. On a
// failed set the ramp list is left as it was.
func (e *Engine) evaluateRamps() error {
	active := make([]*RampState, 0, len(e.ramps))
	for _, r := range e.ramps {
		if err := e.set(r.Param, r.ValueAt(e.time)); err != nil {
			return err
		}
		if e.time < r.EndTime {
			active = append(active, r)
		}
	}
	e.ramps = active
	return nil
}

func (e *Engine) current(p Param) float64 {
	c := e.target.Conditions()
	if p == TrafficDensity {
		return c.TrafficDensity
	}
	return c.TrafficSpeed
}

// set writes one parameter and re-applies the whole configuration.
func (e *Engine) set(p Param, v interface{}) error {
	c := e.target.Conditions()
	switch p {
	case TimeOfDay:
		c.TimeOfDay = environment.TimeOfDay(fmt.Sprint(v))
	case Weather:
		c.Weather = environment.Weather(fmt.Sprint(v))
	case TrafficMode:
		c.TrafficMode = traffic.Mode(fmt.Sprint(v))
	case TrafficDensity, TrafficSpeed:
		f, ok := v.(float64)
		if !ok {
			return fmt.Errorf("set %s=%v: %w", p, v, lighting.ErrInvalidValue)
		}
		if p == TrafficDensity {
			c.TrafficDensity = f
		} else {
			c.TrafficSpeed = f
		}
	}
	if err := e.target.Apply(c); err != nil {
		return fmt.Errorf("set %s=%v: %w", p, v, err)
	}
	return nil
}

func (e *Engine) warn(format string, args ...interface{}) {
	w := Warning{Time: e.time, Message: fmt.Sprintf(format, args...)}
	e.warnings = append(e.warnings, w)
	e.log.WithField("time", e.time).Warn("[Scenario] " + w.Message)
}
