// Package optimizer searches the lamp power and spacing that minimize the
// energy integrated over a planning window while every lamp stays above the
// minimum illuminance at every sampled time.
package optimizer

import (
	"context"
	"fmt"
	"math"

	"github.com/kwakser/lighting-optimization/internal/pkg/analytic"
	"github.com/kwakser/lighting-optimization/internal/pkg/lighting"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

const (
	// Samples is the number of time points taken over the window.
	Samples = 100

	MinPower   = 50.0
	MaxPower   = 200.0
	MinSpacing = 20.0
	MaxSpacing = 50.0

	InitialPower   = 100.0
	InitialSpacing = 30.0

	// MinIlluminance is the regulatory floor in lux.
	MinIlluminance = 20.0
	// LuxPerUnit converts normalized brightness to an illuminance proxy.
	LuxPerUnit = 100.0

	feasibilityTol = 1e-9
	penaltyWeight  = 1e6
)

// Window is the planning horizon in seconds.
type Window struct {
	Start float64 `yaml:"start" json:"start"`
	End   float64 `yaml:"end" json:"end"`
}

// DefaultWindow is the first hour of the day.
func DefaultWindow() Window {
	return Window{Start: 0, End: 3600}
}

// Result is the outcome of a run. A result without Success carries no
// recommendation.
type Result struct {
	Success     bool    `json:"success"`
	Power       float64 `json:"power"`
	Spacing     float64 `json:"spacing"`
	Objective   float64 `json:"objective"`
	Constraint  float64 `json:"constraint"`
	Message     string  `json:"message"`
	Iterations  int     `json:"iterations"`
	Evaluations int     `json:"evaluations"`
}

// Optimizer owns its sample grid and never touches simulator state.
type Optimizer struct {
	model      *analytic.Model
	window     Window
	times      []float64
	dt         float64
	illuminant float64
	settings   optimize.Settings
	log        logrus.FieldLogger
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *Optimizer) {
		o.log = log
	}
}

// WithMinIlluminance overrides the illuminance floor in lux.
func WithMinIlluminance(lux float64) Option {
	return func(o *Optimizer) {
		o.illuminant = lux
	}
}

// WithIterations bounds the solver's major iterations.
func WithIterations(n int) Option {
	return func(o *Optimizer) {
		o.settings.MajorIterations = n
	}
}

// New samples the window at Samples evenly spaced points.
func New(model *analytic.Model, window Window, opts ...Option) (*Optimizer, error) {
	if model == nil {
		return nil, fmt.Errorf("nil model: %w", lighting.ErrInvalidValue)
	}
	if !(window.End > window.Start) {
		return nil, fmt.Errorf("window [%v, %v]: %w", window.Start, window.End, lighting.ErrInvalidValue)
	}
	times := floats.Span(make([]float64, Samples), window.Start, window.End)
	o := &Optimizer{
		model:      model,
		window:     window,
		times:      times,
		dt:         times[1] - times[0],
		illuminant: MinIlluminance,
		settings: optimize.Settings{
			MajorIterations: 1000,
			FuncEvaluations: 5000,
			Converger: &optimize.FunctionConverge{
				Absolute:   1e-6,
				Relative:   1e-9,
				Iterations: 50,
			},
		},
		log: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Window returns the planning horizon.
func (o *Optimizer) Window() Window {
	return o.window
}

// Objective is the Riemann sum of power times mean brightness over the
// samples, x = (power, spacing).
func (o *Optimizer) Objective(x []float64) float64 {
	power, spacing := x[0], x[1]
	total := 0.0
	for _, t := range o.times {
		total += power * o.model.MeanBrightness(t, power, spacing) * o.dt
	}
	return total
}

// Constraint is the smallest sampled illuminance minus the floor. The point
// is feasible when it is not negative.
func (o *Optimizer) Constraint(x []float64) float64 {
	power, spacing := x[0], x[1]
	lowest := math.Inf(1)
	for _, t := range o.times {
		lowest = math.Min(lowest, floats.Min(o.model.Brightness(t, power, spacing)))
	}
	return lowest*LuxPerUnit - o.illuminant
}

// Optimize runs the solver to completion.
func (o *Optimizer) Optimize() Result {
	return o.OptimizeContext(context.Background())
}

// OptimizeContext runs the solver until it converges, exhausts its budget or
// ctx is done. Solver trouble is reported in the Result, never as an error.
func (o *Optimizer) OptimizeContext(ctx context.Context) Result {
	x0 := []float64{InitialPower, InitialSpacing}
	problem := optimize.Problem{
		Func: o.penalized,
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}

	o.log.WithFields(logrus.Fields{
		"start": o.window.Start,
		"end":   o.window.End,
	}).Info("[Optimizer] solving")

	// gonum has no SQP method, and min() and the clip make the constraint
	// non-smooth, so a derivative-free simplex runs on the penalized objective.
	settings := o.settings
	res, err := optimize.Minimize(problem, x0, &settings, &optimize.NelderMead{})
	if res == nil {
		return o.fail(fmt.Sprintf("optimization did not start: %v", err))
	}

	x := clamp(res.X)
	f, g := o.Objective(x), o.Constraint(x)

	// keep the initial guess when the solver wandered somewhere worse
	if f0, g0 := o.Objective(x0), o.Constraint(x0); g0 >= -feasibilityTol && (g < -feasibilityTol || f > f0) {
		x, f, g = x0, f0, g0
	}

	out := Result{
		Power:       x[0],
		Spacing:     x[1],
		Objective:   f,
		Constraint:  g,
		Iterations:  res.MajorIterations,
		Evaluations: res.FuncEvaluations,
		Message:     res.Status.String(),
	}
	switch {
	case err != nil:
		out.Message = fmt.Sprintf("optimization stopped: %v", err)
	case g < -feasibilityTol:
		out.Message = fmt.Sprintf("minimum illuminance unreachable: lowest sample is %.2f lux below %.2f",
			-g, o.illuminant)
	default:
		out.Success = true
	}

	entry := o.log.WithFields(logrus.Fields{
		"power":   out.Power,
		"spacing": out.Spacing,
		"energy":  out.Objective,
		"status":  res.Status,
	})
	if out.Success {
		entry.Info("[Optimizer] converged")
	} else {
		entry.Warn("[Optimizer] no recommendation: " + out.Message)
	}
	return out
}

// penalized is the objective at the nearest in-bounds point plus quadratic
// penalties for leaving the box and for violating the illuminance floor.
func (o *Optimizer) penalized(x []float64) float64 {
	in := clamp(x)
	excess := 0.0
	for i := range x {
		d := x[i] - in[i]
		excess += d * d
	}
	if g := o.Constraint(in); g < 0 {
		excess += g * g
	}
	return o.Objective(in) + penaltyWeight*excess
}

func (o *Optimizer) fail(message string) Result {
	o.log.Warn("[Optimizer] " + message)
	return Result{Message: message}
}

func clamp(x []float64) []float64 {
	return []float64{
		lighting.Clip(x[0], MinPower, MaxPower),
		lighting.Clip(x[1], MinSpacing, MaxSpacing),
	}
}
