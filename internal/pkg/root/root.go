// Package root is the top of the running system. It owns the simulator and
// the active scenario, serializes ticks and publishes a status snapshot after
// each one.
package root

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kwakser/lighting-optimization/internal/pkg/lighting"
	"github.com/kwakser/lighting-optimization/internal/pkg/msg"
	"github.com/kwakser/lighting-optimization/internal/pkg/scenario"
	"github.com/kwakser/lighting-optimization/internal/pkg/simulator"
	"github.com/sirupsen/logrus"
)

// ErrRunning is returned when Run is called on a running system.
var ErrRunning = errors.New("system already running")

// Config is the static setup of a System.
type Config struct {
	Simulator    simulator.Config
	Coefficients lighting.Coefficients
	Conditions   simulator.Conditions
	// TimeStep is the simulated seconds per tick.
	TimeStep float64
	// TickInterval is the wall-clock period of Run.
	TickInterval time.Duration
}

// DefaultConfig steps one simulated second every 100 ms.
func DefaultConfig() Config {
	return Config{
		Simulator:    simulator.DefaultConfig(),
		Coefficients: lighting.DefaultCoefficients(),
		Conditions:   simulator.DefaultConditions(),
		TimeStep:     1,
		TickInterval: 100 * time.Millisecond,
	}
}

// Status is the snapshot published after every tick.
type Status struct {
	simulator.Status
	Scenario *ScenarioStatus `json:"scenario,omitempty"`
	Running  bool            `json:"running"`
}

// ScenarioStatus reports the progress of the active scenario.
type ScenarioStatus struct {
	Time     float64            `json:"time"`
	Duration float64            `json:"duration"`
	Cursor   int                `json:"cursor"`
	Events   int                `json:"events"`
	Ramps    int                `json:"ramps"`
	Done     bool               `json:"done"`
	Warnings []scenario.Warning `json:"warnings,omitempty"`
}

// System is the root node of the lighting control system
type System struct {
	mux       *sync.Mutex
	pid       uuid.UUID
	sim       *simulator.Simulator
	scenario  *scenario.Scenario
	engine    *scenario.Engine
	coeff     lighting.Coefficients
	timeStep  float64
	interval  time.Duration
	publisher *msg.PubSub
	running   bool
	stop      chan bool
	done      chan struct{}
	log       logrus.FieldLogger
}

// New builds the simulator, applies the initial conditions and generates
// the first traffic.
func New(cfg Config, log logrus.FieldLogger, opts ...simulator.Option) (*System, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := cfg.Coefficients.Validate(); err != nil {
		return nil, err
	}
	if !(cfg.TimeStep > 0) {
		return nil, fmt.Errorf("time step %v: %w", cfg.TimeStep, lighting.ErrInvalidValue)
	}
	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("tick interval %v: %w", cfg.TickInterval, lighting.ErrInvalidValue)
	}

	sim, err := simulator.New(cfg.Simulator, append([]simulator.Option{simulator.WithLogger(log)}, opts...)...)
	if err != nil {
		return nil, err
	}
	if err := sim.Apply(cfg.Conditions); err != nil {
		return nil, err
	}

	pid, err := uuid.NewUUID()
	if err != nil {
		return nil, err
	}
	return &System{
		mux:       &sync.Mutex{},
		pid:       pid,
		sim:       sim,
		coeff:     cfg.Coefficients,
		timeStep:  cfg.TimeStep,
		interval:  cfg.TickInterval,
		publisher: msg.NewPublisher(pid),
		log:       log,
	}, nil
}

// PID is an accessor for the system id
func (s *System) PID() uuid.UUID {
	return s.pid
}

// Subscribe returns a channel on which the topic is broadcast.
func (s *System) Subscribe(pid uuid.UUID, topic msg.Topic) (<-chan msg.Msg, error) {
	return s.publisher.Subscribe(pid, topic)
}

// Unsubscribe pid from all topic broadcasts
func (s *System) Unsubscribe(pid uuid.UUID) {
	s.publisher.Unsubscribe(pid)
}

// Tick runs one driving tick: scenario dispatch, ramp evaluation, then the
// simulator step. It reports whether the active scenario has completed.
func (s *System) Tick() (bool, error) {
	s.mux.Lock()
	defer s.mux.Unlock()

	done := false
	if s.engine != nil {
		var err error
		if done, err = s.engine.Tick(s.timeStep); err != nil {
			return done, err
		}
	}
	if err := s.sim.Step(s.timeStep, s.coeff); err != nil {
		return done, err
	}
	s.publisher.Publish(msg.Status, s.status())
	return done, nil
}

// Run ticks every TickInterval until Stop, ctx is done or the active
// scenario completes.
func (s *System) Run(ctx context.Context) error {
	s.mux.Lock()
	if s.running {
		s.mux.Unlock()
		return ErrRunning
	}
	stop, done := s.begin()
	s.mux.Unlock()
	return s.loop(ctx, stop, done)
}

// begin marks the loop running. Callers hold mux.
func (s *System) begin() (chan bool, chan struct{}) {
	s.running = true
	s.stop = make(chan bool, 1)
	s.done = make(chan struct{})
	return s.stop, s.done
}

func (s *System) loop(ctx context.Context, stop <-chan bool, done chan struct{}) error {
	defer close(done)
	defer func() {
		s.mux.Lock()
		s.running = false
		s.stop = nil
		s.done = nil
		s.mux.Unlock()
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.WithField("interval", s.interval).Info("[System] Process Started")
	defer s.log.Info("[System] Process Shutdown")
	for {
		select {
		case <-stop:
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		// a stop that raced the ticker wins
		select {
		case <-stop:
			return nil
		default:
		}
		finished, err := s.Tick()
		if err != nil {
			return err
		}
		if finished {
			s.log.Info("[System] scenario complete")
			return nil
		}
	}
}

// Start resets the run, restarts the loaded scenario from time 0 and runs
// in the background. The system reports Running before Start returns.
// Errors from the loop are logged.
func (s *System) Start(ctx context.Context) error {
	s.mux.Lock()
	if s.running {
		s.mux.Unlock()
		return ErrRunning
	}
	if err := s.reset(); err != nil {
		s.mux.Unlock()
		return err
	}
	stop, done := s.begin()
	s.mux.Unlock()

	go func() {
		if err := s.loop(ctx, stop, done); err != nil {
			s.log.WithError(err).Error("[System] run failed")
		}
	}()
	return nil
}

// Stop ends a running loop and waits for it to exit. It is a no-op when
// nothing runs.
func (s *System) Stop() {
	s.mux.Lock()
	stop, done := s.stop, s.done
	s.mux.Unlock()
	if stop == nil {
		return
	}
	select {
	case stop <- true:
	default:
	}
	<-done
}

// Clear stops the loop and resets the run. No tick lands after the reset.
func (s *System) Clear() error {
	s.Stop()
	return s.Reset()
}

// Running reports whether the loop is active.
func (s *System) Running() bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.running
}

// LoadScenario replaces the active scenario and dispatches its time 0 events.
func (s *System) LoadScenario(sc *scenario.Scenario) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	s.scenario = sc
	if err := s.startScenario(); err != nil {
		return err
	}
	s.publisher.Publish(msg.Config, s.sim.Conditions())
	return nil
}

// ClearScenario drops the active scenario. Current conditions are kept.
func (s *System) ClearScenario() {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.scenario = nil
	s.engine = nil
}

func (s *System) startScenario() error {
	if s.scenario == nil {
		s.engine = nil
		return nil
	}
	engine := scenario.NewEngine(s.scenario, s.sim, s.log)
	if err := engine.Start(); err != nil {
		return err
	}
	s.engine = engine
	return nil
}

// Apply validates and applies new conditions, regenerating traffic.
func (s *System) Apply(c simulator.Conditions) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	if err := s.sim.Apply(c); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"time_of_day": c.TimeOfDay,
		"weather":     c.Weather,
		"traffic":     c.TrafficMode,
	}).Info("[System] conditions applied")
	s.publisher.Publish(msg.Config, c)
	return nil
}

// Reset zeroes the simulator, regenerates traffic for the current
// conditions and restarts the loaded scenario.
func (s *System) Reset() error {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.reset()
}

func (s *System) reset() error {
	s.sim.Reset()
	if err := s.sim.GenerateTraffic(); err != nil {
		return err
	}
	if err := s.startScenario(); err != nil {
		return err
	}
	s.publisher.Publish(msg.Status, s.status())
	return nil
}

// Status returns the current snapshot.
func (s *System) Status() Status {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.status()
}

func (s *System) status() Status {
	st := Status{
		Status:  s.sim.Status(),
		Running: s.running,
	}
	if s.engine != nil {
		st.Scenario = &ScenarioStatus{
			Time:     s.engine.Time(),
			Duration: s.scenario.Duration(),
			Cursor:   s.engine.Cursor(),
			Events:   len(s.scenario.Events),
			Ramps:    len(s.engine.Ramps()),
			Done:     s.engine.Done(),
			Warnings: s.engine.Warnings(),
		}
	}
	return st
}

// History returns the per-tick samples since the last reset.
func (s *System) History() []simulator.Sample {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.sim.History()
}

// Coefficients returns the coefficient set used for every step.
func (s *System) Coefficients() lighting.Coefficients {
	return s.coeff
}

// RoadLength is the length of the simulated segment in meters.
func (s *System) RoadLength() float64 {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.sim.RoadLength()
}

// LampCount is the number of lamps on the road.
func (s *System) LampCount() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return len(s.sim.Lights())
}

// Close stops the loop and releases every subscriber.
func (s *System) Close() {
	s.Stop()
	s.publisher.Close()
}
