package root

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kwakser/lighting-optimization/internal/pkg/environment"
	"github.com/kwakser/lighting-optimization/internal/pkg/lighting"
	"github.com/kwakser/lighting-optimization/internal/pkg/msg"
	"github.com/kwakser/lighting-optimization/internal/pkg/scenario"
	"github.com/kwakser/lighting-optimization/internal/pkg/simulator"
	"github.com/sirupsen/logrus/hooks/test"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/poll"
)

func newSystem(t *testing.T) *System {
	log, _ := test.NewNullLogger()
	cfg := DefaultConfig()
	cfg.TickInterval = time.Millisecond
	s, err := New(cfg, log, simulator.WithSource(rand.NewPCG(1, 2)))
	assert.NilError(t, err)
	t.Cleanup(s.Close)
	return s
}

func loadScenario(t *testing.T, s *System, doc string) {
	sc, err := scenario.Parse([]byte(doc))
	assert.NilError(t, err)
	assert.NilError(t, s.LoadScenario(sc))
}

func TestNewRootSystem(t *testing.T) {
	s := newSystem(t)
	st := s.Status()
	assert.Equal(t, st.Time, 0.0)
	assert.Equal(t, st.Vehicles, 10)
	assert.Equal(t, s.LampCount(), 20)
	assert.Equal(t, s.RoadLength(), 1000.0)
	assert.Assert(t, st.Scenario == nil)
	assert.Assert(t, !st.Running)
}

func TestNewRejectsConfig(t *testing.T) {
	log, _ := test.NewNullLogger()

	cfg := DefaultConfig()
	cfg.TimeStep = 0
	_, err := New(cfg, log)
	assert.ErrorIs(t, err, lighting.ErrInvalidValue)

	cfg = DefaultConfig()
	cfg.Conditions.Weather = "hail"
	_, err = New(cfg, log)
	assert.ErrorIs(t, err, lighting.ErrInvalidValue)

	cfg = DefaultConfig()
	cfg.Coefficients.NMax = 0
	_, err = New(cfg, log)
	assert.ErrorIs(t, err, lighting.ErrInvalidValue)
}

func TestTickPublishesStatus(t *testing.T) {
	s := newSystem(t)
	ch, err := s.Subscribe(uuid.New(), msg.Status)
	assert.NilError(t, err)

	done, err := s.Tick()
	assert.NilError(t, err)
	assert.Assert(t, !done)

	m := <-ch
	assert.Equal(t, m.PID(), s.PID())
	st, ok := m.Payload().(Status)
	assert.Assert(t, ok)
	assert.Equal(t, st.Time, 1.0)
	assert.Assert(t, st.SmartKWH > 0)
	assert.Equal(t, len(s.History()), 1)
}

func TestTickOrdersDispatchBeforeStep(t *testing.T) {
	s := newSystem(t)
	loadScenario(t, s, `{
		"events": [{"time": 1, "actions": [{"type": "set", "param": "time_of_day", "value": "day"}]}],
		"config": {"duration": 100}
	}`)

	_, err := s.Tick()
	assert.NilError(t, err)
	// the step of the same tick already saw the new target
	assert.Equal(t, s.Status().Conditions.TimeOfDay, environment.Day)
	assert.Equal(t, s.Status().Phase, 1.0/environment.TransitionDuration)
}

func TestApply(t *testing.T) {
	s := newSystem(t)
	ch, err := s.Subscribe(uuid.New(), msg.Config)
	assert.NilError(t, err)

	c := simulator.DefaultConditions()
	c.Weather = environment.Fog
	assert.NilError(t, s.Apply(c))
	assert.Equal(t, (<-ch).Payload(), c)

	c.TrafficMode = "gridlock"
	assert.ErrorIs(t, s.Apply(c), lighting.ErrInvalidValue)
	assert.Equal(t, s.Status().Conditions.TrafficMode, simulator.DefaultConditions().TrafficMode)
}

func TestResetRestartsScenario(t *testing.T) {
	s := newSystem(t)
	loadScenario(t, s, `{"events": [], "config": {"duration": 50}}`)
	for i := 0; i < 5; i++ {
		_, err := s.Tick()
		assert.NilError(t, err)
	}
	assert.Equal(t, s.Status().Scenario.Time, 5.0)

	assert.NilError(t, s.Reset())
	st := s.Status()
	assert.Equal(t, st.Time, 0.0)
	assert.Equal(t, st.Scenario.Time, 0.0)
	assert.Equal(t, st.Energy, simulator.Energy{})
	assert.Equal(t, st.Vehicles, 10)
	assert.Equal(t, len(s.History()), 0)
}

func TestRunStopsOnScenarioEnd(t *testing.T) {
	s := newSystem(t)
	loadScenario(t, s, `{"events": [], "config": {"duration": 3}}`)

	assert.NilError(t, s.Run(context.Background()))
	assert.Equal(t, s.Status().Time, 3.0)
	assert.Assert(t, s.Status().Scenario.Done)
	assert.Assert(t, !s.Running())
}

func TestStartStop(t *testing.T) {
	s := newSystem(t)
	assert.NilError(t, s.Start(context.Background()))
	poll.WaitOn(t, func(poll.LogT) poll.Result {
		if s.Running() && s.Status().Time >= 3 {
			return poll.Success()
		}
		return poll.Continue("waiting for ticks")
	}, poll.WithTimeout(5*time.Second))

	assert.ErrorIs(t, s.Start(context.Background()), ErrRunning)

	s.Stop()
	assert.Assert(t, !s.Running())

	assert.NilError(t, s.Clear())
	assert.Equal(t, s.Status().Time, 0.0)
}

func TestRunHonoursContext(t *testing.T) {
	s := newSystem(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NilError(t, s.Run(ctx))
	assert.Assert(t, !s.Running())
}

func TestStopWhenIdle(t *testing.T) {
	s := newSystem(t)
	s.Stop()
	assert.Assert(t, !s.Running())
}

func TestStopRightAfterStart(t *testing.T) {
	s := newSystem(t)
	for i := 0; i < 20; i++ {
		assert.NilError(t, s.Start(context.Background()))
		assert.Assert(t, s.Running())
		s.Stop()
		assert.Assert(t, !s.Running())

		stopped := s.Status().Time
		time.Sleep(5 * time.Millisecond)
		assert.Equal(t, s.Status().Time, stopped, "iteration %d", i)
	}
}

func TestClearRightAfterStart(t *testing.T) {
	s := newSystem(t)
	for i := 0; i < 20; i++ {
		assert.NilError(t, s.Start(context.Background()))
		assert.NilError(t, s.Clear())
		assert.Assert(t, !s.Running())
		time.Sleep(5 * time.Millisecond)
		assert.Equal(t, s.Status().Time, 0.0, "iteration %d", i)
		assert.Equal(t, len(s.History()), 0)
	}
}

func TestClearWhileRunningLeavesZeroedRun(t *testing.T) {
	s := newSystem(t)
	for i := 0; i < 20; i++ {
		assert.NilError(t, s.Start(context.Background()))
		poll.WaitOn(t, func(poll.LogT) poll.Result {
			if s.Status().Time >= 2 {
				return poll.Success()
			}
			return poll.Continue("waiting for ticks")
		}, poll.WithTimeout(5*time.Second))

		assert.NilError(t, s.Clear())
		time.Sleep(5 * time.Millisecond)
		st := s.Status()
		assert.Equal(t, st.Time, 0.0, "iteration %d", i)
		assert.Assert(t, !st.Running)
	}
}
