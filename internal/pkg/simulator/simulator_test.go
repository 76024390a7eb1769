package simulator

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/kwakser/lighting-optimization/internal/pkg/environment"
	"github.com/kwakser/lighting-optimization/internal/pkg/lighting"
	"github.com/kwakser/lighting-optimization/internal/pkg/streetlight"
	"github.com/kwakser/lighting-optimization/internal/pkg/traffic"
	"github.com/sirupsen/logrus/hooks/test"
	"gotest.tools/v3/assert"
)

func newSimulator(t *testing.T, length float64, lamps int) *Simulator {
	log, _ := test.NewNullLogger()
	s, err := New(Config{
		RoadLength: length,
		LampCount:  lamps,
		Lamp:       streetlight.DefaultConfig(),
	}, WithSource(rand.NewPCG(7, 7)), WithLogger(log))
	assert.NilError(t, err)
	return s
}

func TestNewPlacesLamps(t *testing.T) {
	s := newSimulator(t, 1000, 20)
	assert.Equal(t, len(s.Lights()), 20)
	for i, l := range s.Lights() {
		assert.Equal(t, l.Position(), float64(i)*50)
	}
	assert.Equal(t, len(s.Vehicles()), 0)
	assert.Equal(t, s.Time(), 0.0)
}

func TestNewRejectsRoad(t *testing.T) {
	_, err := New(Config{RoadLength: 0, LampCount: 3, Lamp: streetlight.DefaultConfig()})
	assert.ErrorIs(t, err, lighting.ErrInvalidValue)

	_, err = New(Config{RoadLength: 100, LampCount: 0, Lamp: streetlight.DefaultConfig()})
	assert.ErrorIs(t, err, lighting.ErrInvalidValue)
}

func TestSetConditionsRejectsUnknown(t *testing.T) {
	s := newSimulator(t, 1000, 4)
	before := s.Conditions()

	err := s.SetConditions(environment.TimeOfDay("noon"), environment.Rain)
	assert.ErrorIs(t, err, lighting.ErrInvalidValue)
	err = s.SetConditions(environment.Day, environment.Weather("hail"))
	assert.ErrorIs(t, err, lighting.ErrInvalidValue)

	assert.DeepEqual(t, s.Conditions(), before)
	assert.Equal(t, s.Environment().Weather(), environment.Clear)
}

func TestSetConditionsIsGradual(t *testing.T) {
	s := newSimulator(t, 1000, 4)
	assert.NilError(t, s.SetConditions(environment.Day, environment.Cloudy))
	assert.Equal(t, s.Environment().Weather(), environment.Cloudy)
	assert.Equal(t, s.Environment().TimeOfDay(), environment.Night)

	c := lighting.DefaultCoefficients()
	for i := 0; i < 45; i++ {
		assert.NilError(t, s.Step(1, c))
	}
	assert.Equal(t, s.Environment().TimeOfDay(), environment.Day)
	for _, l := range s.Lights() {
		assert.Assert(t, !l.Active())
	}
}

func TestApplyRegeneratesTraffic(t *testing.T) {
	s := newSimulator(t, 1000, 4)
	cond := DefaultConditions()
	cond.TrafficMode = traffic.Jam
	cond.TrafficDensity = 0.2
	assert.NilError(t, s.Apply(cond))
	assert.Equal(t, len(s.Vehicles()), 20)
	assert.DeepEqual(t, s.Conditions(), cond)
}

func TestApplyValidatesFirst(t *testing.T) {
	s := newSimulator(t, 1000, 4)
	cond := DefaultConditions()
	cond.Weather = environment.Rain
	cond.TrafficDensity = 3
	err := s.Apply(cond)
	assert.ErrorIs(t, err, lighting.ErrInvalidValue)
	assert.Equal(t, s.Environment().Weather(), environment.Clear)
	assert.Equal(t, len(s.Vehicles()), 0)
}

func TestStepLiteralDisplacement(t *testing.T) {
	s := newSimulator(t, 1000, 4)
	assert.NilError(t, s.Apply(DefaultConditions()))
	before := s.Vehicles()

	assert.NilError(t, s.Step(36, lighting.DefaultCoefficients()))
	after := s.Vehicles()
	for i := range before {
		// speed·dt/3600 with speed 50 and dt 36
		assert.Assert(t, math.Abs(after[i].Position-before[i].Position-0.5) < 1e-9)
	}
}

func TestStepEnergyAccounting(t *testing.T) {
	s := newSimulator(t, 1000, 20)
	assert.NilError(t, s.Apply(DefaultConditions()))
	c := lighting.DefaultCoefficients()

	assert.NilError(t, s.Step(1, c))
	h := s.History()
	assert.Equal(t, len(h), 1)

	// night: every lamp is on in the baseline
	assert.Assert(t, math.Abs(h[0].TraditionalKWH-20*100.0/3.6e6) < 1e-15)

	smart := 0.0
	for _, l := range s.Lights() {
		smart += l.Power() * l.Brightness()
	}
	assert.Assert(t, math.Abs(h[0].SmartKWH-smart/3.6e6) < 1e-15)
	assert.Assert(t, h[0].SmartKWH < h[0].TraditionalKWH)
	assert.Equal(t, h[0].MeanBrightness, s.MeanBrightness())
	assert.Equal(t, s.Time(), 1.0)
}

func TestStepDaylightBaselineOff(t *testing.T) {
	s := newSimulator(t, 1000, 5)
	cond := DefaultConditions()
	cond.TimeOfDay = environment.Day
	assert.NilError(t, s.Apply(cond))
	s.Reset()
	assert.NilError(t, s.Apply(cond))

	assert.NilError(t, s.Step(1, lighting.DefaultCoefficients()))
	e := s.Energy()
	assert.Equal(t, e.TraditionalKWH, 0.0)
	assert.Equal(t, e.SmartKWH, 0.0)
	assert.Equal(t, e.Savings(), 0.0)
}

func TestEnergyMonotonic(t *testing.T) {
	modes := []traffic.Mode{traffic.Uniform, traffic.Sparse, traffic.Jam}
	weather := []environment.Weather{environment.Clear, environment.Fog}
	c := lighting.DefaultCoefficients()
	for _, m := range modes {
		for _, w := range weather {
			s := newSimulator(t, 1000, 10)
			cond := DefaultConditions()
			cond.TrafficMode = m
			cond.Weather = w
			cond.TimeOfDay = environment.Twilight
			assert.NilError(t, s.Apply(cond))

			prev := Energy{}
			for i := 0; i < 30; i++ {
				assert.NilError(t, s.Step(1, c))
				e := s.Energy()
				assert.Assert(t, e.SmartKWH >= prev.SmartKWH)
				assert.Assert(t, e.TraditionalKWH >= prev.TraditionalKWH)
				prev = e
			}
		}
	}
}

func TestNoVehiclesUsesSensingRadius(t *testing.T) {
	s := newSimulator(t, 1000, 1)
	c := lighting.DefaultCoefficients()
	assert.NilError(t, s.Step(1, c))

	r := streetlight.Reading{
		Distance: 50,
		Ambient:  environment.New(environment.Night, environment.Clear).Ambient(),
	}
	want := 0.1 + 0.9*streetlight.Law(r, c)
	assert.Assert(t, math.Abs(s.Lights()[0].Brightness()-want) < 1e-12)
}

func TestStepRejectsNegativeDelta(t *testing.T) {
	s := newSimulator(t, 1000, 1)
	assert.ErrorIs(t, s.Step(-1, lighting.DefaultCoefficients()), lighting.ErrInvalidValue)
	assert.Equal(t, len(s.History()), 0)
}

func TestResetTwice(t *testing.T) {
	s := newSimulator(t, 1000, 5)
	assert.NilError(t, s.Apply(DefaultConditions()))
	for i := 0; i < 5; i++ {
		assert.NilError(t, s.Step(1, lighting.DefaultCoefficients()))
	}

	s.Reset()
	first := s.Status()
	assert.Equal(t, len(s.History()), 0)
	s.Reset()
	second := s.Status()

	assert.DeepEqual(t, first, second)
	assert.Equal(t, first.Time, 0.0)
	assert.Equal(t, first.Energy, Energy{})
	assert.Equal(t, first.Vehicles, 0)
}

func TestResetSnapsTransition(t *testing.T) {
	s := newSimulator(t, 1000, 5)
	assert.NilError(t, s.SetConditions(environment.Twilight, environment.Clear))
	assert.Assert(t, s.Environment().Transitioning())
	s.Reset()
	assert.Assert(t, !s.Environment().Transitioning())
	assert.Equal(t, s.Environment().TimeOfDay(), environment.Twilight)
}

func TestSavings(t *testing.T) {
	assert.Equal(t, Energy{SmartKWH: 1, TraditionalKWH: 4}.Savings(), 75.0)
	assert.Equal(t, Energy{}.Savings(), 0.0)
}
