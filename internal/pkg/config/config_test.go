package config

import (
	"testing"
	"time"

	"github.com/kwakser/lighting-optimization/internal/pkg/environment"
	"github.com/kwakser/lighting-optimization/internal/pkg/lighting"
	"github.com/kwakser/lighting-optimization/internal/pkg/traffic"
	"github.com/sirupsen/logrus"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/fs"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	assert.NilError(t, err)
	assert.NilError(t, cfg.Validate())

	assert.Equal(t, cfg.Road.RoadLength, 1000.0)
	assert.Equal(t, cfg.Road.LampCount, 20)
	assert.Equal(t, cfg.Road.Lamp.Power, 100.0)
	assert.Equal(t, cfg.Coefficients, lighting.DefaultCoefficients())
	assert.Equal(t, cfg.TimeStep, 1.0)
	assert.Equal(t, cfg.TickInterval, 100*time.Millisecond)
	assert.Equal(t, cfg.Planner.Window.End, 3600.0)
	assert.Equal(t, cfg.Planner.Timeout, 30*time.Second)
	assert.Assert(t, !cfg.NATS.Enabled)
	assert.Equal(t, cfg.NATS.Subject, "lighting")
	assert.Equal(t, cfg.Web.Address, ":8080")
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	file := fs.NewFile(t, "lighting.yaml", fs.WithContent(`
road:
  length: 500
  lamps: 10
coefficients:
  alpha: 0.5
  beta: 0.2
  gamma: 0.3
  delta: 0.1
  nmax: 40
conditions:
  time_of_day: twilight
  weather: fog
  traffic_mode: sparse
  traffic_density: 0.8
  traffic_speed: 60
tick_interval: 250ms
planner:
  window:
    start: 0
    end: 7200
  timeout: 5s
nats:
  enabled: true
  url: nats://broker:4222
log:
  level: debug
  format: json
`))
	defer file.Remove()

	cfg, err := Load(file.Path())
	assert.NilError(t, err)
	assert.Equal(t, cfg.Road.RoadLength, 500.0)
	assert.Equal(t, cfg.Road.LampCount, 10)
	// untouched nested fields keep their defaults
	assert.Equal(t, cfg.Road.Lamp.SensingRadius, 50.0)
	assert.Equal(t, cfg.Coefficients.NMax, 40.0)
	assert.Equal(t, cfg.Conditions.TimeOfDay, environment.Twilight)
	assert.Equal(t, cfg.Conditions.TrafficMode, traffic.Sparse)
	assert.Equal(t, cfg.TickInterval, 250*time.Millisecond)
	assert.Equal(t, cfg.Planner.Timeout, 5*time.Second)
	assert.Equal(t, cfg.Planner.Window.End, 7200.0)
	assert.Assert(t, cfg.NATS.Enabled)
	assert.Equal(t, cfg.NATS.URL, "nats://broker:4222")
	assert.Equal(t, cfg.NATS.Subject, "lighting")

	sys := cfg.System()
	assert.Equal(t, sys.Simulator.RoadLength, 500.0)
	assert.Equal(t, sys.TickInterval, 250*time.Millisecond)

	web := cfg.Webservice()
	assert.Equal(t, web.PlannerTimeout, 5*time.Second)
	assert.Equal(t, web.Address, ":8080")

	log, err := cfg.Logger()
	assert.NilError(t, err)
	assert.Equal(t, log.GetLevel(), logrus.DebugLevel)
	_, ok := log.Formatter.(*logrus.JSONFormatter)
	assert.Assert(t, ok)
}

func TestLoadJSON(t *testing.T) {
	file := fs.NewFile(t, "lighting.json", fs.WithContent(`{"road": {"length": 2000, "lamps": 40}, "time_step": 2}`))
	defer file.Remove()

	cfg, err := Load(file.Path())
	assert.NilError(t, err)
	assert.Equal(t, cfg.Road.RoadLength, 2000.0)
	assert.Equal(t, cfg.TimeStep, 2.0)
}

func TestLoadRejects(t *testing.T) {
	docs := map[string]string{
		"road":        "road: {length: 0}",
		"lamps":       "road: {lamps: 0}",
		"nmax":        "coefficients: {nmax: 0}",
		"weather":     "conditions: {weather: hail}",
		"density":     "conditions: {traffic_density: 1.5}",
		"time step":   "time_step: -1",
		"window":      "planner: {window: {start: 10, end: 5}}",
		"log level":   "log: {level: loud}",
		"lamp range":  "road: {lamp: {min_brightness: 0.9, max_brightness: 0.5}}",
		"tick period": "tick_interval: 0s",
	}
	for name, doc := range docs {
		file := fs.NewFile(t, "bad.yaml", fs.WithContent(doc))
		_, err := Load(file.Path())
		assert.ErrorIs(t, err, lighting.ErrInvalidValue, name)
		file.Remove()
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.ErrorContains(t, err, "reading config file")

	file := fs.NewFile(t, "broken.yaml", fs.WithContent("road: [1, 2"))
	defer file.Remove()
	_, err = Load(file.Path())
	assert.ErrorContains(t, err, "parsing config")
}
