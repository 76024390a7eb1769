// Package config loads the process configuration from a YAML (or JSON) file
// layered over built-in defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kwakser/lighting-optimization/internal/pkg/datastreams/natshandler"
	"github.com/kwakser/lighting-optimization/internal/pkg/lighting"
	"github.com/kwakser/lighting-optimization/internal/pkg/optimizer"
	"github.com/kwakser/lighting-optimization/internal/pkg/root"
	"github.com/kwakser/lighting-optimization/internal/pkg/simulator"
	"github.com/kwakser/lighting-optimization/internal/pkg/webservice"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is the whole process configuration.
type Config struct {
	Road         simulator.Config      `yaml:"road" json:"road"`
	Coefficients lighting.Coefficients `yaml:"coefficients" json:"coefficients"`
	Conditions   simulator.Conditions  `yaml:"conditions" json:"conditions"`
	TimeStep     float64               `yaml:"time_step" json:"time_step"`
	TickInterval time.Duration         `yaml:"tick_interval" json:"tick_interval"`
	Scenario     string                `yaml:"scenario" json:"scenario"`
	Planner      Planner               `yaml:"planner" json:"planner"`
	NATS         natshandler.Config    `yaml:"nats" json:"nats"`
	Web          Web                   `yaml:"web" json:"web"`
	Log          Log                   `yaml:"log" json:"log"`
}

// Planner configures the offline optimizer.
type Planner struct {
	Window  optimizer.Window `yaml:"window" json:"window"`
	Timeout time.Duration    `yaml:"timeout" json:"timeout"`
}

// Web configures the HTTP control surface.
type Web struct {
	Address string `yaml:"address" json:"address"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Default returns the reference setup: a 1 km road with 20 lamps on a clear
// night with uniform traffic.
func Default() Config {
	sys := root.DefaultConfig()
	return Config{
		Road:         sys.Simulator,
		Coefficients: sys.Coefficients,
		Conditions:   sys.Conditions,
		TimeStep:     sys.TimeStep,
		TickInterval: sys.TickInterval,
		Planner: Planner{
			Window:  optimizer.DefaultWindow(),
			Timeout: 30 * time.Second,
		},
		NATS: natshandler.DefaultConfig(),
		Web:  Web{Address: ":8080"},
		Log:  Log{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	if !(c.Road.RoadLength > 0) {
		return fmt.Errorf("road length %v: %w", c.Road.RoadLength, lighting.ErrInvalidValue)
	}
	if c.Road.LampCount < 1 {
		return fmt.Errorf("lamp count %v: %w", c.Road.LampCount, lighting.ErrInvalidValue)
	}
	if err := c.Road.Lamp.Validate(); err != nil {
		return err
	}
	if err := c.Coefficients.Validate(); err != nil {
		return err
	}
	if err := c.Conditions.Validate(); err != nil {
		return err
	}
	if !(c.TimeStep > 0) {
		return fmt.Errorf("time step %v: %w", c.TimeStep, lighting.ErrInvalidValue)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval %v: %w", c.TickInterval, lighting.ErrInvalidValue)
	}
	if !(c.Planner.Window.End > c.Planner.Window.Start) {
		return fmt.Errorf("planner window [%v, %v]: %w", c.Planner.Window.Start, c.Planner.Window.End, lighting.ErrInvalidValue)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log level %q: %w", c.Log.Level, lighting.ErrInvalidValue)
	}
	return nil
}

// System is the root.Config slice of the configuration.
func (c Config) System() root.Config {
	return root.Config{
		Simulator:    c.Road,
		Coefficients: c.Coefficients,
		Conditions:   c.Conditions,
		TimeStep:     c.TimeStep,
		TickInterval: c.TickInterval,
	}
}

// Webservice is the webservice.Config slice of the configuration.
func (c Config) Webservice() webservice.Config {
	return webservice.Config{
		Address:        c.Web.Address,
		PlannerTimeout: c.Planner.Timeout,
		Window:         c.Planner.Window,
	}
}

// Logger builds a logger with the configured level and format.
func (c Config) Logger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetLevel(level)
	switch c.Log.Format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log, nil
}
