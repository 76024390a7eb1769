package simulator

import (
	"github.com/kwakser/lighting-optimization/internal/pkg/environment"
	"github.com/kwakser/lighting-optimization/internal/pkg/traffic"
)

// Conditions is the externally settable configuration of a run. Scenario
// actions and control surfaces change a copy and hand it back via Apply.
type Conditions struct {
	TimeOfDay      environment.TimeOfDay `json:"time_of_day" yaml:"time_of_day"`
	Weather        environment.Weather   `json:"weather" yaml:"weather"`
	TrafficMode    traffic.Mode          `json:"traffic_mode" yaml:"traffic_mode"`
	TrafficDensity float64               `json:"traffic_density" yaml:"traffic_density"`
	TrafficSpeed   float64               `json:"traffic_speed" yaml:"traffic_speed"`
}

// DefaultConditions is a clear night with uniform traffic.
func DefaultConditions() Conditions {
	return Conditions{
		TimeOfDay:      environment.Night,
		Weather:        environment.Clear,
		TrafficMode:    traffic.Uniform,
		TrafficDensity: 0.5,
		TrafficSpeed:   50,
	}
}

// Validate checks every field without touching any state.
func (c Conditions) Validate() error {
	if _, err := environment.ParseTimeOfDay(string(c.TimeOfDay)); err != nil {
		return err
	}
	if _, err := environment.ParseWeather(string(c.Weather)); err != nil {
		return err
	}
	if _, err := traffic.ParseMode(string(c.TrafficMode)); err != nil {
		return err
	}
	if err := traffic.ValidateDensity(c.TrafficDensity); err != nil {
		return err
	}
	return traffic.ValidateSpeed(c.TrafficSpeed)
}
