package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/kwakser/lighting-optimization/internal/pkg/config"
	"github.com/sirupsen/logrus/hooks/test"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/fs"
)

func TestSimulateTickLimit(t *testing.T) {
	log, _ := test.NewNullLogger()
	out := &bytes.Buffer{}
	assert.NilError(t, simulate(config.Default(), 30, log, out))
	assert.Assert(t, strings.Contains(out.String(), "ticks:            30\n"))
	assert.Assert(t, strings.Contains(out.String(), "simulated time:   30 s\n"))
}

func TestSimulateScenarioEnds(t *testing.T) {
	file := fs.NewFile(t, "scenario.json", fs.WithContent(`{
  "events": [
    {"time": 0, "actions": [{"type": "set", "param": "weather", "value": "fog"}]},
    {"time": 5, "actions": [{"type": "set", "param": "volume", "value": 3}]}
  ],
  "config": {"duration": 12}
}`))
	defer file.Remove()

	log, _ := test.NewNullLogger()
	cfg := config.Default()
	cfg.Scenario = file.Path()
	out := &bytes.Buffer{}
	assert.NilError(t, simulate(cfg, 0, log, out))
	assert.Assert(t, strings.Contains(out.String(), "simulated time:   12 s\n"), out.String())
	assert.Assert(t, strings.Contains(out.String(), "warning:"), out.String())
}

func TestSimulateNeedsLimit(t *testing.T) {
	log, _ := test.NewNullLogger()
	err := simulate(config.Default(), 0, log, &bytes.Buffer{})
	assert.ErrorIs(t, err, errNoLimit)
}

func TestOptimizePrintsProfile(t *testing.T) {
	log, _ := test.NewNullLogger()
	out := &bytes.Buffer{}
	assert.NilError(t, optimize(context.Background(), config.Default(), true, log, out))
	assert.Assert(t, strings.Contains(out.String(), "success:     true"), out.String())
	assert.Assert(t, strings.Contains(out.String(), "brightness"))
	// header plus 25 hourly rows
	rows := strings.Split(strings.TrimSpace(out.String()[strings.Index(out.String(), "hour"):]), "\n")
	assert.Equal(t, len(rows), profileSamples+1)
}

func TestRootCommandFlags(t *testing.T) {
	file := fs.NewFile(t, "lighting.yaml", fs.WithContent("road: {lamps: 8}\n"))
	defer file.Remove()

	out := &bytes.Buffer{}
	cmd := newRootCommand()
	cmd.SetOut(out)
	cmd.SetArgs([]string{"simulate", "--config", file.Path(), "--log-level", "error", "--ticks", "5"})
	assert.NilError(t, cmd.Execute())
	assert.Assert(t, strings.Contains(out.String(), "ticks:            5\n"))

	cmd = newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"simulate", "--log-level", "loud"})
	assert.ErrorContains(t, cmd.Execute(), "loud")
}
