package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/kwakser/lighting-optimization/internal/pkg/config"
	"github.com/kwakser/lighting-optimization/internal/pkg/root"
	"github.com/kwakser/lighting-optimization/internal/pkg/scenario"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var errNoLimit = errors.New("a tick limit is required without a scenario")

func newSimulateCommand(opts *options) *cobra.Command {
	var scenarioPath string
	var ticks int
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Step the simulator as fast as possible and print a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			if scenarioPath != "" {
				cfg.Scenario = scenarioPath
			}
			return simulate(cfg, ticks, log, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&scenarioPath, "scenario", "s", "", "scenario file to play")
	cmd.Flags().IntVarP(&ticks, "ticks", "n", 3600, "tick limit, 0 runs a scenario to its end")
	return cmd
}

func simulate(cfg config.Config, ticks int, log logrus.FieldLogger, out io.Writer) error {
	if ticks <= 0 && cfg.Scenario == "" {
		return errNoLimit
	}

	sys, err := root.New(cfg.System(), log)
	if err != nil {
		return err
	}
	defer sys.Close()

	stopNATS, err := startNATS(cfg.NATS, sys, log)
	if err != nil {
		return err
	}
	defer stopNATS()

	if cfg.Scenario != "" {
		sc, err := scenario.Load(cfg.Scenario)
		if err != nil {
			return err
		}
		if err := sys.LoadScenario(sc); err != nil {
			return err
		}
	}

	n := 0
	for ticks <= 0 || n < ticks {
		done, err := sys.Tick()
		if err != nil {
			return err
		}
		n++
		if done {
			break
		}
	}
	printSummary(out, n, sys.Status())
	return nil
}

func printSummary(out io.Writer, ticks int, st root.Status) {
	fmt.Fprintf(out, "ticks:            %d\n", ticks)
	fmt.Fprintf(out, "simulated time:   %.0f s\n", st.Time)
	fmt.Fprintf(out, "time of day:      %s\n", st.TimeOfDay)
	fmt.Fprintf(out, "mean brightness:  %.3f\n", st.MeanBrightness)
	fmt.Fprintf(out, "active lamps:     %d\n", st.ActiveLamps)
	fmt.Fprintf(out, "vehicles:         %d\n", st.Vehicles)
	fmt.Fprintf(out, "smart energy:     %.4f kWh\n", st.SmartKWH)
	fmt.Fprintf(out, "baseline energy:  %.4f kWh\n", st.TraditionalKWH)
	fmt.Fprintf(out, "savings:          %.1f %%\n", st.Savings)
	if st.Scenario != nil {
		for _, w := range st.Scenario.Warnings {
			fmt.Fprintf(out, "warning:          t=%.0f %s\n", w.Time, w.Message)
		}
	}
}
