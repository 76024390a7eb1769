package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/kwakser/lighting-optimization/internal/pkg/analytic"
	"github.com/kwakser/lighting-optimization/internal/pkg/config"
	"github.com/kwakser/lighting-optimization/internal/pkg/optimizer"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// profileSamples covers one day in whole hours, both ends included.
const profileSamples = 25

func newOptimizeCommand(opts *options) *cobra.Command {
	var start, end float64
	var profile bool
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Plan lamp power and spacing against the analytic model",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("start") {
				cfg.Planner.Window.Start = start
			}
			if cmd.Flags().Changed("end") {
				cfg.Planner.Window.End = end
			}
			return optimize(cmd.Context(), cfg, profile, log, cmd.OutOrStdout())
		},
	}
	cmd.Flags().Float64Var(&start, "start", 0, "window start in seconds of day")
	cmd.Flags().Float64Var(&end, "end", 0, "window end in seconds of day")
	cmd.Flags().BoolVar(&profile, "profile", true, "print the hourly brightness profile of the plan")
	return cmd
}

func optimize(ctx context.Context, cfg config.Config, profile bool, log logrus.FieldLogger, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	model, err := analytic.New(cfg.Coefficients, cfg.Road.RoadLength, cfg.Road.LampCount)
	if err != nil {
		return err
	}
	opt, err := optimizer.New(model, cfg.Planner.Window, optimizer.WithLogger(log))
	if err != nil {
		return err
	}
	if cfg.Planner.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Planner.Timeout)
		defer cancel()
	}

	res := opt.OptimizeContext(ctx)
	fmt.Fprintf(out, "success:     %v\n", res.Success)
	fmt.Fprintf(out, "message:     %s\n", res.Message)
	fmt.Fprintf(out, "power:       %.2f W\n", res.Power)
	fmt.Fprintf(out, "spacing:     %.2f m\n", res.Spacing)
	fmt.Fprintf(out, "objective:   %.2f\n", res.Objective)
	fmt.Fprintf(out, "constraint:  %.4f\n", res.Constraint)
	fmt.Fprintf(out, "iterations:  %d (%d evaluations)\n", res.Iterations, res.Evaluations)
	if !profile || !res.Success {
		return nil
	}

	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "hour\tdensity\tambient\tbrightness\t")
	for _, p := range model.Profile(0, analytic.Day, profileSamples, res.Power, res.Spacing) {
		fmt.Fprintf(tw, "%02.0f\t%.3f\t%.3f\t%.3f\t\n",
			p.Time/3600, analytic.VehicleDensity(p.Time), analytic.AmbientLight(p.Time), p.MeanBrightness)
	}
	return tw.Flush()
}
