// Command lighting runs the adaptive street-lighting simulator, its HTTP
// control surface and the offline power/spacing planner.
package main

import (
	"fmt"
	"os"

	"github.com/kwakser/lighting-optimization/internal/pkg/config"
	"github.com/kwakser/lighting-optimization/internal/pkg/datastreams/natshandler"
	"github.com/kwakser/lighting-optimization/internal/pkg/root"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const version = "v0.1.0"

type options struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "lighting",
		Short:         "Adaptive street-lighting simulator and planner",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML or JSON config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	cmd.AddCommand(
		newSimulateCommand(opts),
		newServeCommand(opts),
		newOptimizeCommand(opts),
	)
	return cmd
}

// load reads the config file and applies flag overrides.
func (o *options) load() (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	log, err := cfg.Logger()
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}

// startNATS forwards system messages to the configured server until the
// returned stop is called. It does nothing when NATS is disabled.
func startNATS(cfg natshandler.Config, sys *root.System, log logrus.FieldLogger) (func(), error) {
	if !cfg.Enabled {
		return func() {}, nil
	}
	h, err := natshandler.New(cfg, sys, natshandler.Dial, log)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := h.Process(); err != nil {
			log.WithError(err).Error("[Main] nats handler stopped")
		}
	}()
	return h.Stop, nil
}
