package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kwakser/lighting-optimization/internal/pkg/config"
	"github.com/kwakser/lighting-optimization/internal/pkg/datastreams/promhandler"
	"github.com/kwakser/lighting-optimization/internal/pkg/root"
	"github.com/kwakser/lighting-optimization/internal/pkg/scenario"
	"github.com/kwakser/lighting-optimization/internal/pkg/webservice"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(opts *options) *cobra.Command {
	var address string
	var autostart bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP control surface and the live loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Web.Address = address
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg, autostart, log)
		},
	}
	cmd.Flags().StringVarP(&address, "address", "a", "", "listen address, overrides web.address")
	cmd.Flags().BoolVar(&autostart, "start", false, "start the live loop immediately")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, autostart bool, log *logrus.Logger) error {
	log.WithField("version", version).Info("[Main] Starting lighting")

	log.Info("[Main] Building System")
	sys, err := root.New(cfg.System(), log)
	if err != nil {
		return err
	}
	defer sys.Close()

	if cfg.Scenario != "" {
		sc, err := scenario.Load(cfg.Scenario)
		if err != nil {
			return err
		}
		if err := sys.LoadScenario(sc); err != nil {
			return err
		}
	}

	log.Info("[Main] Linking Prometheus Handler")
	metrics, err := promhandler.New(sys, log)
	if err != nil {
		return err
	}
	go metrics.Process()
	defer metrics.Stop()

	if cfg.NATS.Enabled {
		log.Info("[Main] Linking NATS Handler")
	}
	stopNATS, err := startNATS(cfg.NATS, sys, log)
	if err != nil {
		return err
	}
	defer stopNATS()

	app := &webservice.App{
		System:  sys,
		Metrics: metrics.HTTPHandler(),
		Config:  cfg.Webservice(),
		Context: ctx,
		Log:     log,
	}
	srv := &http.Server{
		Addr:              cfg.Web.Address,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.WithField("address", srv.Addr).Info("[Main] Starting Server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	if autostart {
		if err := sys.Start(ctx); err != nil {
			return err
		}
	}

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	log.Info("[Main] Stopping system")
	sys.Stop()
	shutdown, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdown)
}
