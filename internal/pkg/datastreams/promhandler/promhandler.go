// Package promhandler exports the per-tick status as Prometheus metrics.
package promhandler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/kwakser/lighting-optimization/internal/pkg/msg"
	"github.com/kwakser/lighting-optimization/internal/pkg/root"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Handler keeps one gauge set on its own registry.
type Handler struct {
	pid      uuid.UUID
	registry *prometheus.Registry
	inbox    <-chan msg.Msg
	stop     chan bool
	log      logrus.FieldLogger

	simTime    prometheus.Gauge
	energy     *prometheus.GaugeVec
	savings    prometheus.Gauge
	brightness prometheus.Gauge
	active     prometheus.Gauge
	vehicles   prometheus.Gauge
	phase      prometheus.Gauge
	ticks      prometheus.Counter
}

// New registers the metrics and subscribes to system status.
func New(system msg.Publisher, log logrus.FieldLogger) (*Handler, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	pid, err := uuid.NewUUID()
	if err != nil {
		return nil, err
	}
	inbox, err := system.Subscribe(pid, msg.Status)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Handler{
		pid:      pid,
		registry: reg,
		inbox:    inbox,
		stop:     make(chan bool, 1),
		log:      log,
		simTime: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lighting_simulated_seconds",
			Help: "Simulated time since the last reset.",
		}),
		energy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lighting_energy_kwh",
			Help: "Cumulative energy since the last reset.",
		}, []string{"mode"}),
		savings: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lighting_savings_percent",
			Help: "Smart saving relative to the always-on baseline.",
		}),
		brightness: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lighting_mean_brightness",
			Help: "Mean lamp brightness after the latest tick.",
		}),
		active: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lighting_active_lamps",
			Help: "Number of lamps drawing power.",
		}),
		vehicles: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lighting_vehicles",
			Help: "Number of vehicles on the road.",
		}),
		phase: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lighting_daylight_phase",
			Help: "Continuous time-of-day phase, 0 night to 2 day.",
		}),
		ticks: factory.NewCounter(prometheus.CounterOpts{
			Name: "lighting_ticks_total",
			Help: "Status snapshots observed.",
		}),
	}, nil
}

// PID is the subscriber id registered with the system.
func (h *Handler) PID() uuid.UUID {
	return h.pid
}

// Registry exposes the metrics for scraping and tests.
func (h *Handler) Registry() *prometheus.Registry {
	return h.registry
}

// HTTPHandler serves the registry in the text exposition format.
func (h *Handler) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})
}

// Observe updates every metric from one snapshot.
func (h *Handler) Observe(s root.Status) {
	h.simTime.Set(s.Time)
	h.energy.WithLabelValues("smart").Set(s.SmartKWH)
	h.energy.WithLabelValues("traditional").Set(s.TraditionalKWH)
	h.savings.Set(s.Savings)
	h.brightness.Set(s.MeanBrightness)
	h.active.Set(float64(s.ActiveLamps))
	h.vehicles.Set(float64(s.Vehicles))
	h.phase.Set(s.Phase)
	h.ticks.Inc()
}

// Process observes published snapshots until Stop or the system closes.
func (h *Handler) Process() {
	h.log.Info("[Prometheus] Process Started")
loop:
	for {
		select {
		case m, ok := <-h.inbox:
			if !ok {
				break loop
			}
			if s, ok := m.Payload().(root.Status); ok {
				h.Observe(s)
			}
		case <-h.stop:
			break loop
		}
	}
	h.log.Info("[Prometheus] Process Shutdown")
}

// Stop ends Process.
func (h *Handler) Stop() {
	select {
	case h.stop <- true:
	default:
	}
}
