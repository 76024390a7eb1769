package webservice

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/kwakser/lighting-optimization/internal/pkg/analytic"
	"github.com/kwakser/lighting-optimization/internal/pkg/lighting"
	"github.com/kwakser/lighting-optimization/internal/pkg/msg"
	"github.com/kwakser/lighting-optimization/internal/pkg/optimizer"
	"github.com/kwakser/lighting-optimization/internal/pkg/root"
	"github.com/kwakser/lighting-optimization/internal/pkg/scenario"
	"github.com/sirupsen/logrus"
)

// Config is the listener setup.
type Config struct {
	Address        string           `yaml:"address" json:"address"`
	PlannerTimeout time.Duration    `yaml:"planner_timeout" json:"planner_timeout"`
	Window         optimizer.Window `yaml:"window" json:"window"`
}

// App serves the control surface of one System.
type App struct {
	System  *root.System
	Metrics http.Handler
	Config  Config
	// Context bounds loops started over HTTP.
	Context context.Context
	Log     logrus.FieldLogger

	upgrader websocket.Upgrader
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// OptimizeRequest optionally overrides the planning window.
type OptimizeRequest struct {
	Window *optimizer.Window `json:"window,omitempty"`
}

// Router builds the route table.
func (app *App) Router() *mux.Router {
	if app.Log == nil {
		app.Log = logrus.StandardLogger()
	}
	if app.Context == nil {
		app.Context = context.Background()
	}

	r := mux.NewRouter()
	r.HandleFunc("/", app.BaseHandler)
	r.HandleFunc("/status", app.StatusHandler).Methods("GET")
	r.HandleFunc("/history", app.HistoryHandler).Methods("GET")
	r.HandleFunc("/conditions", app.ConditionsHandler).Methods("GET", "POST")
	r.HandleFunc("/start", app.StartHandler).Methods("POST")
	r.HandleFunc("/stop", app.StopHandler).Methods("POST")
	r.HandleFunc("/reset", app.ResetHandler).Methods("POST")
	r.HandleFunc("/scenario", app.ScenarioHandler).Methods("POST", "DELETE")
	r.HandleFunc("/optimize", app.OptimizeHandler).Methods("POST")
	r.HandleFunc("/ws", app.StreamHandler).Methods("GET")
	if app.Metrics != nil {
		r.Handle("/metrics", app.Metrics).Methods("GET")
	}
	r.Use(app.loggingMiddleware)
	return r
}

func (app *App) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		app.Log.WithFields(logrus.Fields{
			"method":  r.Method,
			"path":    r.URL.Path,
			"elapsed": time.Since(start),
		}).Debug("[Webservice] request")
	})
}

func (app *App) respond(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(code)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		app.Log.WithError(err).Warn("[Webservice] unable to write response")
	}
}

func (app *App) fail(w http.ResponseWriter, code int, err error) {
	app.respond(w, code, ErrorResponse{Error: err.Error()})
}

// errorCode maps domain errors to status codes.
func errorCode(err error) int {
	switch {
	case errors.Is(err, lighting.ErrInvalidValue), errors.Is(err, scenario.ErrInvalidScenario):
		return http.StatusUnprocessableEntity
	case errors.Is(err, root.ErrRunning):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// BaseHandler answers liveness probes.
func (app *App) BaseHandler(w http.ResponseWriter, r *http.Request) {
	app.respond(w, http.StatusOK, nil)
}

// StatusHandler returns the latest snapshot.
func (app *App) StatusHandler(w http.ResponseWriter, r *http.Request) {
	app.respond(w, http.StatusOK, app.System.Status())
}

// HistoryHandler returns the per-tick samples since the last reset.
func (app *App) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	app.respond(w, http.StatusOK, app.System.History())
}

// ConditionsHandler reads or replaces the run conditions. A POST body is
// merged over the current conditions.
func (app *App) ConditionsHandler(w http.ResponseWriter, r *http.Request) {
	current := app.System.Status().Conditions
	if r.Method == "GET" {
		app.respond(w, http.StatusOK, current)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		app.fail(w, http.StatusBadRequest, err)
		return
	}
	next := current
	if err := json.Unmarshal(body, &next); err != nil {
		app.fail(w, http.StatusBadRequest, err)
		return
	}
	if err := app.System.Apply(next); err != nil {
		app.fail(w, errorCode(err), err)
		return
	}
	app.respond(w, http.StatusOK, next)
}

// StartHandler resets and starts the live loop.
func (app *App) StartHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.System.Start(app.Context); err != nil {
		app.fail(w, errorCode(err), err)
		return
	}
	app.respond(w, http.StatusAccepted, app.System.Status())
}

// StopHandler halts the live loop.
func (app *App) StopHandler(w http.ResponseWriter, r *http.Request) {
	app.System.Stop()
	app.respond(w, http.StatusOK, app.System.Status())
}

// ResetHandler stops the loop and zeroes the run.
func (app *App) ResetHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.System.Clear(); err != nil {
		app.fail(w, errorCode(err), err)
		return
	}
	app.respond(w, http.StatusOK, app.System.Status())
}

// ScenarioHandler loads a scenario document or drops the active one.
func (app *App) ScenarioHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == "DELETE" {
		app.System.ClearScenario()
		app.respond(w, http.StatusOK, app.System.Status())
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		app.fail(w, http.StatusBadRequest, err)
		return
	}
	sc, err := scenario.Parse(body)
	if err != nil {
		app.fail(w, http.StatusBadRequest, err)
		return
	}
	if err := app.System.LoadScenario(sc); err != nil {
		app.fail(w, errorCode(err), err)
		return
	}
	app.respond(w, http.StatusCreated, app.System.Status())
}

// OptimizeHandler plans power and spacing for the system's road. A solver
// failure is a 200 with an unsuccessful result.
func (app *App) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	req := OptimizeRequest{}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		app.fail(w, http.StatusBadRequest, err)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			app.fail(w, http.StatusBadRequest, err)
			return
		}
	}
	window := app.Config.Window
	if req.Window != nil {
		window = *req.Window
	}

	model, err := analytic.New(app.System.Coefficients(), app.System.RoadLength(), app.System.LampCount())
	if err != nil {
		app.fail(w, errorCode(err), err)
		return
	}
	opt, err := optimizer.New(model, window, optimizer.WithLogger(app.Log))
	if err != nil {
		app.fail(w, errorCode(err), err)
		return
	}

	ctx := r.Context()
	if app.Config.PlannerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, app.Config.PlannerTimeout)
		defer cancel()
	}
	app.respond(w, http.StatusOK, opt.OptimizeContext(ctx))
}

// StreamHandler upgrades to a websocket and pushes every status snapshot
// until the client goes away.
func (app *App) StreamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := app.upgrader.Upgrade(w, r, nil)
	if err != nil {
		app.Log.WithError(err).Warn("[Webservice] websocket upgrade failed")
		return
	}
	defer conn.Close()

	pid := uuid.New()
	ch, err := app.System.Subscribe(pid, msg.Status)
	if err != nil {
		app.Log.WithError(err).Warn("[Webservice] subscribe failed")
		return
	}
	defer app.System.Unsubscribe(pid)

	// the read loop notices the client closing
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(app.System.Status()); err != nil {
		return
	}
	for {
		select {
		case m, ok := <-ch:
			if !ok {
				return
			}
			st, ok := m.Payload().(root.Status)
			if !ok {
				continue
			}
			if err := conn.WriteJSON(st); err != nil {
				return
			}
		case <-gone:
			return
		case <-app.Context.Done():
			return
		}
	}
}
