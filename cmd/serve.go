package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/placement-monitor/internal/metrics"
	"github.com/sells-group/placement-monitor/internal/model"
	"github.com/sells-group/placement-monitor/internal/monitor"
	"github.com/sells-group/placement-monitor/internal/relate"
	"github.com/sells-group/placement-monitor/internal/store"
)

const maxAlertPage = 500

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for runs, alerts and related names",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return eris.Wrap(err, "register metrics")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		mon, err := initMonitor(ctx, st)
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(newAPI(ctx, mon, st, prometheus.DefaultGatherer), cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// runner is the part of the monitor the API drives.
type runner interface {
	Run(ctx context.Context) (monitor.Summary, error)
	Running() bool
	AddRelationship(ctx context.Context, parent, alias string) (model.RelatednessEdge, bool, error)
	Relationships(ctx context.Context) relate.Groups
}

type api struct {
	mon      runner
	store    store.Store
	gatherer prometheus.Gatherer
	// base outlives requests; background runs stop with the server.
	base context.Context
	log  *zap.Logger
}

func newAPI(base context.Context, mon runner, st store.Store, g prometheus.Gatherer) *api {
	return &api{
		mon:      mon,
		store:    st,
		gatherer: g,
		base:     base,
		log:      zap.L().With(zap.String("component", "api")),
	}
}

func newRouter(a *api, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", a.health)
	r.Handle("/metrics", metrics.Handler(a.gatherer))

	r.Route("/api", func(r chi.Router) {
		r.Post("/monitoring/run", a.runMonitoring)
		r.Get("/relationships", a.listRelationships)
		r.Post("/relationships", a.addRelationship)
		r.Get("/alerts", a.listAlerts)
		r.Patch("/alerts/{id}", a.reviewAlert)
	})
	return r
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "running": a.mon.Running()})
}

// runMonitoring starts a run in the background and answers 202. With
// ?wait=true it blocks and returns the run summary.
func (a *api) runMonitoring(w http.ResponseWriter, r *http.Request) {
	if a.mon.Running() {
		writeError(w, http.StatusConflict, "a monitoring run is already in progress")
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		sum, err := a.mon.Run(r.Context())
		if err != nil {
			a.log.Error("monitoring run failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "monitoring run failed")
			return
		}
		if sum.Skipped {
			writeError(w, http.StatusConflict, "a monitoring run is already in progress")
			return
		}
		writeJSON(w, http.StatusOK, sum)
		return
	}

	go func() {
		sum, err := a.mon.Run(a.base)
		if err != nil {
			a.log.Error("monitoring run failed", zap.Error(err))
			return
		}
		a.log.Info("monitoring run complete",
			zap.Int("checked", sum.Checked),
			zap.Int("alerts_created", sum.AlertsCreated),
			zap.Bool("skipped", sum.Skipped),
			zap.Duration("duration", sum.Duration),
		)
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (a *api) listRelationships(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.mon.Relationships(r.Context()))
}

func (a *api) addRelationship(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Parent string `json:"parent"`
		Alias  string `json:"alias"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	e, added, err := a.mon.AddRelationship(r.Context(), req.Parent, req.Alias)
	switch {
	case errors.Is(err, relate.ErrGenericName), errors.Is(err, relate.ErrMissingName):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		a.log.Error("add relationship failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not save relationship")
		return
	}

	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"added": added, "relationship": e})
}

func (a *api) listAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.AlertFilter{
		Status:      model.AlertStatus(strings.ToLower(q.Get("status"))),
		CandidateID: q.Get("candidate_id"),
		Limit:       50,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxAlertPage {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxAlertPage))
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	alerts, err := a.store.ListAlerts(r.Context(), filter)
	if err != nil {
		a.log.Error("list alerts failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list alerts")
		return
	}
	if alerts == nil {
		alerts = []model.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

func (a *api) reviewAlert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status model.AlertStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Status = model.AlertStatus(strings.ToLower(string(req.Status)))
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	alert, err := a.store.UpdateAlertStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "alert not found")
		return
	case err != nil:
		a.log.Error("update alert failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not update alert")
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
