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
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civimetric/robustness-cli/internal/robustness"
	"github.com/civimetric/robustness-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored runs and assessments over HTTP",
	Long: `Starts a read-only JSON API over the assessment store.

Routes:
  GET /health
  GET /api/runs?limit=&offset=
  GET /api/runs/{runID}
  GET /api/runs/{runID}/assessments?iso3=&year=&band=&tipping=&limit=
  GET /api/assessments?iso3=&year=&band=&tipping=&limit=   (latest run)`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if servePort > 0 {
		cfg.Server.Port = servePort
	}
	if err := cfg.Validate("serve"); err != nil {
		return err
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           buildRouter(st),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

func buildRouter(st store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/runs", handleListRuns(st))
		r.Get("/runs/{runID}", handleGetRun(st))
		r.Get("/runs/{runID}/assessments", handleRunAssessments(st))
		r.Get("/assessments", handleLatestAssessments(st))
	})
	return r
}

func handleListRuns(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := queryInt(r, "limit", 50)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		offset, err := queryInt(r, "offset", 0)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		runs, err := st.ListRuns(r.Context(), store.RunFilter{Limit: limit, Offset: offset})
		if err != nil {
			zap.L().Error("list runs", zap.Error(err))
			writeJSONError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if runs == nil {
			runs = []store.Run{}
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

func handleGetRun(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := st.GetRun(r.Context(), chi.URLParam(r, "runID"))
		if err != nil {
			if errors.Is(err, store.ErrRunNotFound) {
				writeJSONError(w, http.StatusNotFound, "run not found")
				return
			}
			zap.L().Error("get run", zap.Error(err))
			writeJSONError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

func handleRunAssessments(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID := chi.URLParam(r, "runID")
		if _, err := st.GetRun(r.Context(), runID); err != nil {
			if errors.Is(err, store.ErrRunNotFound) {
				writeJSONError(w, http.StatusNotFound, "run not found")
				return
			}
			zap.L().Error("get run", zap.Error(err))
			writeJSONError(w, http.StatusInternalServerError, "internal error")
			return
		}
		serveAssessments(w, r, st, runID)
	}
}

func handleLatestAssessments(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := st.LatestRun(r.Context())
		if err != nil {
			zap.L().Error("latest run", zap.Error(err))
			writeJSONError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if run == nil {
			writeJSONError(w, http.StatusNotFound, "no runs stored")
			return
		}
		serveAssessments(w, r, st, run.ID)
	}
}

func serveAssessments(w http.ResponseWriter, r *http.Request, st store.Store, runID string) {
	filter, err := assessmentFilterFromQuery(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := st.Assessments(r.Context(), runID, filter)
	if err != nil {
		zap.L().Error("load assessments", zap.String("run_id", runID), zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if rows == nil {
		rows = []robustness.Assessment{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func assessmentFilterFromQuery(r *http.Request) (store.AssessmentFilter, error) {
	limit, err := queryInt(r, "limit", 500)
	if err != nil {
		return store.AssessmentFilter{}, err
	}
	year, err := queryInt(r, "year", 0)
	if err != nil {
		return store.AssessmentFilter{}, err
	}
	return store.AssessmentFilter{
		ISO3:        strings.ToUpper(r.URL.Query().Get("iso3")),
		Year:        year,
		Band:        r.URL.Query().Get("band"),
		TippingOnly: r.URL.Query().Get("tipping") == "true",
		Limit:       limit,
	}, nil
}

// queryInt parses a non-negative integer query parameter, returning def
// when the parameter is absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, eris.Errorf("invalid %s: %q", name, raw)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
