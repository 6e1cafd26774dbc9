package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	ossignal "os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dividendlab/screener-cli/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the screening API over HTTP",
	Long:  "Read endpoints for run history plus an async trigger for a new screening pass. Backs the dashboard.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := ossignal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env, cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			zap.L().Info("http server listening", zap.Int("port", port))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-errCh:
			return err
		}
	},
}

func newRouter(env *env, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/runs", listRunsHandler(env))
		r.Get("/runs/latest", latestRunHandler(env))
		r.Get("/runs/{id}", showRunHandler(env))
		r.Get("/tickers/{ticker}/history", tickerHistoryHandler(env))
		r.Post("/run", triggerRunHandler(env))
	})

	return r
}

type runDetail struct {
	Run     *model.Run              `json:"run"`
	Results []model.SelectionResult `json:"results"`
}

func listRunsHandler(env *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		key := fmt.Sprintf("runs:list:%d", limit)
		if v, ok := env.Cache.Get(key); ok {
			writeJSON(w, http.StatusOK, v)
			return
		}

		runs, err := env.Store.ListRuns(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		env.Cache.Set(key, runs)
		writeJSON(w, http.StatusOK, runs)
	}
}

func latestRunHandler(env *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if v, ok := env.Cache.Get("runs:latest"); ok {
			writeJSON(w, http.StatusOK, v)
			return
		}

		run, err := env.Store.LatestRun(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if run == nil {
			writeError(w, http.StatusNotFound, fmt.Errorf("no runs yet"))
			return
		}
		results, err := env.Store.Results(r.Context(), run.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		detail := runDetail{Run: run, Results: results}
		env.Cache.Set("runs:latest", detail)
		writeJSON(w, http.StatusOK, detail)
	}
}

func showRunHandler(env *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("bad run id"))
			return
		}

		run, err := env.Store.GetRun(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if run == nil {
			writeError(w, http.StatusNotFound, fmt.Errorf("run %d not found", id))
			return
		}
		results, err := env.Store.Results(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, runDetail{Run: run, Results: results})
	}
}

func tickerHistoryHandler(env *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ticker := chi.URLParam(r, "ticker")
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		history, err := env.Store.TickerHistory(r.Context(), ticker, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, history)
	}
}

// triggerRunHandler starts a screening pass in the background and
// returns immediately with a trigger id for log correlation.
func triggerRunHandler(env *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		triggerID := uuid.New().String()

		go func() {
			log := zap.L().With(zap.String("trigger_id", triggerID))
			run, _, err := env.Pipeline.Run(context.Background())
			if err != nil {
				log.Error("triggered run failed", zap.Error(err))
				return
			}
			log.Info("triggered run complete",
				zap.Int64("run_id", run.ID),
				zap.Int("selected", run.SelectedCount))
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":     "accepted",
			"trigger_id": triggerID,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
