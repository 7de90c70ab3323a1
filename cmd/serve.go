package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crestline-sec/intelpipe/internal/pipeline"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.RealIP)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/documents", func(w http.ResponseWriter, req *http.Request) {
			var in pipeline.IngestInput
			if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if in.SourceURL == "" {
				writeError(w, http.StatusBadRequest, "source_url is required")
				return
			}

			res, err := env.Pipeline.IngestDocument(req.Context(), in)
			if err != nil {
				zap.L().Error("ingest failed", zap.String("source_url", in.SourceURL), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "ingest failed")
				return
			}
			status := http.StatusCreated
			if res.Duplicate {
				status = http.StatusOK
			}
			writeJSON(w, status, res)
		})

		r.Get("/documents/{id}/intel", func(w http.ResponseWriter, req *http.Request) {
			intel, err := env.Pipeline.GetIntelligence(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeError(w, http.StatusNotFound, "document not found")
				return
			}
			writeJSON(w, http.StatusOK, intel)
		})

		r.Get("/documents/{id}/audit", func(w http.ResponseWriter, req *http.Request) {
			events, err := env.Store.ListAuditEvents(req.Context(), chi.URLParam(req, "id"), 100)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "audit lookup failed")
				return
			}
			writeJSON(w, http.StatusOK, events)
		})

		r.Get("/correlation", func(w http.ResponseWriter, req *http.Request) {
			to := time.Now().UTC()
			from := to.Add(-30 * 24 * time.Hour)
			if v := req.URL.Query().Get("from"); v != "" {
				ts, err := time.Parse(time.RFC3339, v)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid from timestamp")
					return
				}
				from = ts
			}
			if v := req.URL.Query().Get("to"); v != "" {
				ts, err := time.Parse(time.RFC3339, v)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid to timestamp")
					return
				}
				to = ts
			}

			report, err := env.Correlate.Report(req.Context(), from, to)
			if err != nil {
				zap.L().Error("correlation failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "correlation failed")
				return
			}
			writeJSON(w, http.StatusOK, report)
		})

		r.Get("/actors/{id}", func(w http.ResponseWriter, req *http.Request) {
			profile, err := env.Registry.Profile(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeError(w, http.StatusNotFound, "actor not found")
				return
			}
			writeJSON(w, http.StatusOK, profile)
		})

		r.Post("/indicators/{id}/review", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				FalsePositive bool `json:"false_positive"`
			}
			if req.Body != nil {
				_ = json.NewDecoder(req.Body).Decode(&body)
			}

			id := chi.URLParam(req, "id")
			var err error
			if body.FalsePositive {
				err = env.Pipeline.MarkFalsePositive(req.Context(), id)
			} else {
				err = env.Pipeline.MarkReviewed(req.Context(), id)
			}
			if err != nil {
				writeError(w, http.StatusNotFound, "indicator not found")
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
