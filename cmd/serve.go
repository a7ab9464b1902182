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
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/enrichment-engine/internal/callback"
	"github.com/sells-group/enrichment-engine/internal/enrichment"
	"github.com/sells-group/enrichment-engine/internal/monitoring"
)

var servePort int

// buildRouter assembles the full HTTP surface: the inbound callback
// route, task submission, health, and both metrics endpoints.
func buildRouter(env *engineEnv, d *dispatcher, webhookSecret string) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	var verifier callback.TokenVerifier
	if webhookSecret != "" {
		verifier = callback.NewHMACVerifier(webhookSecret)
	}
	callback.NewServer(env.CallbackHandler, verifier, zap.L()).Register(r)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/metrics.json", func(w http.ResponseWriter, r *http.Request) {
		snap, err := env.Collector.Collect(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	r.Handle("/metrics", env.PrometheusExport.Handler())

	r.Post("/tasks", func(w http.ResponseWriter, r *http.Request) {
		handleTaskSubmission(d, webhookSecret, w, r)
	})

	return r
}

func handleTaskSubmission(d *dispatcher, webhookSecret string, w http.ResponseWriter, r *http.Request) {
	if webhookSecret != "" {
		auth := r.Header.Get("Authorization")
		if auth != "Bearer "+webhookSecret {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
	}

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := d.Submit(req); err != nil {
		if _, ok := err.(errBusy); ok {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}
		if enrichment.IsValidation(err) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "job_id": req.JobID})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the callback and task-submission HTTP server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := buildEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		d := newDispatcher(env, 20)

		if cfg.Monitoring.Enabled {
			alerter := monitoring.NewAlerter(cfg.Monitoring)
			checker := monitoring.NewChecker(env.Collector, alerter, cfg.Monitoring)
			go checker.Run(ctx)
			zap.L().Info("monitoring: alert checker enabled", zap.String("webhook_url", cfg.Monitoring.WebhookURL))
		}

		router := buildRouter(env, d, cfg.Callback.WebhookSecret)
		port := resolvePort(servePort, cfg.Server.Port)
		srvErr := startServer(ctx, router, port)
		d.Drain()
		return srvErr
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

func resolvePort(flagPort, configPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return configPort
}
