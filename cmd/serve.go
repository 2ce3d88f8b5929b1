package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/place-resolver/internal/hierarchy"
	"github.com/sells-group/place-resolver/internal/model"
	"github.com/sells-group/place-resolver/internal/provider"
)

var servePort int

// maxRequestBytes bounds JSON request bodies.
const maxRequestBytes = 1 << 20

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP resolution API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initEnv(ctx, "serve", prometheus.DefaultRegisterer)
		if err != nil {
			return err
		}
		defer env.Close()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           buildRouter(env.Engine, env.Registry, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// resolver is the engine surface the API needs.
type resolver interface {
	Resolve(ctx context.Context, req model.ResolutionRequest) (*model.ResolutionResult, error)
}

// healthLister reports provider health.
type healthLister interface {
	Health() []provider.Health
}

// buildRouter wires the API routes. Either dependency may be nil, in which
// case its routes answer 503.
func buildRouter(res resolver, providers healthLister, origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/resolve", handleResolve(res))
		r.Post("/expand", handleExpand)
		r.Get("/providers", func(w http.ResponseWriter, r *http.Request) {
			if providers == nil {
				respondError(w, http.StatusServiceUnavailable, "providers not configured")
				return
			}
			respond(w, http.StatusOK, providers.Health())
		})
	})

	return r
}

func handleResolve(res resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if res == nil {
			respondError(w, http.StatusServiceUnavailable, "resolver not configured")
			return
		}
		var req model.ResolutionRequest
		if err := decodeBody(w, r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.ArtifactKind = model.ArtifactKind(strings.ToLower(strings.TrimSpace(string(req.ArtifactKind))))

		result, err := res.Resolve(r.Context(), req)
		if err != nil {
			if eris.Is(err, model.ErrInvalidRequest) {
				respondError(w, http.StatusBadRequest, err.Error())
				return
			}
			zap.L().Error("resolve failed",
				zap.String("subject", req.SubjectName),
				zap.String("request_id", chimiddleware.GetReqID(r.Context())),
				zap.Error(err),
			)
			respondError(w, http.StatusInternalServerError, "resolution failed")
			return
		}
		respond(w, http.StatusOK, result)
	}
}

// expandRequest is the body of POST /v1/expand.
type expandRequest struct {
	SubjectName  string             `json:"subject_name"`
	Geo          model.Geo          `json:"geo"`
	ArtifactKind model.ArtifactKind `json:"artifact_kind"`
}

func handleExpand(w http.ResponseWriter, r *http.Request) {
	var req expandRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.SubjectName) == "" {
		respondError(w, http.StatusBadRequest, "subject_name is required")
		return
	}
	kind, err := model.ParseArtifactKind(string(req.ArtifactKind))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"levels": hierarchy.Expand(req.SubjectName, req.Geo, kind),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respond(w, status, map[string]string{"error": msg})
}
