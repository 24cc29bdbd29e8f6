package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-resolver/internal/config"
	"github.com/sells-group/parcel-resolver/internal/metrics"
	"github.com/sells-group/parcel-resolver/internal/monitoring"
	"github.com/sells-group/parcel-resolver/internal/parcel"
	"github.com/sells-group/parcel-resolver/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the property resolution API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initResolver(ctx)
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
			Handler:           buildRouter(env, cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go newChecker(env, cfg.Monitoring).Run(ctx)

		// Graceful shutdown
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
	},
}

// newChecker builds the degradation checker over the ledger and breakers.
func newChecker(env *resolverEnv, mc config.MonitoringConfig) *monitoring.Checker {
	var breakers monitoring.BreakerStates
	if env.Breakers != nil {
		breakers = env.Breakers
	}
	collector := monitoring.NewCollector(env.Store, breakers)
	return monitoring.NewChecker(collector, monitoring.NewAlerter(mc), mc)
}

// resolveRequest is the POST /v1/property/resolve body.
type resolveRequest struct {
	Address string   `json:"address"`
	Lon     *float64 `json:"lon"`
	Lat     *float64 `json:"lat"`
}

// resolveResponse pairs the quote handoff with the full cascade result.
type resolveResponse struct {
	Handoff *parcel.Handoff         `json:"handoff"`
	Result  parcel.ResolvedProperty `json:"result"`
}

// buildRouter wires the API routes. env may be nil for health-only use.
func buildRouter(env *resolverEnv, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/property/resolve", func(w http.ResponseWriter, req *http.Request) {
			handleResolve(env, w, req)
		})
		r.Get("/lookups", func(w http.ResponseWriter, req *http.Request) {
			handleLookups(env, w, req)
		})
		r.Get("/breakers", func(w http.ResponseWriter, _ *http.Request) {
			states := map[string]string{}
			if env != nil && env.Breakers != nil {
				for name, s := range env.Breakers.States() {
					states[name] = s.String()
				}
			}
			respondJSON(w, http.StatusOK, states)
		})
	})

	return r
}

func handleResolve(env *resolverEnv, w http.ResponseWriter, r *http.Request) {
	if env == nil {
		respondError(w, http.StatusServiceUnavailable, "resolver not initialized")
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Lon == nil || req.Lat == nil {
		respondError(w, http.StatusBadRequest, "lon and lat are required")
		return
	}
	if *req.Lon < -180 || *req.Lon > 180 || *req.Lat < -90 || *req.Lat > 90 {
		respondError(w, http.StatusBadRequest, "lon/lat out of range")
		return
	}

	q := parcel.Query{Address: req.Address, Coordinate: parcel.Coordinate{Lon: *req.Lon, Lat: *req.Lat}}
	res := env.resolve(r.Context(), q)

	h, err := parcel.NewHandoff(q, res)
	if err != nil {
		zap.L().Error("build handoff", zap.String("address", q.Address), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "encode parcel geometry")
		return
	}
	respondJSON(w, http.StatusOK, resolveResponse{Handoff: h, Result: res})
}

func handleLookups(env *resolverEnv, w http.ResponseWriter, r *http.Request) {
	if env == nil || env.Store == nil {
		respondError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	filter := store.LookupFilter{
		DataSource: r.URL.Query().Get("source"),
		Strategy:   r.URL.Query().Get("strategy"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	lookups, err := env.Store.ListLookups(r.Context(), filter)
	if err != nil {
		zap.L().Error("list lookups", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "list lookups failed")
		return
	}
	counts, err := env.Store.CountBySource(r.Context())
	if err != nil {
		zap.L().Error("count lookups", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "count lookups failed")
		return
	}
	if lookups == nil {
		lookups = []store.Lookup{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"lookups": lookups, "counts": counts})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
