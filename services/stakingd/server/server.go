// Package server exposes the coordinator over an internal JSON HTTP API.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"stakegov/core"
	"stakegov/observability"
)

// Config captures the dependencies required to construct the server.
type Config struct {
	Coordinator *core.Coordinator
	Metrics     *observability.EngineMetrics
	Logger      *slog.Logger
	RateLimit   RateLimit
	// Ready reports dependency health for /readyz. Nil means always ready.
	Ready func(r *http.Request) error
}

// Server encapsulates dependencies for the HTTP API.
type Server struct {
	coord   *core.Coordinator
	metrics *observability.EngineMetrics
	logger  *slog.Logger
	limiter *RateLimiter
	ready   func(r *http.Request) error

	router http.Handler
}

// New constructs the configured router.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		coord:   cfg.Coordinator,
		metrics: cfg.Metrics,
		logger:  logger,
		ready:   cfg.Ready,
	}
	if cfg.RateLimit.RequestsPerMinute > 0 {
		srv.limiter = NewRateLimiter(cfg.RateLimit, cfg.Metrics)
	}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", s.readyz)

	r.Route("/v1", func(api chi.Router) {
		if s.limiter != nil {
			api.Use(s.limiter.Middleware)
		}
		api.Get("/estimate", s.estimate)
		api.Get("/conviction/levels", s.convictionLevels)
		api.Get("/validators", s.validators)
		api.Get("/validators/{address}", s.validator)

		api.Route("/accounts/{account}", func(acct chi.Router) {
			acct.Get("/staking", s.stakingSummary)
			acct.Get("/power", s.votingPower)
			acct.Get("/locks", s.locks)
			acct.Post("/locks", s.lockFunds)
			acct.Post("/locks/release", s.releaseExpired)
			acct.Get("/delegation", s.delegation)
			acct.Get("/votes", s.voteHistory)
		})

		api.Route("/staking", func(st chi.Router) {
			st.Post("/stake", s.stake)
			st.Post("/unstake", s.unstake)
			st.Post("/withdraw", s.withdraw)
			st.Post("/claim", s.claim)
			st.Post("/rewards", s.recordReward)
		})

		api.Post("/delegations", s.delegate)
		api.Delete("/delegations/{delegator}", s.undelegate)
		api.Get("/delegates/{delegate}/power", s.delegatedPower)

		api.Route("/proposals", func(gov chi.Router) {
			gov.Get("/", s.activeProposals)
			gov.Post("/", s.createProposal)
			gov.Get("/{id}", s.proposal)
			gov.Post("/{id}/votes", s.vote)
			gov.Post("/{id}/finalize", s.finalize)
		})
	})
	return r
}

// observe records request metrics labelled by route pattern, never by raw
// path, so account identifiers do not explode label cardinality.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveRequest(route, r.Method, status, time.Since(started))
	})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
