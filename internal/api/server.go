// Package api provides the HTTP API over the auction.
// GET endpoints are public (read-only observation).
// Market control endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talgya/clock-auction/internal/engine"
	"github.com/talgya/clock-auction/internal/equilibrium"
	"github.com/talgya/clock-auction/internal/market"
	"github.com/talgya/clock-auction/internal/scenario"
)

// Server serves the auction over HTTP.
type Server struct {
	Runner   *engine.Runner
	Store    scenario.Store
	Gatherer prometheus.Gatherer // optional; /metrics is not mounted without it
	Port     int
	AdminKey string // Bearer token for market control. Empty = control disabled.

	// Limiter throttles bid submission and run starts. Nil = unlimited.
	Limiter *RateLimiter
}

// Handler builds the routed handler.
func (s *Server) Handler() http.Handler {
	limit := func(h http.HandlerFunc) http.HandlerFunc {
		if s.Limiter == nil {
			return h
		}
		return RateLimitMiddleware(s.Limiter, h)
	}

	mux := http.NewServeMux()

	// Market.
	mux.HandleFunc("GET /api/v1/auction", s.handleAuction)
	mux.HandleFunc("POST /api/v1/auction/bid", limit(s.handleBid))
	mux.HandleFunc("POST /api/v1/auction/init", s.adminOnly(s.handleInit))
	mux.HandleFunc("POST /api/v1/auction/resolve", s.adminOnly(s.handleResolve))

	// Scenarios.
	mux.HandleFunc("GET /api/v1/scenarios", s.handleListScenarios)
	mux.HandleFunc("POST /api/v1/scenarios", s.handleCreateScenario)
	mux.HandleFunc("GET /api/v1/scenarios/{id}", s.handleGetScenario)
	mux.HandleFunc("PUT /api/v1/scenarios/{id}", s.handleUpdateScenario)
	mux.HandleFunc("DELETE /api/v1/scenarios/{id}", s.handleDeleteScenario)
	mux.HandleFunc("GET /api/v1/scenarios/{id}/agents", s.handleListAgents)
	mux.HandleFunc("POST /api/v1/scenarios/{id}/agents", s.handleAddAgent)
	mux.HandleFunc("DELETE /api/v1/scenarios/{id}/agents/{agentId}", s.handleDeleteAgent)

	// Simulation.
	mux.HandleFunc("POST /api/v1/simulation/run/{id}", limit(s.handleRun))
	mux.HandleFunc("GET /api/v1/simulation/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/simulation/results", s.handleResults)

	// Equilibrium analysis of the live market.
	mux.HandleFunc("GET /api/v1/equilibrium/nash", s.handleNash)
	mux.HandleFunc("GET /api/v1/equilibrium/pareto", s.handlePareto)
	mux.HandleFunc("GET /api/v1/equilibrium/analysis", s.handleAnalysis)

	if s.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}

	return corsMiddleware(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", srv.Addr, "admin_auth", s.AdminKey != "")

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	slog.Info("HTTP API shutting down")
	return srv.Shutdown(shutdownCtx)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set AUCTIONSIM_CORS_ORIGINS to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("AUCTIONSIM_CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no admin key set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// writeError maps domain errors onto status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, scenario.ErrNotFound), errors.Is(err, engine.ErrNoRun):
		status = http.StatusNotFound
	case errors.Is(err, scenario.ErrProtected):
		status = http.StatusForbidden
	case errors.Is(err, scenario.ErrInvalid), errors.Is(err, engine.ErrInvalidConfig), errors.Is(err, market.ErrInvalidConfig):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrRunInProgress):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	http.Error(w, err.Error(), status)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad %s %q", scenario.ErrInvalid, name, r.PathValue(name))
	}
	return id, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid json: %v", scenario.ErrInvalid, err)
	}
	return nil
}

// --- market ---

func (s *Server) handleAuction(w http.ResponseWriter, r *http.Request) {
	mk := s.Runner.Market()
	writeJSON(w, map[string]any{
		"state":          mk.State(),
		"pending_bids":   mk.PendingBids(),
		"accepted_bids":  mk.AcceptedBids(),
		"discarded_bids": mk.DiscardedBids(),
	})
}

func (s *Server) handleBid(w http.ResponseWriter, r *http.Request) {
	var bid market.Bid
	if err := decodeJSON(w, r, &bid); err != nil {
		writeError(w, err)
		return
	}
	if bid.AgentID == "" || bid.ItemID == "" || bid.Amount < 0 {
		http.Error(w, "agent_id and item_id are required and amount must be non-negative", http.StatusBadRequest)
		return
	}

	outcome := s.Runner.Market().SubmitBid(bid)
	writeJSON(w, map[string]market.BidOutcome{"outcome": outcome})
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SlotCount int     `json:"slot_count"`
		Increment float64 `json:"increment"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Increment == 0 {
		req.Increment = scenario.DefaultIncrement
	}
	st, err := s.Runner.InitMarket(req.SlotCount, req.Increment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, st)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	res, st, err := s.Runner.ResolveMarket()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"resolution": res,
		"state":      st,
	})
}

// --- scenarios ---

func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	list, err := s.Store.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, list)
}

func (s *Server) handleCreateScenario(w http.ResponseWriter, r *http.Request) {
	var in scenario.Scenario
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	created, err := s.Store.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/scenarios/%d", created.ID))
	writeJSONStatus(w, http.StatusCreated, created)
}

func (s *Server) handleGetScenario(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	sc, err := s.Store.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, sc)
}

func (s *Server) handleUpdateScenario(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var in scenario.Scenario
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	in.ID = id
	updated, err := s.Store.Update(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, updated)
}

func (s *Server) handleDeleteScenario(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.Store.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	list, err := s.Store.ListAgents(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, list)
}

func (s *Server) handleAddAgent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	in := scenario.AgentSpec{TargetSlot: scenario.NoTarget}
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	added, err := s.Store.AddAgent(r.Context(), id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, added)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	agentID, err := pathID(r, "agentId")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.Store.DeleteAgent(r.Context(), id, agentID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- simulation ---

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	// The run outlives the request.
	if err := s.Runner.StartStored(context.WithoutCancel(r.Context()), id); err != nil {
		writeError(w, err)
		return
	}
	slog.Info("simulation started via API", "scenario_id", id)
	writeJSONStatus(w, http.StatusAccepted, map[string]any{"status": "started", "scenario_id": id})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Runner.Status())
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	rep, err := s.Runner.Results()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, rep)
}

// --- equilibrium ---

func (s *Server) handleNash(w http.ResponseWriter, r *http.Request) {
	res, err := s.Runner.Nash()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handlePareto(w http.ResponseWriter, r *http.Request) {
	res, err := s.Runner.Pareto()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	nash, err := s.Runner.Nash()
	if err != nil {
		writeError(w, err)
		return
	}
	pareto, err := s.Runner.Pareto()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, struct {
		Nash   equilibrium.NashResult   `json:"nash"`
		Pareto equilibrium.ParetoResult `json:"pareto"`
	}{nash, pareto})
}

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
