// Package api provides the HTTP API for observing and driving matches.
// GET endpoints are public (read-only observation).
// POST /api/v1/action takes a participant token; the other POST endpoints
// require the admin bearer token.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/hexfire/internal/engine"
	"github.com/talgya/hexfire/internal/replica"
	"github.com/talgya/hexfire/internal/session"
	"github.com/talgya/hexfire/internal/transport"
	"github.com/talgya/hexfire/internal/world"
)

const (
	defaultMaxSSE = 8
	maxBody       = 1 << 16
)

// Server serves match state over HTTP.
type Server struct {
	Matches  *session.Manager
	Hub      *transport.Hub
	Tokens   *transport.Issuer
	Port     int
	AdminKey string // Bearer token for admin POST endpoints. Empty = disabled.
	RelayKey string // Bearer token for the SSE stream. Empty = public stream.
	MaxSSE   int

	// ActionLimit caps action posts per player; ConnectLimit caps socket
	// upgrades per address. Nil disables a limit.
	ActionLimit  *RateLimiter
	ConnectLimit *RateLimiter

	started  time.Time
	sseConns int32
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	if s.started.IsZero() {
		s.started = time.Now()
	}
	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/map", s.handleMapRoutes)
	mux.HandleFunc("/api/v1/map/", s.handleMapRoutes)
	mux.HandleFunc("/api/v1/state", s.handleState)
	mux.HandleFunc("/api/v1/rounds", s.handleRounds)
	mux.HandleFunc("/api/v1/player/", s.handlePlayer)
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	// Participant endpoints.
	mux.HandleFunc("/api/v1/action", s.handleAction)
	if s.Hub != nil {
		var ws http.Handler = s.Hub
		if s.ConnectLimit != nil {
			ws = RateLimitMiddleware(s.ConnectLimit, ws)
		}
		mux.Handle("/ws", ws)
	}

	// Admin endpoints.
	mux.HandleFunc("/api/v1/match", s.adminOnly(s.handleMatch))
	mux.HandleFunc("/api/v1/abort", s.adminOnly(s.handleAbort))

	return corsMiddleware(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", srv.Addr, "admin_auth", s.AdminKey != "", "relay_auth", s.RelayKey != "")

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearer(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(auth, "Bearer "), true
}

// checkBearerToken returns true if the request carries key as its bearer token.
func checkBearerToken(r *http.Request, key string) bool {
	tok, ok := bearer(r)
	return ok && subtle.ConstantTimeCompare([]byte(tok), []byte(key)) == 1
}

// adminOnly wraps a handler to require POST with the admin bearer token.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no HEXFIRE_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !checkBearerToken(r, s.AdminKey) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// current returns the latest match or writes a 404.
func (s *Server) current(w http.ResponseWriter) (*session.Match, bool) {
	m, ok := s.Matches.Current()
	if !ok {
		http.Error(w, "no match", http.StatusNotFound)
	}
	return m, ok
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"name":   "hexfire",
		"uptime": humanize.Time(s.started),
	}
	if s.Hub != nil {
		status["connections"] = s.Hub.Connections()
	}
	if m, ok := s.Matches.Current(); ok {
		st := m.Host.State()
		status["match"] = map[string]any{
			"id":           m.ID,
			"seed":         m.Seed,
			"started":      humanize.Time(m.Started),
			"running":      m.Running(),
			"round":        st.Round,
			"phase":        m.Host.Phase().String(),
			"current_dist": st.CurrentDist,
			"players":      len(st.Players),
			"alive":        st.AliveCount(),
			"over":         st.Over,
			"winner_id":    st.WinnerID,
		}
	}
	writeJSON(w, status)
}

// handleMapRoutes dispatches between the bulk map (GET /api/v1/map) and
// hex detail (GET /api/v1/map/:q/:r).
func (s *Server) handleMapRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/map")
	if path == "" || path == "/" {
		s.handleBulkMap(w, r)
		return
	}
	s.handleHexDetail(w, r, strings.Trim(path, "/"))
}

// handleBulkMap returns the terrain snapshot plus terrain counts.
func (s *Server) handleBulkMap(w http.ResponseWriter, r *http.Request) {
	m, ok := s.current(w)
	if !ok {
		return
	}
	counts := make(map[string]int)
	for t, n := range world.TerrainCounts(m.Host.Field()) {
		counts[t.String()] = n
	}
	snap := m.Host.Snapshot()
	writeJSON(w, map[string]any{
		"match_id": snap.MatchID,
		"radius":   snap.Radius,
		"seed":     snap.Seed,
		"cells":    snap.Cells,
		"counts":   counts,
	})
}

func (s *Server) handleHexDetail(w http.ResponseWriter, r *http.Request, rest string) {
	m, ok := s.current(w)
	if !ok {
		return
	}
	qs, rs, found := strings.Cut(rest, "/")
	q, errQ := strconv.Atoi(qs)
	rr, errR := strconv.Atoi(rs)
	if !found || errQ != nil || errR != nil {
		http.Error(w, "use /api/v1/map/{q}/{r}", http.StatusBadRequest)
		return
	}
	coord := world.HexCoord{Q: q, R: rr}
	cell, ok := m.Host.Field().Get(coord)
	if !ok {
		http.Error(w, "hex not in field", http.StatusNotFound)
		return
	}

	var occupants []engine.Player
	for _, p := range m.Host.State().Players {
		if p.Pos == coord {
			occupants = append(occupants, p)
		}
	}
	x, z := world.Center(coord)
	writeJSON(w, map[string]any{
		"cell":      cell,
		"center":    world.Vec3{X: x, Y: cell.Elevation, Z: z},
		"neighbors": m.Host.Field().Neighbors(coord),
		"occupants": occupants,
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	m, ok := s.current(w)
	if !ok {
		return
	}
	writeJSON(w, m.Host.State())
}

// handleRounds lists recent rounds, or one round's events with ?round=N.
func (s *Server) handleRounds(w http.ResponseWriter, r *http.Request) {
	m, ok := s.current(w)
	if !ok {
		return
	}
	if v := r.URL.Query().Get("round"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "round must be an integer", http.StatusBadRequest)
			return
		}
		events, err := m.Log.Events(r.Context(), n)
		if err != nil {
			slog.Error("read events", "match", m.ID, "round", n, "error", err)
			http.Error(w, "match log unavailable", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"round": n, "events": events})
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	rounds, err := m.Log.RecentRounds(r.Context(), limit)
	if err != nil {
		slog.Error("read rounds", "match", m.ID, "error", err)
		http.Error(w, "match log unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, rounds)
}

// handlePlayer returns a player's current state and history:
// GET /api/v1/player/:id.
func (s *Server) handlePlayer(w http.ResponseWriter, r *http.Request) {
	m, ok := s.current(w)
	if !ok {
		return
	}
	id := engine.PlayerID(strings.TrimPrefix(r.URL.Path, "/api/v1/player/"))
	p, ok := m.Host.State().Player(id)
	if !ok {
		http.Error(w, "player not found", http.StatusNotFound)
		return
	}
	history, err := m.Log.PlayerHistory(r.Context(), id)
	if err != nil {
		slog.Error("read player history", "player", id, "error", err)
	}
	writeJSON(w, map[string]any{"player": p, "history": history})
}

// handleAction accepts one order from a participant token holder.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	tok, _ := bearer(r)
	claims, err := s.Tokens.Parse(tok)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if s.ActionLimit != nil && limited(w, s.ActionLimit, string(claims.PlayerID)) {
		return
	}
	m, ok := s.current(w)
	if !ok {
		return
	}
	if m.ID != claims.MatchID {
		http.Error(w, "token is for another match", http.StatusGone)
		return
	}

	var a engine.Action
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&a); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	err = m.Host.Submit(claims.PlayerID, a)
	switch {
	case err == nil:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		writeJSON(w, map[string]any{"accepted": true, "round": m.Host.State().Round})
	case errors.Is(err, replica.ErrMatchOver), errors.Is(err, engine.ErrWindowClosed):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, engine.ErrUnknownPlayer):
		http.Error(w, "player is not in this round", http.StatusForbidden)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

type matchRequest struct {
	Roster              []engine.Entrant `json:"roster"`
	Seed                int64            `json:"seed"`
	Radius              int              `json:"radius"`
	WindowSeconds       int              `json:"window_seconds"`
	RequireAdjacentMove bool             `json:"require_adjacent_move"`
	SeededDice          bool             `json:"seeded_dice"`
}

// handleMatch starts a new match and returns participant tokens.
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Radius < 0 || req.Radius > 64 {
		http.Error(w, "radius must be between 0 and 64", http.StatusBadRequest)
		return
	}

	m, err := s.Matches.Start(context.Background(), req.Roster, session.Options{
		Radius:              req.Radius,
		Seed:                req.Seed,
		Window:              time.Duration(req.WindowSeconds) * time.Second,
		RequireAdjacentMove: req.RequireAdjacentMove,
		SeededDice:          req.SeededDice,
	})
	switch {
	case errors.Is(err, session.ErrMatchRunning):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	slog.Info("admin started match", "match", m.ID, "players", len(m.Tokens))
	writeJSON(w, map[string]any{
		"match_id": m.ID,
		"seed":     m.Seed,
		"radius":   m.Host.Field().Radius,
		"tokens":   m.Tokens,
	})
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	if err := s.Matches.Abort(); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	m, _ := s.Matches.Current()
	slog.Info("admin aborted match", "match", m.ID)
	writeJSON(w, map[string]any{"aborted": m.ID, "state": m.Host.State()})
}

// handleStream provides an SSE endpoint for round results.
// Requires the relay key when one is set and limits concurrent connections.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.RelayKey != "" && !checkBearerToken(r, s.RelayKey) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	m, ok := s.current(w)
	if !ok {
		return
	}

	maxSSE := s.MaxSSE
	if maxSSE <= 0 {
		maxSSE = defaultMaxSSE
	}
	current := atomic.AddInt32(&s.sseConns, 1)
	defer atomic.AddInt32(&s.sseConns, -1)
	if int(current) > maxSSE {
		http.Error(w, "too many SSE connections", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, unsubscribe := m.Host.Subscribe(0)
	defer unsubscribe()
	slog.Info("SSE client connected", "match", m.ID)

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			// The terrain is large and available from /api/v1/map.
			if msg.Type == replica.TypeTerrainSnapshot {
				continue
			}
			writeSSEEvent(w, msg)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			slog.Info("SSE client disconnected", "match", m.ID)
			return
		}
	}
}

// writeSSEEvent writes a single message in SSE format.
func writeSSEEvent(w http.ResponseWriter, msg replica.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, data)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
