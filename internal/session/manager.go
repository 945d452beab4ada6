// Package session owns the lifecycle of the host's current match: field
// generation, roster placement, participant tokens, the round clock and the
// match log.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/hexfire/internal/engine"
	"github.com/talgya/hexfire/internal/entropy"
	"github.com/talgya/hexfire/internal/matchlog"
	"github.com/talgya/hexfire/internal/replica"
	"github.com/talgya/hexfire/internal/transport"
	"github.com/talgya/hexfire/internal/world"
)

var (
	ErrNoMatch      = errors.New("no match")
	ErrMatchRunning = errors.New("a match is already running")
)

// Options tune a single match.
type Options struct {
	Radius              int
	Seed                int64 // 0 draws a fresh seed
	Window              time.Duration
	Interlude           time.Duration
	EarlyClose          bool
	ImpactStride        int
	RequireAdjacentMove bool
	// SeededDice rolls landmines from the match seed so a match can be
	// replayed exactly. Otherwise rolls come from crypto/rand.
	SeededDice bool
}

// Match is one running or finished match.
type Match struct {
	ID      string
	Seed    int64
	Started time.Time
	Host    *replica.Host
	Log     *matchlog.Log
	Tokens  map[engine.PlayerID]string

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Done is closed when the match's round loop has exited.
func (m *Match) Done() <-chan struct{} { return m.done }

// Err is the round loop's exit error. Valid after Done.
func (m *Match) Err() error { return m.err }

// Running reports whether the round loop is still going.
func (m *Match) Running() bool {
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

// Manager holds at most one match at a time.
type Manager struct {
	tokens   *transport.Issuer
	hub      *transport.Hub
	defaults Options

	mu      sync.RWMutex
	current *Match
}

// NewManager creates a manager. hub may be nil when no socket transport is
// served.
func NewManager(tokens *transport.Issuer, hub *transport.Hub, defaults Options) *Manager {
	return &Manager{tokens: tokens, hub: hub, defaults: defaults}
}

// Defaults returns the options used for zero fields of a start request.
func (m *Manager) Defaults() Options { return m.defaults }

// Current returns the latest match, running or finished.
func (m *Manager) Current() (*Match, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, m.current != nil
}

// Start generates a field, places the roster and starts the round loop.
// A finished previous match is discarded along with its log.
func (m *Manager) Start(ctx context.Context, roster []engine.Entrant, opts Options) (*Match, error) {
	opts = m.fill(opts)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.current.Running() {
		return nil, ErrMatchRunning
	}

	seed := opts.Seed
	if seed == 0 {
		seed = entropy.Seed()
	}
	field := world.Generate(world.GenConfig{Radius: opts.Radius, Seed: seed})

	state, err := engine.NewGame(field, roster, rand.New(rand.NewSource(seed)))
	if err != nil {
		return nil, fmt.Errorf("new game: %w", err)
	}

	var dice engine.Roller = entropy.NewCrypto()
	if opts.SeededDice {
		dice = entropy.NewSeeded(seed)
	}
	res := engine.NewResolver(field, dice)
	res.ImpactStride = opts.ImpactStride
	res.RequireAdjacentMove = opts.RequireAdjacentMove

	id := uuid.NewString()
	log, err := matchlog.Open(id)
	if err != nil {
		return nil, err
	}
	for k, v := range map[string]string{
		"seed":    strconv.FormatInt(seed, 10),
		"radius":  strconv.Itoa(opts.Radius),
		"players": strconv.Itoa(len(state.Players)),
	} {
		if err := log.SaveMeta(k, v); err != nil {
			log.Close()
			return nil, fmt.Errorf("save meta %s: %w", k, err)
		}
	}

	tokens := make(map[engine.PlayerID]string, len(state.Players))
	for _, p := range state.Players {
		tok, err := m.tokens.Issue(id, p.ID)
		if err != nil {
			log.Close()
			return nil, err
		}
		tokens[p.ID] = tok
	}

	host := replica.NewHost(id, res, state)
	host.SetRecorder(log)

	if m.current != nil {
		m.current.Log.Close()
	}
	runCtx, cancel := context.WithCancel(ctx)
	match := &Match{
		ID:      id,
		Seed:    seed,
		Started: time.Now(),
		Host:    host,
		Log:     log,
		Tokens:  tokens,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	m.current = match
	if m.hub != nil {
		m.hub.SetMatch(host)
	}

	clock := &engine.RoundClock{Window: opts.Window, Interlude: opts.Interlude, EarlyClose: opts.EarlyClose}
	go func() {
		defer close(match.done)
		defer cancel()
		match.err = host.Run(runCtx, clock)
		if match.err != nil && !errors.Is(match.err, context.Canceled) {
			slog.Error("match loop stopped", "match", id, "error", match.err)
		}
	}()

	slog.Info("match started",
		"match", id,
		"seed", seed,
		"radius", opts.Radius,
		"hexes", field.HexCount(),
		"players", len(state.Players),
		"window", opts.Window,
	)
	return match, nil
}

// Abort cancels the running match. Its final state stays queryable.
func (m *Manager) Abort() error {
	m.mu.RLock()
	cur := m.current
	m.mu.RUnlock()
	if cur == nil || !cur.Running() {
		return ErrNoMatch
	}
	cur.cancel()
	<-cur.done
	return nil
}

// Close aborts any running match and drops its log.
func (m *Manager) Close() {
	m.Abort()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Log.Close()
		m.current = nil
	}
}

func (m *Manager) fill(o Options) Options {
	d := m.defaults
	if o.Radius <= 0 {
		o.Radius = d.Radius
	}
	if o.Seed == 0 {
		o.Seed = d.Seed
	}
	if o.Window <= 0 {
		o.Window = d.Window
	}
	if o.Interlude <= 0 {
		o.Interlude = d.Interlude
	}
	if o.ImpactStride <= 0 {
		o.ImpactStride = d.ImpactStride
	}
	o.EarlyClose = o.EarlyClose || d.EarlyClose
	o.RequireAdjacentMove = o.RequireAdjacentMove || d.RequireAdjacentMove
	o.SeededDice = o.SeededDice || d.SeededDice
	return o
}
