package replica

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/talgya/hexfire/internal/engine"
	"github.com/talgya/hexfire/internal/world"
)

var ErrMatchOver = errors.New("match is over")

// DefaultQueue is the per-subscriber buffer used when Subscribe is given 0.
const DefaultQueue = 16

// Recorder receives every resolved round. Failures are logged and never
// affect the match.
type Recorder interface {
	RecordRound(ctx context.Context, res RoundResult) error
}

// Host owns the canonical GameState for one match. Only ResolveRound
// writes it.
type Host struct {
	matchID   string
	field     *world.Field
	resolver  *engine.Resolver
	collector *engine.Collector
	recorder  Recorder

	mu      sync.RWMutex
	state   engine.GameState
	phase   engine.Phase
	over    bool
	subs    map[int]chan Message
	nextSub int
	done    chan struct{}
}

// NewHost creates a host for a match that starts from state.
func NewHost(matchID string, r *engine.Resolver, state engine.GameState) *Host {
	return &Host{
		matchID:   matchID,
		field:     r.Field,
		resolver:  r,
		collector: engine.NewCollector(),
		state:     state.Clone(),
		phase:     engine.PhaseResolved,
		over:      state.Over,
		subs:      make(map[int]chan Message),
		done:      make(chan struct{}),
	}
}

// SetRecorder attaches a round recorder. Call before Run.
func (h *Host) SetRecorder(rec Recorder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recorder = rec
}

// MatchID returns the match identifier.
func (h *Host) MatchID() string { return h.matchID }

// Field returns the static field.
func (h *Host) Field() *world.Field { return h.field }

// Snapshot returns the terrain snapshot sent to every subscriber.
func (h *Host) Snapshot() TerrainSnapshot {
	cells := h.field.Cells()
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshotLocked(cells)
}

func (h *Host) snapshotLocked(cells []world.Cell) TerrainSnapshot {
	return TerrainSnapshot{
		MatchID: h.matchID,
		Radius:  h.field.Radius,
		Seed:    h.field.Seed,
		Cells:   cells,
		State:   h.state.Clone(),
	}
}

// State returns a copy of the canonical state.
func (h *Host) State() engine.GameState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state.Clone()
}

// Phase returns the current round phase.
func (h *Host) Phase() engine.Phase {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.phase
}

// Done is closed once the match has ended or been aborted.
func (h *Host) Done() <-chan struct{} { return h.done }

// Subscribe registers a participant queue. The terrain snapshot is always
// the first message and MatchOver always the last; round results beyond
// queue are dropped. The channel is closed after MatchOver or on cancel.
func (h *Host) Subscribe(queue int) (<-chan Message, func()) {
	if queue <= 0 {
		queue = DefaultQueue
	}
	// snapshot + queue round results + one slot held for MatchOver
	ch := make(chan Message, queue+2)
	cells := h.field.Cells()

	h.mu.Lock()
	ch <- terrainMessage(h.snapshotLocked(cells))
	if h.over {
		final := h.finalLocked()
		h.mu.Unlock()
		ch <- overMessage(final)
		close(ch)
		return ch, func() {}
	}
	id := h.nextSub
	h.nextSub++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// Submit buffers a player's order for the open round.
func (h *Host) Submit(id engine.PlayerID, a engine.Action) error {
	h.mu.RLock()
	over := h.over
	h.mu.RUnlock()
	if over {
		return ErrMatchOver
	}
	return h.collector.Submit(id, a)
}

// OpenRound starts the collection window for the current round.
func (h *Host) OpenRound() *engine.Collector {
	h.mu.RLock()
	round := h.state.Round
	living := h.state.LivingIDs()
	h.mu.RUnlock()

	h.collector.Open(round, living)
	h.mu.Lock()
	h.phase = engine.PhaseAwaitingActions
	h.mu.Unlock()
	slog.Debug("round open", "match", h.matchID, "round", round, "players", len(living))
	return h.collector
}

// ResolveRound closes the window, runs the resolver and publishes the
// result. It reports whether the match is over.
func (h *Host) ResolveRound(ctx context.Context) (RoundResult, bool) {
	batch := h.collector.Close()

	h.mu.Lock()
	if h.over {
		h.mu.Unlock()
		return RoundResult{}, true
	}
	h.phase = engine.PhaseResolving
	start := time.Now()
	next, events := h.resolver.Resolve(h.state, batch)
	res := RoundResult{
		Round:          h.state.Round,
		State:          next.Clone(),
		Events:         events,
		DisplayStrings: append([]string(nil), next.DisplayEvents...),
	}
	h.state = next
	h.phase = engine.PhaseResolved
	h.over = next.Over
	rec := h.recorder
	h.publishLocked(roundMessage(res))
	if h.over {
		h.publishLocked(overMessage(h.finalLocked()))
		h.closeLocked()
	}
	h.mu.Unlock()

	slog.Info("round resolved",
		"match", h.matchID,
		"round", res.Round,
		"actions", len(batch),
		"events", len(events),
		"alive", next.AliveCount(),
		"elapsed", time.Since(start),
	)

	if rec != nil {
		if err := rec.RecordRound(context.WithoutCancel(ctx), res); err != nil {
			slog.Error("match log write failed", "match", h.matchID, "round", res.Round, "error", err)
		}
	}
	if next.Over {
		slog.Info("match over", "match", h.matchID, "winner", next.WinnerID, "rounds", res.Round)
	}
	return res, next.Over
}

// Abort ends the match without a winner. It is a no-op once the match is
// over.
func (h *Host) Abort() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.over {
		return
	}
	h.collector.Close()
	h.over = true
	h.state.Over = true
	final := h.finalLocked()
	final.Aborted = true
	h.publishLocked(overMessage(final))
	h.closeLocked()
	slog.Info("match aborted", "match", h.matchID, "round", h.state.Round)
}

// Run drives rounds with clock until the match ends or ctx is cancelled.
// Cancellation aborts the match between rounds.
func (h *Host) Run(ctx context.Context, clock *engine.RoundClock) error {
	clock.OnOpen = h.OpenRound
	clock.OnClose = func() bool {
		_, over := h.ResolveRound(ctx)
		return over
	}
	err := clock.Run(ctx)
	if err != nil {
		h.Abort()
	}
	return err
}

func (h *Host) finalLocked() MatchOver {
	return MatchOver{WinnerID: h.state.WinnerID, FinalState: h.state.Clone()}
}

// publishLocked hands msg to every subscriber without blocking. A queue
// with only its last slot free drops the message for that subscriber; the
// last slot belongs to MatchOver. Only the host sends, under h.mu, so the
// length check cannot race another sender.
func (h *Host) publishLocked(msg Message) {
	terminal := msg.Type == TypeMatchOver
	for id, ch := range h.subs {
		if !terminal && len(ch) >= cap(ch)-1 {
			slog.Warn("subscriber queue full, dropping message", "match", h.matchID, "subscriber", id, "type", msg.Type)
			continue
		}
		ch <- msg
	}
}

func (h *Host) closeLocked() {
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}
