// Package engine provides the round resolver and the round clock that
// drives it.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Phase is where a round sits in its lifecycle.
type Phase uint8

const (
	PhaseAwaitingActions Phase = iota
	PhaseResolving
	PhaseResolved
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingActions:
		return "awaiting_actions"
	case PhaseResolving:
		return "resolving"
	case PhaseResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

var ErrWindowClosed = errors.New("action window closed")

// Collector buffers orders while a round's window is open. The latest
// submission per player wins; anything after Close is dropped.
type Collector struct {
	mu       sync.Mutex
	round    int
	open     bool
	expected map[PlayerID]bool
	actions  Batch
	ready    chan struct{}
}

// NewCollector returns a closed collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Open starts accepting orders for round from the expected players. Ready
// fires once every expected player has submitted.
func (c *Collector) Open(round int, expected []PlayerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.round = round
	c.open = true
	c.actions = make(Batch, len(expected))
	c.expected = make(map[PlayerID]bool, len(expected))
	for _, id := range expected {
		c.expected[id] = true
	}
	c.ready = make(chan struct{})
	if len(expected) == 0 {
		close(c.ready)
	}
}

// Submit buffers an order, replacing the player's earlier one.
func (c *Collector) Submit(id PlayerID, a Action) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrWindowClosed
	}
	if !c.expected[id] {
		return ErrUnknownPlayer
	}
	if err := a.Validate(); err != nil {
		return err
	}
	_, resubmit := c.actions[id]
	c.actions[id] = a.clone()
	if !resubmit && len(c.actions) == len(c.expected) {
		close(c.ready)
	}
	return nil
}

// Ready is closed once every expected player has an order in.
func (c *Collector) Ready() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Close ends the window and returns an immutable copy of the batch.
func (c *Collector) Close() Batch {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	out := make(Batch, len(c.actions))
	for id, a := range c.actions {
		out[id] = a.clone()
	}
	c.actions = nil
	return out
}

// Round returns the round the collector was last opened for.
func (c *Collector) Round() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.round
}

// RoundClock drives rounds: it opens a collection window, closes it when
// the window expires (or every player has submitted, with EarlyClose), and
// hands control to OnClose. Playback on participants never gates it.
type RoundClock struct {
	Window     time.Duration // action-collection window
	Interlude  time.Duration // pause after a round for results display
	EarlyClose bool

	// OnOpen starts a window and returns the collector to watch.
	OnOpen func() *Collector
	// OnClose resolves the round. Returning true ends the match.
	OnClose func() (done bool)
}

// NewRoundClock creates a clock with default timings.
func NewRoundClock() *RoundClock {
	return &RoundClock{
		Window:     30 * time.Second,
		Interlude:  5 * time.Second,
		EarlyClose: true,
	}
}

// Run loops rounds until the match ends or ctx is cancelled. A round that
// has started resolving always completes.
func (rc *RoundClock) Run(ctx context.Context) error {
	slog.Info("round clock started", "window", rc.Window, "interlude", rc.Interlude)
	for {
		col := rc.OnOpen()

		var ready <-chan struct{}
		if rc.EarlyClose {
			ready = col.Ready()
		}
		timer := time.NewTimer(rc.Window)
		select {
		case <-ctx.Done():
			timer.Stop()
			col.Close()
			slog.Info("round clock aborted", "round", col.Round())
			return ctx.Err()
		case <-timer.C:
		case <-ready:
			timer.Stop()
		}

		if rc.OnClose() {
			slog.Info("round clock finished", "round", col.Round())
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rc.Interlude):
		}
	}
}
