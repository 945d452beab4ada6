package bot

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/talgya/hexfire/internal/engine"
	"github.com/talgya/hexfire/internal/replica"
)

// SubmitFunc delivers an order to the host. It returns
// engine.ErrWindowClosed when the order arrived outside a window.
type SubmitFunc func(ctx context.Context, a engine.Action) error

// Bot plays one seat of a match.
type Bot struct {
	ID       engine.PlayerID
	Observer *Observer
	Submit   SubmitFunc
	// Retry is the pause between attempts while no window is open.
	Retry time.Duration
}

// Run observes until the match ends, acting once per round. It returns the
// final result, or an error if the connection drops first.
func (b *Bot) Run(ctx context.Context) (*replica.MatchOver, error) {
	stop := context.AfterFunc(ctx, func() { b.Observer.Close() })
	defer stop()

	var cancelRound context.CancelFunc = func() {}
	defer func() { cancelRound() }()

	for {
		msg, err := b.Observer.Observe()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		cancelRound()

		switch msg.Type {
		case replica.TypeMatchOver:
			over := msg.MatchOver
			slog.Info("match over", "player", b.ID, "winner", over.WinnerID, "aborted", over.Aborted)
			return over, nil
		case replica.TypeTerrainSnapshot, replica.TypeRoundResult:
			state := b.Observer.Replica.State
			if state.Over {
				continue
			}
			sit, alive := Assess(state, b.ID)
			if !alive {
				continue
			}
			d := Decide(b.Observer.Replica.Field, sit)
			slog.Info("decision made",
				"player", b.ID,
				"round", state.Round,
				"threat", sit.Threat,
				"action", d.Action.Type,
				"rationale", d.Rationale,
			)
			var roundCtx context.Context
			roundCtx, cancelRound = context.WithCancel(ctx)
			go b.act(roundCtx, d.Action)
		}
	}
}

// act submits until the host accepts the order or the round moves on.
func (b *Bot) act(ctx context.Context, a engine.Action) {
	retry := b.Retry
	if retry <= 0 {
		retry = 100 * time.Millisecond
	}
	for {
		err := b.Submit(ctx, a)
		switch {
		case err == nil:
			return
		case errors.Is(err, engine.ErrWindowClosed):
		default:
			if ctx.Err() == nil {
				slog.Warn("action failed", "player", b.ID, "error", err)
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
	}
}
