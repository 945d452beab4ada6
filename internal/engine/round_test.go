package engine

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/talgya/hexfire/internal/world"
)

func TestCollectorLatestWins(t *testing.T) {
	c := NewCollector()
	c.Open(3, []PlayerID{"a", "b"})

	if err := c.Submit("a", MoveTo(hex(1, 0))); err != nil {
		t.Fatal(err)
	}
	if err := c.Submit("a", FireAt(90, 20)); err != nil {
		t.Fatal(err)
	}
	select {
	case <-c.Ready():
		t.Fatal("ready before every player submitted")
	default:
	}

	batch := c.Close()
	if len(batch) != 1 {
		t.Fatalf("batch size = %d, want 1", len(batch))
	}
	if got := batch["a"]; got.Type != ActionFire || got.Fire.HAngle != 90 {
		t.Errorf("latest submission lost: %+v", got)
	}
	if c.Round() != 3 {
		t.Errorf("round = %d, want 3", c.Round())
	}
}

func TestCollectorRejects(t *testing.T) {
	c := NewCollector()
	if err := c.Submit("a", FireAt(0, 0)); !errors.Is(err, ErrWindowClosed) {
		t.Errorf("submit before open: %v", err)
	}

	c.Open(1, []PlayerID{"a"})
	if err := c.Submit("z", FireAt(0, 0)); !errors.Is(err, ErrUnknownPlayer) {
		t.Errorf("unknown player: %v", err)
	}
	if err := c.Submit("a", Action{Type: ActionMove}); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("malformed action: %v", err)
	}

	c.Close()
	if err := c.Submit("a", FireAt(0, 0)); !errors.Is(err, ErrWindowClosed) {
		t.Errorf("late submission: %v", err)
	}
}

func TestCollectorReady(t *testing.T) {
	c := NewCollector()
	c.Open(1, []PlayerID{"a", "b"})
	c.Submit("a", FireAt(0, 0))
	c.Submit("a", FireAt(1, 0))
	c.Submit("b", MoveTo(hex(0, 1)))

	select {
	case <-c.Ready():
	default:
		t.Fatal("ready not signalled after all players submitted")
	}
	// A resubmission after ready must not close the channel twice.
	if err := c.Submit("b", FireAt(0, 0)); err != nil {
		t.Fatal(err)
	}
}

func TestCollectorBatchIsCopy(t *testing.T) {
	c := NewCollector()
	c.Open(1, []PlayerID{"a"})
	a := FireFrom(world.Vec3{X: 1, Y: 5}, 0, 0)
	c.Submit("a", a)
	a.Fire.Origin.X = 99

	batch := c.Close()
	if batch["a"].Fire.Origin.X != 1 {
		t.Errorf("collector shares storage with submitter")
	}
}

func TestRoundClockEarlyClose(t *testing.T) {
	c := NewCollector()
	var rounds atomic.Int32

	clock := &RoundClock{
		Window:     time.Hour,
		Interlude:  time.Millisecond,
		EarlyClose: true,
		OnOpen: func() *Collector {
			c.Open(int(rounds.Load())+1, []PlayerID{"a"})
			go c.Submit("a", FireAt(0, 0))
			return c
		},
		OnClose: func() bool {
			c.Close()
			return rounds.Add(1) == 3
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := clock.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rounds.Load() != 3 {
		t.Errorf("rounds = %d, want 3", rounds.Load())
	}
}

func TestRoundClockWindowExpires(t *testing.T) {
	c := NewCollector()
	closed := make(chan Batch, 1)
	clock := &RoundClock{
		Window:     10 * time.Millisecond,
		EarlyClose: true,
		OnOpen: func() *Collector {
			c.Open(1, []PlayerID{"a", "b"})
			c.Submit("a", FireAt(0, 0))
			return c
		},
		OnClose: func() bool {
			closed <- c.Close()
			return true
		},
	}
	if err := clock.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if b := <-closed; len(b) != 1 {
		t.Errorf("batch = %v, want only a's order", b)
	}
}

func TestRoundClockCancel(t *testing.T) {
	c := NewCollector()
	clock := &RoundClock{
		Window: time.Hour,
		OnOpen: func() *Collector {
			c.Open(1, []PlayerID{"a"})
			return c
		},
		OnClose: func() bool {
			t.Error("OnClose called after cancel")
			return true
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := clock.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
}

func TestNewGame(t *testing.T) {
	f := world.Generate(world.SmallTestConfig())
	rng := rand.New(rand.NewSource(9))

	s, err := NewGame(f, []Entrant{{ID: "host", Name: "Host"}, {Name: "Guest"}, {Name: "Third"}}, rng)
	if err != nil {
		t.Fatal(err)
	}
	if s.Round != 1 || s.CurrentDist != MinStormDist || s.Over {
		t.Errorf("round=%d dist=%d over=%v", s.Round, s.CurrentDist, s.Over)
	}
	seen := map[world.HexCoord]bool{}
	for _, p := range s.Players {
		if p.Health != MaxHealth || !p.Alive || p.LandmineRisk != 0 {
			t.Errorf("player %s starts as %+v", p.ID, p)
		}
		if !f.Has(p.Pos) || seen[p.Pos] {
			t.Errorf("player %s placed badly at %s", p.ID, p.Pos)
		}
		seen[p.Pos] = true
		if p.ID == "" {
			t.Errorf("player %s has no id", p.Name)
		}
	}
	if s.Players[0].ID != "host" {
		t.Errorf("explicit id replaced: %s", s.Players[0].ID)
	}
	if len(s.LivingIDs()) != 3 {
		t.Errorf("living = %v", s.LivingIDs())
	}
}

func TestNewGameRejects(t *testing.T) {
	f := world.Generate(world.GenConfig{Radius: 0, Seed: 1})
	rng := rand.New(rand.NewSource(1))

	tests := []struct {
		name   string
		roster []Entrant
	}{
		{"solo", []Entrant{{Name: "a"}}},
		{"too many", []Entrant{{Name: "a"}, {Name: "b"}}},
	}
	for _, tt := range tests {
		if _, err := NewGame(f, tt.roster, rng); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}

	big := world.Generate(world.SmallTestConfig())
	if _, err := NewGame(big, []Entrant{{ID: "x"}, {ID: "x"}}, rng); err == nil {
		t.Error("duplicate ids accepted")
	}
}

func TestRiskHelpers(t *testing.T) {
	for _, tt := range []struct{ in, esc, dec int }{
		{0, 2, 0},
		{1, 2, 0},
		{2, 4, 1},
		{5, 10, 2},
		{16, 32, 5},
		{20, 32, 7},
		{32, 32, 11},
	} {
		if got := escalateRisk(tt.in); got != tt.esc {
			t.Errorf("escalateRisk(%d) = %d, want %d", tt.in, got, tt.esc)
		}
		if got := decayRisk(tt.in); got != tt.dec {
			t.Errorf("decayRisk(%d) = %d, want %d", tt.in, got, tt.dec)
		}
	}
	if describeShrink(6, 19) != "The storm closes in for the 1st time (radius 19)" {
		t.Errorf("shrink line = %q", describeShrink(6, 19))
	}
}
