package replica

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/talgya/hexfire/internal/ballistics"
	"github.com/talgya/hexfire/internal/engine"
	"github.com/talgya/hexfire/internal/world"
)

var ErrNoTerrain = errors.New("round result before terrain snapshot")

// StepKind names one visual effect.
type StepKind string

const (
	StepMove   StepKind = "move"
	StepTurn   StepKind = "turn"
	StepRecoil StepKind = "recoil"
	StepFlight StepKind = "flight"
	StepShake  StepKind = "shake"
	StepHealth StepKind = "health"
	StepNotice StepKind = "notice"
	StepDeath  StepKind = "death"
)

// Timing holds advisory step durations. None of them gate the host.
type Timing struct {
	Move         time.Duration
	Turn         time.Duration
	Recoil       time.Duration
	FlightSample time.Duration
	Shake        time.Duration
	Notice       time.Duration
}

// DefaultTiming is the stock animation pacing for rendering clients.
var DefaultTiming = Timing{
	Move:         400 * time.Millisecond,
	Turn:         800 * time.Millisecond,
	Recoil:       50 * time.Millisecond,
	FlightSample: 16 * time.Millisecond,
	Shake:        300 * time.Millisecond,
	Notice:       600 * time.Millisecond,
}

// Step is one entry in a playback task list. Only the fields relevant to
// Kind are set.
type Step struct {
	Kind     StepKind
	PlayerID engine.PlayerID
	Duration time.Duration

	From, To world.HexCoord // move
	HAngle   float64        // turn
	VAngle   float64
	Path     []world.Vec3 // flight
	Health   int          // health
	Text     string       // notice
}

// Playback is the ordered task list for one round with a single
// completion signal.
type Playback struct {
	Round int
	Steps []Step

	done chan struct{}
	err  error
}

// Done is closed when the last step has run or playback was cancelled.
func (p *Playback) Done() <-chan struct{} { return p.done }

// Err reports why playback stopped early. Valid after Done.
func (p *Playback) Err() error { return p.err }

// Play runs the steps in order on its own goroutine, calling sink for each
// and then waiting its duration.
func (p *Playback) Play(ctx context.Context, sink func(Step)) {
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		for _, s := range p.Steps {
			if sink != nil {
				sink(s)
			}
			if s.Duration <= 0 {
				continue
			}
			t := time.NewTimer(s.Duration)
			select {
			case <-ctx.Done():
				t.Stop()
				p.err = ctx.Err()
				return
			case <-t.C:
			}
		}
	}()
}

// Replica is a participant's read-only view of the match.
type Replica struct {
	Field   *world.Field
	State   engine.GameState
	MatchID string
	Over    *MatchOver
	Timing  Timing
}

// NewReplica creates an empty replica waiting for a terrain snapshot.
func NewReplica() *Replica {
	return &Replica{Timing: DefaultTiming}
}

// Apply folds a host message into the replica. Round results return the
// playback for that round; other messages return nil.
func (r *Replica) Apply(msg Message) (*Playback, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	switch msg.Type {
	case TypeTerrainSnapshot:
		s := msg.TerrainSnapshot
		f, err := world.NewField(s.Radius, s.Seed, s.Cells)
		if err != nil {
			return nil, fmt.Errorf("terrain snapshot: %w", err)
		}
		r.Field, r.MatchID = f, s.MatchID
		r.State = s.State.Clone()
		return nil, nil
	case TypeRoundResult:
		if r.Field == nil {
			return nil, ErrNoTerrain
		}
		res := msg.RoundResult
		pb := r.plan(r.State, *res)
		r.State = res.State.Clone()
		return pb, nil
	case TypeMatchOver:
		over := *msg.MatchOver
		r.Over = &over
		r.State = over.FinalState.Clone()
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q is not a host message", ErrBadMessage, msg.Type)
	}
}

// plan builds the task list: relocations first, then one block per event
// in resolution order.
func (r *Replica) plan(prev engine.GameState, res RoundResult) *Playback {
	pb := &Playback{Round: res.Round}
	tm := r.Timing

	health := make(map[engine.PlayerID]int, len(prev.Players))
	for _, p := range prev.Players {
		health[p.ID] = p.Health
	}
	for _, p := range res.State.Players {
		old, ok := prev.Player(p.ID)
		if !ok {
			health[p.ID] = engine.MaxHealth
			continue
		}
		if old.Pos != p.Pos {
			pb.Steps = append(pb.Steps, Step{Kind: StepMove, PlayerID: p.ID, From: old.Pos, To: p.Pos, Duration: tm.Move})
		}
	}

	names := make(map[engine.PlayerID]string, len(res.State.Players))
	for _, p := range res.State.Players {
		names[p.ID] = p.Name
	}
	hurt := func(id engine.PlayerID) {
		health[id] = max(health[id]-1, 0)
		pb.Steps = append(pb.Steps, Step{Kind: StepHealth, PlayerID: id, Health: health[id]})
	}

	for _, e := range res.Events {
		switch e.Type {
		case engine.EventFire:
			f := e.Fire
			pb.Steps = append(pb.Steps,
				Step{Kind: StepTurn, PlayerID: f.ShooterID, HAngle: f.HAngle, VAngle: f.VAngle, Duration: tm.Turn},
				Step{Kind: StepRecoil, PlayerID: f.ShooterID, Duration: tm.Recoil},
			)
			path := ballistics.ComputePath(f.Origin, f.HAngle, f.VAngle).Points()
			if f.Hit != nil {
				path = ballistics.ShapeToImpact(path, f.Hit.Point)
			}
			pb.Steps = append(pb.Steps, Step{
				Kind:     StepFlight,
				PlayerID: f.ShooterID,
				Path:     path,
				Duration: time.Duration(len(path)) * tm.FlightSample,
			})
			if f.Hit != nil && f.Hit.TargetID != "" {
				pb.Steps = append(pb.Steps, Step{Kind: StepShake, PlayerID: f.Hit.TargetID, Duration: tm.Shake})
				hurt(f.Hit.TargetID)
			}
		case engine.EventLandMine, engine.EventStorm:
			pb.Steps = append(pb.Steps, Step{Kind: StepNotice, PlayerID: e.PlayerID, Text: engine.Describe(e, names), Duration: tm.Notice})
			hurt(e.PlayerID)
		case engine.EventDeath:
			pb.Steps = append(pb.Steps, Step{Kind: StepDeath, PlayerID: e.PlayerID, Text: engine.Describe(e, names), Duration: tm.Notice})
		}
	}
	return pb
}
