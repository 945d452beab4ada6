package engine

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/talgya/hexfire/internal/ballistics"
	"github.com/talgya/hexfire/internal/world"
)

// Batch is the set of orders collected for one round, at most one per
// player.
type Batch map[PlayerID]Action

// Resolver turns a state snapshot and an order batch into the next state.
// It carries the whole simulation context explicitly: nothing is looked up
// globally.
type Resolver struct {
	Field *world.Field
	Dice  Roller

	// ImpactStride coarsens hit scanning; 0 or 1 tests every sample.
	ImpactStride int
	// RequireAdjacentMove rejects moves to non-neighboring cells.
	RequireAdjacentMove bool
}

// NewResolver creates a resolver over a generated field.
func NewResolver(f *world.Field, dice Roller) *Resolver {
	return &Resolver{Field: f, Dice: dice}
}

// round is the scratch space of a single Resolve call.
type round struct {
	in      GameState
	out     GameState
	orders  []*Action // by player index, nil = no order
	live    []bool    // alive at round start
	names   map[PlayerID]string
	events  []Event
	display []string
}

// Resolve runs one round. in is never modified; the returned state and
// event list share nothing with it. Malformed orders are dropped.
func (r *Resolver) Resolve(in GameState, batch Batch) (GameState, []Event) {
	if in.Over {
		out := in.Clone()
		out.Events, out.DisplayEvents = nil, nil
		return out, nil
	}

	rd := &round{
		in:     in,
		out:    in.Clone(),
		orders: make([]*Action, len(in.Players)),
		live:   make([]bool, len(in.Players)),
		names:  make(map[PlayerID]string, len(in.Players)),
	}
	for i, p := range in.Players {
		rd.out.Players[i].Action = nil
		rd.live[i] = p.Health > 0
		rd.names[p.ID] = p.Name
	}

	r.collect(rd, batch)
	r.move(rd)
	r.landmines(rd)
	r.fire(rd)
	r.storm(rd)
	r.deaths(rd)

	rd.out.Round = in.Round + 1
	rd.out.Events = rd.events
	if len(rd.display) == 0 {
		rd.display = append(rd.display, describeQuiet(in.Round))
	}
	rd.out.DisplayEvents = rd.display

	if alive := rd.out.AliveCount(); alive <= 1 {
		rd.out.Over = true
		for _, p := range rd.out.Players {
			if p.Health > 0 {
				rd.out.WinnerID = p.ID
			}
		}
	}

	events := append([]Event(nil), rd.events...)
	return rd.out, events
}

// collect picks each living player's order (batch first, then the pending
// order carried in the state) and drops anything malformed.
func (r *Resolver) collect(rd *round, batch Batch) {
	index := make(map[PlayerID]int, len(rd.in.Players))
	for i, p := range rd.in.Players {
		index[p.ID] = i
	}
	for id := range batch {
		if _, ok := index[id]; !ok {
			slog.Debug("ignoring action", "player", id, "error", ErrUnknownPlayer)
		}
	}

	for i, p := range rd.in.Players {
		var a *Action
		if b, ok := batch[p.ID]; ok {
			b = b.clone()
			a = &b
		} else if p.Action != nil {
			c := p.Action.clone()
			a = &c
		}
		if a == nil {
			continue
		}
		if err := r.check(p, *a, rd.live[i]); err != nil {
			slog.Debug("ignoring action", "player", p.ID, "round", rd.in.Round, "error", err)
			continue
		}
		if a.Type == ActionFire {
			a.Fire.HAngle = clampAngle(a.Fire.HAngle, 359)
			a.Fire.VAngle = clampAngle(a.Fire.VAngle, 89)
		}
		rd.orders[i] = a
	}
}

func (r *Resolver) check(p Player, a Action, alive bool) error {
	if !alive {
		return ErrPlayerDead
	}
	if err := a.Validate(); err != nil {
		return err
	}
	switch a.Type {
	case ActionMove:
		if !r.Field.Has(a.Move.Target) {
			return fmt.Errorf("%w: move target %s not in field", ErrInvalidAction, a.Move.Target)
		}
		if r.RequireAdjacentMove && !world.Adjacent(p.Pos, a.Move.Target) {
			return fmt.Errorf("%w: move target %s not adjacent to %s", ErrInvalidAction, a.Move.Target, p.Pos)
		}
	case ActionFire:
		if o := a.Fire.Origin; o != nil {
			if _, ok := r.Field.Locate(o.X, o.Z); !ok {
				return fmt.Errorf("%w: fire origin (%.2f, %.2f) not above the field", ErrInvalidAction, o.X, o.Z)
			}
		}
	}
	return nil
}

func clampAngle(deg, hi float64) float64 {
	return math.Min(math.Max(deg, 0), hi)
}

// move resolves conflicts and relocations against pre-move positions.
func (r *Resolver) move(rd *round) {
	targets := make(map[world.HexCoord]int)
	for _, a := range rd.orders {
		if a != nil && a.IsMove() {
			targets[a.Move.Target]++
		}
	}

	occupied := make(map[world.HexCoord]PlayerID)
	for i, p := range rd.in.Players {
		if rd.live[i] {
			occupied[p.Pos] = p.ID
		}
	}

	for i, a := range rd.orders {
		if a == nil || !a.IsMove() {
			continue
		}
		p := rd.in.Players[i]
		target := a.Move.Target
		if targets[target] > 1 {
			slog.Debug("move conflict", "player", p.ID, "target", target)
			continue
		}
		if holder, taken := occupied[target]; taken && holder != p.ID {
			continue
		}
		rd.out.Players[i].Pos = target
	}
}

// landmines rolls for movers and decays everyone else.
func (r *Resolver) landmines(rd *round) {
	for i := range rd.out.Players {
		if !rd.live[i] {
			continue
		}
		p := &rd.out.Players[i]
		a := rd.orders[i]
		if a == nil || !a.IsMove() {
			p.LandmineRisk = decayRisk(p.LandmineRisk)
			continue
		}

		roll := r.Dice.IntRange(1, LandmineRollMax)
		if mineTriggered(roll, p.LandmineRisk) {
			damage(p)
			p.LandmineRisk = 0
			rd.emit(Event{Type: EventLandMine, PlayerID: p.ID})
			continue
		}
		p.LandmineRisk = escalateRisk(p.LandmineRisk)
	}
}

// fire resolves every shot against post-movement positions.
func (r *Resolver) fire(rd *round) {
	positions := make(map[world.HexCoord]int)
	for i, p := range rd.out.Players {
		if rd.live[i] {
			positions[p.Pos] = i
		}
	}

	for i, a := range rd.orders {
		if a == nil || a.Type != ActionFire {
			continue
		}
		shooter := rd.out.Players[i]
		origin, ok := r.origin(shooter, a.Fire)
		if !ok {
			continue
		}

		ev := &FireEvent{
			ShooterID: shooter.ID,
			Origin:    origin,
			HAngle:    a.Fire.HAngle,
			VAngle:    a.Fire.VAngle,
		}
		path := ballistics.ComputePath(origin, a.Fire.HAngle, a.Fire.VAngle)
		if imp, hit := ballistics.FindImpactStride(path, r.Field, r.ImpactStride); hit {
			ev.Hit = &Hit{Cell: imp.Cell, Point: imp.Point}
			if j, there := positions[imp.Cell]; there && j != i {
				target := &rd.out.Players[j]
				damage(target)
				ev.Hit.TargetID = target.ID
			}
		}
		rd.emit(Event{Type: EventFire, Fire: ev})
	}
}

func (r *Resolver) origin(shooter Player, f *FireOrder) (world.Vec3, bool) {
	if f.Origin != nil {
		return *f.Origin, true
	}
	c, ok := r.Field.Get(shooter.Pos)
	if !ok {
		return world.Vec3{}, false
	}
	return c.MuzzlePoint(), true
}

// storm shrinks the zone on schedule and damages living players outside it.
func (r *Resolver) storm(rd *round) {
	if stormShrinks(rd.in.Round) {
		next := shrink(rd.in.CurrentDist)
		if next != rd.in.CurrentDist {
			rd.display = append(rd.display, describeShrink(rd.in.Round, next))
		}
		rd.out.CurrentDist = next
	}

	for i := range rd.out.Players {
		if !rd.live[i] {
			continue
		}
		p := &rd.out.Players[i]
		if p.Pos.DistOrigin() > rd.out.CurrentDist {
			damage(p)
			rd.emit(Event{Type: EventStorm, PlayerID: p.ID})
		}
	}
}

// deaths marks players who reached zero this round.
func (r *Resolver) deaths(rd *round) {
	for i := range rd.out.Players {
		p := &rd.out.Players[i]
		p.Alive = p.Health > 0
		if rd.live[i] && !p.Alive {
			rd.emit(Event{Type: EventDeath, PlayerID: p.ID})
		}
	}
}

func (rd *round) emit(e Event) {
	rd.events = append(rd.events, e)
	rd.display = append(rd.display, Describe(e, rd.names))
}

func damage(p *Player) {
	p.Health = max(p.Health-1, 0)
}
