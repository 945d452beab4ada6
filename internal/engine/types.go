package engine

import (
	"errors"
	"fmt"
	"math"

	"github.com/talgya/hexfire/internal/world"
)

// Player and round limits.
const (
	MaxHealth       = 3
	MaxLandmineRisk = 32
	MinStormDist    = 6
	StormInterval   = 6 // rounds between storm shrinks
)

var (
	ErrUnknownPlayer = errors.New("unknown player")
	ErrInvalidAction = errors.New("invalid action")
	ErrPlayerDead    = errors.New("player is not alive")
)

// PlayerID identifies a participant for the whole match.
type PlayerID string

// Player is one participant's authoritative state.
type Player struct {
	ID           PlayerID       `json:"id" msgpack:"id"`
	Name         string         `json:"name" msgpack:"name"`
	Pos          world.HexCoord `json:"pos" msgpack:"pos"`
	Health       int            `json:"health" msgpack:"health"`
	Alive        bool           `json:"alive" msgpack:"alive"`
	LandmineRisk int            `json:"landmineRisk" msgpack:"landmineRisk"`
	// Action is a pending order carried in the state itself. Orders in the
	// round's batch take precedence.
	Action *Action `json:"action,omitempty" msgpack:"action,omitempty"`
}

// ActionType tags the Action variant.
type ActionType string

const (
	ActionMove ActionType = "move"
	ActionFire ActionType = "fire"
)

// Action is a player's single order for a round: exactly one of Move or
// Fire is set, matching Type.
type Action struct {
	Type ActionType `json:"type" msgpack:"type"`
	Move *MoveOrder `json:"move,omitempty" msgpack:"move,omitempty"`
	Fire *FireOrder `json:"fire,omitempty" msgpack:"fire,omitempty"`
}

// MoveOrder relocates the player to Target.
type MoveOrder struct {
	Target world.HexCoord `json:"target" msgpack:"target"`
}

// FireOrder launches a projectile. A nil Origin fires from the shooter's
// own muzzle point after movement.
type FireOrder struct {
	Origin *world.Vec3 `json:"origin,omitempty" msgpack:"origin,omitempty"`
	HAngle float64     `json:"hAngle" msgpack:"hAngle"`
	VAngle float64     `json:"vAngle" msgpack:"vAngle"`
}

// MoveTo builds a Move action.
func MoveTo(target world.HexCoord) Action {
	return Action{Type: ActionMove, Move: &MoveOrder{Target: target}}
}

// FireFrom builds a Fire action from an explicit origin.
func FireFrom(origin world.Vec3, hAngle, vAngle float64) Action {
	return Action{Type: ActionFire, Fire: &FireOrder{Origin: &origin, HAngle: hAngle, VAngle: vAngle}}
}

// FireAt builds a Fire action from the shooter's own position.
func FireAt(hAngle, vAngle float64) Action {
	return Action{Type: ActionFire, Fire: &FireOrder{HAngle: hAngle, VAngle: vAngle}}
}

// IsMove reports whether the action is a well-formed Move.
func (a Action) IsMove() bool {
	return a.Type == ActionMove && a.Move != nil
}

// Validate checks the variant's shape. Field membership is checked by the
// resolver, which owns the field.
func (a Action) Validate() error {
	switch a.Type {
	case ActionMove:
		if a.Move == nil || a.Fire != nil {
			return fmt.Errorf("%w: move must carry only a move order", ErrInvalidAction)
		}
	case ActionFire:
		if a.Fire == nil || a.Move != nil {
			return fmt.Errorf("%w: fire must carry only a fire order", ErrInvalidAction)
		}
		if !finite(a.Fire.HAngle) || !finite(a.Fire.VAngle) {
			return fmt.Errorf("%w: non-finite angle", ErrInvalidAction)
		}
		if o := a.Fire.Origin; o != nil && (!finite(o.X) || !finite(o.Y) || !finite(o.Z)) {
			return fmt.Errorf("%w: non-finite origin", ErrInvalidAction)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidAction, a.Type)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// EventType tags the Event variant.
type EventType string

const (
	EventFire     EventType = "fire"
	EventLandMine EventType = "landmine"
	EventStorm    EventType = "storm"
	EventDeath    EventType = "death"
)

// Event is an immutable record of something the resolver decided. Fire
// events carry Fire; the others name the affected PlayerID.
type Event struct {
	Type     EventType  `json:"type" msgpack:"type"`
	PlayerID PlayerID   `json:"playerId,omitempty" msgpack:"playerId,omitempty"`
	Fire     *FireEvent `json:"fire,omitempty" msgpack:"fire,omitempty"`
}

// FireEvent records a resolved shot. Hit is nil on a miss; a terrain-only
// impact has a Hit with an empty TargetID.
type FireEvent struct {
	ShooterID PlayerID   `json:"shooterId" msgpack:"shooterId"`
	Origin    world.Vec3 `json:"origin" msgpack:"origin"`
	HAngle    float64    `json:"hAngle" msgpack:"hAngle"`
	VAngle    float64    `json:"vAngle" msgpack:"vAngle"`
	Hit       *Hit       `json:"hit,omitempty" msgpack:"hit,omitempty"`
}

// Hit is the authoritative impact of a shot.
type Hit struct {
	TargetID PlayerID       `json:"targetId,omitempty" msgpack:"targetId,omitempty"`
	Cell     world.HexCoord `json:"cell" msgpack:"cell"`
	Point    world.Vec3     `json:"point" msgpack:"point"`
}

// GameState is the full authoritative state between rounds.
type GameState struct {
	Round         int      `json:"round" msgpack:"round"`
	CurrentDist   int      `json:"currentDist" msgpack:"currentDist"`
	Players       []Player `json:"players" msgpack:"players"`
	Events        []Event  `json:"events" msgpack:"events"`
	DisplayEvents []string `json:"displayEvents" msgpack:"displayEvents"`
	Over          bool     `json:"over" msgpack:"over"`
	WinnerID      PlayerID `json:"winnerId,omitempty" msgpack:"winnerId,omitempty"`
}

// Clone returns a deep copy that shares nothing mutable with s.
func (s GameState) Clone() GameState {
	out := s
	out.Players = make([]Player, len(s.Players))
	for i, p := range s.Players {
		if p.Action != nil {
			a := p.Action.clone()
			p.Action = &a
		}
		out.Players[i] = p
	}
	out.Events = append([]Event(nil), s.Events...)
	out.DisplayEvents = append([]string(nil), s.DisplayEvents...)
	return out
}

func (a Action) clone() Action {
	out := a
	if a.Move != nil {
		m := *a.Move
		out.Move = &m
	}
	if a.Fire != nil {
		f := *a.Fire
		if f.Origin != nil {
			o := *f.Origin
			f.Origin = &o
		}
		out.Fire = &f
	}
	return out
}

// Player returns the player with the given id.
func (s GameState) Player(id PlayerID) (Player, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

// AliveCount returns the number of players with health above zero.
func (s GameState) AliveCount() int {
	n := 0
	for _, p := range s.Players {
		if p.Health > 0 {
			n++
		}
	}
	return n
}
