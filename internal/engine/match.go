package engine

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/talgya/hexfire/internal/world"
)

// maxPlacementTries bounds the retry loop for random spawn cells.
const maxPlacementTries = 10_000

// Entrant is one roster line. An empty ID is assigned a fresh UUID.
type Entrant struct {
	ID   PlayerID `json:"id,omitempty"`
	Name string   `json:"name"`
}

// NewGame places every entrant on a distinct random cell and returns the
// round-1 state.
func NewGame(f *world.Field, roster []Entrant, rng *rand.Rand) (GameState, error) {
	if len(roster) < 2 {
		return GameState{}, errors.New("need at least two players")
	}
	if len(roster) > f.HexCount() {
		return GameState{}, fmt.Errorf("%d players do not fit on %d hexes", len(roster), f.HexCount())
	}

	ids := make(map[PlayerID]bool, len(roster))
	occupied := make(map[world.HexCoord]bool, len(roster))
	state := GameState{
		Round:       1,
		CurrentDist: InitialStormDist(f.Radius),
		Players:     make([]Player, 0, len(roster)),
	}

	for _, e := range roster {
		id := e.ID
		if id == "" {
			id = PlayerID(uuid.NewString())
		}
		if ids[id] {
			return GameState{}, fmt.Errorf("duplicate player id %q", id)
		}
		ids[id] = true

		pos, err := placeUnoccupied(f, occupied, rng)
		if err != nil {
			return GameState{}, err
		}
		occupied[pos] = true

		state.Players = append(state.Players, Player{
			ID:     id,
			Name:   e.Name,
			Pos:    pos,
			Health: MaxHealth,
			Alive:  true,
		})
	}
	return state, nil
}

func placeUnoccupied(f *world.Field, occupied map[world.HexCoord]bool, rng *rand.Rand) (world.HexCoord, error) {
	for i := 0; i < maxPlacementTries; i++ {
		pos := f.RandomCell(rng)
		if !occupied[pos] {
			return pos, nil
		}
	}
	return world.HexCoord{}, fmt.Errorf("no free hex after %d tries", maxPlacementTries)
}

// LivingIDs lists the players who can still act.
func (s GameState) LivingIDs() []PlayerID {
	var out []PlayerID
	for _, p := range s.Players {
		if p.Health > 0 {
			out = append(out, p.ID)
		}
	}
	return out
}
