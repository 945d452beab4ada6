// Package replica distributes authoritative round results from the host to
// participants and turns them into ordered playback steps on the
// participant side.
package replica

import (
	"errors"
	"fmt"

	"github.com/talgya/hexfire/internal/engine"
	"github.com/talgya/hexfire/internal/world"
)

// MessageType tags a Message.
type MessageType string

const (
	TypeTerrainSnapshot MessageType = "terrainSnapshot"
	TypeRoundResult     MessageType = "roundResult"
	TypeMatchOver       MessageType = "matchOver"
	TypeSubmitAction    MessageType = "submitAction"
)

var ErrBadMessage = errors.New("malformed message")

// TerrainSnapshot carries the generated field verbatim. Participants build
// their field from it and never regenerate. State is the canonical state at
// the time of subscription, so late joiners can place players.
type TerrainSnapshot struct {
	MatchID string           `json:"matchId" msgpack:"matchId"`
	Radius  int              `json:"radius" msgpack:"radius"`
	Seed    int64            `json:"seed" msgpack:"seed"`
	Cells   []world.Cell     `json:"cells" msgpack:"cells"`
	State   engine.GameState `json:"state" msgpack:"state"`
}

// RoundResult is published once per resolved round. Round is the number of
// the round that was just resolved; State.Round is already the next one.
type RoundResult struct {
	Round          int              `json:"round" msgpack:"round"`
	State          engine.GameState `json:"state" msgpack:"state"`
	Events         []engine.Event   `json:"events" msgpack:"events"`
	DisplayStrings []string         `json:"displayStrings" msgpack:"displayStrings"`
}

// MatchOver is the terminal message of a match.
type MatchOver struct {
	WinnerID   engine.PlayerID  `json:"winnerId,omitempty" msgpack:"winnerId,omitempty"`
	FinalState engine.GameState `json:"finalState" msgpack:"finalState"`
	Aborted    bool             `json:"aborted,omitempty" msgpack:"aborted,omitempty"`
}

// SubmitAction is the only inbound message.
type SubmitAction struct {
	PlayerID engine.PlayerID `json:"playerId" msgpack:"playerId"`
	Action   engine.Action   `json:"action" msgpack:"action"`
}

// Message is the wire envelope: Type names the one payload field that is
// set.
type Message struct {
	Type            MessageType      `json:"type" msgpack:"type"`
	TerrainSnapshot *TerrainSnapshot `json:"terrainSnapshot,omitempty" msgpack:"terrainSnapshot,omitempty"`
	RoundResult     *RoundResult     `json:"roundResult,omitempty" msgpack:"roundResult,omitempty"`
	MatchOver       *MatchOver       `json:"matchOver,omitempty" msgpack:"matchOver,omitempty"`
	SubmitAction    *SubmitAction    `json:"submitAction,omitempty" msgpack:"submitAction,omitempty"`
}

// Validate checks that exactly the payload named by Type is present.
func (m Message) Validate() error {
	set := 0
	for _, p := range []bool{m.TerrainSnapshot != nil, m.RoundResult != nil, m.MatchOver != nil, m.SubmitAction != nil} {
		if p {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: %d payloads set", ErrBadMessage, set)
	}

	var ok bool
	switch m.Type {
	case TypeTerrainSnapshot:
		ok = m.TerrainSnapshot != nil
	case TypeRoundResult:
		ok = m.RoundResult != nil
	case TypeMatchOver:
		ok = m.MatchOver != nil
	case TypeSubmitAction:
		ok = m.SubmitAction != nil
	default:
		return fmt.Errorf("%w: unknown type %q", ErrBadMessage, m.Type)
	}
	if !ok {
		return fmt.Errorf("%w: payload does not match type %q", ErrBadMessage, m.Type)
	}
	return nil
}

func terrainMessage(s TerrainSnapshot) Message {
	return Message{Type: TypeTerrainSnapshot, TerrainSnapshot: &s}
}

func roundMessage(r RoundResult) Message {
	return Message{Type: TypeRoundResult, RoundResult: &r}
}

func overMessage(o MatchOver) Message {
	return Message{Type: TypeMatchOver, MatchOver: &o}
}

// Submit wraps an outbound order from a participant.
func Submit(id engine.PlayerID, a engine.Action) Message {
	return Message{Type: TypeSubmitAction, SubmitAction: &SubmitAction{PlayerID: id, Action: a}}
}
