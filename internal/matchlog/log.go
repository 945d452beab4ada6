// Package matchlog keeps a queryable history of one match's rounds in a
// private in-memory SQLite database. Closing the log erases it.
package matchlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/hexfire/internal/engine"
	"github.com/talgya/hexfire/internal/replica"
)

// Log wraps the in-memory database of a single match.
type Log struct {
	conn    *sqlx.DB
	matchID string
}

// RoundRow is one resolved round.
type RoundRow struct {
	Round          int      `db:"round" json:"round"`
	CurrentDist    int      `db:"current_dist" json:"currentDist"`
	Alive          int      `db:"alive" json:"alive"`
	EventCount     int      `db:"event_count" json:"eventCount"`
	Over           bool     `db:"over" json:"over"`
	WinnerID       string   `db:"winner_id" json:"winnerId,omitempty"`
	Display        string   `db:"display_json" json:"-"`
	DisplayStrings []string `db:"-" json:"displayStrings"`
}

// EventRow is one event of a round, flattened for querying.
type EventRow struct {
	Round       int    `db:"round" json:"round"`
	Seq         int    `db:"seq" json:"seq"`
	Type        string `db:"type" json:"type"`
	PlayerID    string `db:"player_id" json:"playerId"`
	TargetID    string `db:"target_id" json:"targetId,omitempty"`
	Description string `db:"description" json:"description"`
}

// PlayerRow is a player's state at the end of a round.
type PlayerRow struct {
	Round        int    `db:"round" json:"round"`
	PlayerID     string `db:"player_id" json:"playerId"`
	Name         string `db:"name" json:"name"`
	Q            int    `db:"pos_q" json:"q"`
	R            int    `db:"pos_r" json:"r"`
	Health       int    `db:"health" json:"health"`
	Alive        bool   `db:"alive" json:"alive"`
	LandmineRisk int    `db:"landmine_risk" json:"landmineRisk"`
}

// Open creates the match's database. Every match gets its own DSN so two
// logs never share state.
func Open(matchID string) (*Log, error) {
	conn, err := sqlx.Open("sqlite", "file:"+matchID+"?mode=memory")
	if err != nil {
		return nil, fmt.Errorf("open match log: %w", err)
	}
	// An in-memory database lives exactly as long as its one connection.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)
	conn.SetConnMaxIdleTime(0)

	l := &Log{conn: conn, matchID: matchID}
	if err := l.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return l, nil
}

// Close drops the database.
func (l *Log) Close() error {
	return l.conn.Close()
}

// MatchID returns the match this log belongs to.
func (l *Log) MatchID() string { return l.matchID }

func (l *Log) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rounds (
		round INTEGER PRIMARY KEY,
		current_dist INTEGER NOT NULL,
		alive INTEGER NOT NULL,
		event_count INTEGER NOT NULL,
		over INTEGER NOT NULL,
		winner_id TEXT NOT NULL,
		display_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		round INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		type TEXT NOT NULL,
		player_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		description TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS players (
		round INTEGER NOT NULL,
		player_id TEXT NOT NULL,
		name TEXT NOT NULL,
		pos_q INTEGER NOT NULL,
		pos_r INTEGER NOT NULL,
		health INTEGER NOT NULL,
		alive INTEGER NOT NULL,
		landmine_risk INTEGER NOT NULL,
		PRIMARY KEY (round, player_id)
	);

	CREATE TABLE IF NOT EXISTS match_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_round ON events(round);
	CREATE INDEX IF NOT EXISTS idx_players_id ON players(player_id);
	`
	_, err := l.conn.Exec(schema)
	return err
}

// RecordRound writes a resolved round with its events and player states.
func (l *Log) RecordRound(ctx context.Context, res replica.RoundResult) error {
	display, err := json.Marshal(res.DisplayStrings)
	if err != nil {
		return fmt.Errorf("encode display: %w", err)
	}

	tx, err := l.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	row := RoundRow{
		Round:       res.Round,
		CurrentDist: res.State.CurrentDist,
		Alive:       res.State.AliveCount(),
		EventCount:  len(res.Events),
		Over:        res.State.Over,
		WinnerID:    string(res.State.WinnerID),
		Display:     string(display),
	}
	if _, err := tx.NamedExecContext(ctx, `INSERT OR REPLACE INTO rounds
		(round, current_dist, alive, event_count, over, winner_id, display_json)
		VALUES (:round, :current_dist, :alive, :event_count, :over, :winner_id, :display_json)`, row); err != nil {
		return fmt.Errorf("insert round %d: %w", res.Round, err)
	}

	names := make(map[engine.PlayerID]string, len(res.State.Players))
	for _, p := range res.State.Players {
		names[p.ID] = p.Name
	}
	for i, e := range res.Events {
		ev := EventRow{
			Round:       res.Round,
			Seq:         i,
			Type:        string(e.Type),
			PlayerID:    string(e.PlayerID),
			Description: engine.Describe(e, names),
		}
		if e.Fire != nil {
			ev.PlayerID = string(e.Fire.ShooterID)
			if e.Fire.Hit != nil {
				ev.TargetID = string(e.Fire.Hit.TargetID)
			}
		}
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO events
			(round, seq, type, player_id, target_id, description)
			VALUES (:round, :seq, :type, :player_id, :target_id, :description)`, ev); err != nil {
			return fmt.Errorf("insert event %d/%d: %w", res.Round, i, err)
		}
	}

	for _, p := range res.State.Players {
		pr := PlayerRow{
			Round:        res.Round,
			PlayerID:     string(p.ID),
			Name:         p.Name,
			Q:            p.Pos.Q,
			R:            p.Pos.R,
			Health:       p.Health,
			Alive:        p.Alive,
			LandmineRisk: p.LandmineRisk,
		}
		if _, err := tx.NamedExecContext(ctx, `INSERT OR REPLACE INTO players
			(round, player_id, name, pos_q, pos_r, health, alive, landmine_risk)
			VALUES (:round, :player_id, :name, :pos_q, :pos_r, :health, :alive, :landmine_risk)`, pr); err != nil {
			return fmt.Errorf("insert player %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Debug("round logged", "match", l.matchID, "round", res.Round, "events", len(res.Events))
	return nil
}

// SaveMeta stores a key-value pair about the match.
func (l *Log) SaveMeta(key, value string) error {
	_, err := l.conn.Exec(
		"INSERT OR REPLACE INTO match_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (l *Log) GetMeta(key string) (string, error) {
	var value string
	err := l.conn.Get(&value, "SELECT value FROM match_meta WHERE key = ?", key)
	return value, err
}

// RecentRounds returns up to limit rounds, newest first.
func (l *Log) RecentRounds(ctx context.Context, limit int) ([]RoundRow, error) {
	var rows []RoundRow
	err := l.conn.SelectContext(ctx, &rows, `SELECT round, current_dist, alive, event_count, over, winner_id, display_json
		FROM rounds ORDER BY round DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if err := json.Unmarshal([]byte(rows[i].Display), &rows[i].DisplayStrings); err != nil {
			return nil, fmt.Errorf("decode display for round %d: %w", rows[i].Round, err)
		}
	}
	return rows, nil
}

// Events returns a round's events in resolution order.
func (l *Log) Events(ctx context.Context, round int) ([]EventRow, error) {
	var rows []EventRow
	err := l.conn.SelectContext(ctx, &rows, `SELECT round, seq, type, player_id, target_id, description
		FROM events WHERE round = ? ORDER BY seq`, round)
	return rows, err
}

// PlayerHistory returns a player's end-of-round states, oldest first.
func (l *Log) PlayerHistory(ctx context.Context, id engine.PlayerID) ([]PlayerRow, error) {
	var rows []PlayerRow
	err := l.conn.SelectContext(ctx, &rows, `SELECT round, player_id, name, pos_q, pos_r, health, alive, landmine_risk
		FROM players WHERE player_id = ? ORDER BY round`, string(id))
	return rows, err
}
