// Package config reads host and bot settings from the environment.
// A .env file in the working directory is loaded first when present;
// variables already set in the environment win.
package config

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/talgya/hexfire/internal/engine"
	"github.com/talgya/hexfire/internal/session"
)

const prefix = "HEXFIRE_"

// Config is the host's runtime configuration.
type Config struct {
	Port        int
	AdminKey    string
	RelayKey    string
	TokenSecret []byte
	TokenTTL    time.Duration

	// Match defaults.
	Radius        int
	Seed          int64
	Window        time.Duration
	Interlude     time.Duration
	EarlyClose    bool
	ImpactStride  int
	AdjacentMoves bool
	SeededDice    bool

	// Roster starts a match at boot when non-empty.
	Roster []engine.Entrant

	ActionRate   int // action posts per player per minute
	ConnectRate  int // socket upgrades per address per minute
	MaxSSE       int
	SocketQueue  int
	LogLevel     slog.Level
	LogFile      string
	LogFormat    string // "text", "json" or "" for auto
	EphemeralKey bool   // TokenSecret was generated at startup
}

// Load reads .env (if any) and the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an arbitrary variable source.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	r := reader{lookup: lookup}
	cfg := Config{
		Port:          r.int("PORT", 8080),
		AdminKey:      r.str("ADMIN_KEY", ""),
		RelayKey:      r.str("RELAY_KEY", ""),
		TokenSecret:   []byte(r.str("TOKEN_SECRET", "")),
		TokenTTL:      r.duration("TOKEN_TTL", 24*time.Hour),
		Radius:        r.int("RADIUS", 20),
		Seed:          r.int64("SEED", 0),
		Window:        r.duration("WINDOW", 30*time.Second),
		Interlude:     r.duration("INTERLUDE", 5*time.Second),
		EarlyClose:    r.bool("EARLY_CLOSE", true),
		ImpactStride:  r.int("IMPACT_STRIDE", 1),
		AdjacentMoves: r.bool("ADJACENT_MOVES", false),
		SeededDice:    r.bool("SEEDED_DICE", false),
		ActionRate:    r.int("ACTION_RATE", 30),
		ConnectRate:   r.int("CONNECT_RATE", 20),
		MaxSSE:        r.int("MAX_SSE", 8),
		SocketQueue:   r.int("SOCKET_QUEUE", 16),
		LogFile:       r.str("LOG_FILE", ""),
		LogFormat:     strings.ToLower(r.str("LOG_FORMAT", "")),
	}
	if v := r.str("LOG_LEVEL", "info"); r.err == nil {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			r.fail("LOG_LEVEL", v, err)
		}
	}
	if v := r.str("ROSTER", ""); v != "" {
		roster, err := ParseRoster(v)
		if err != nil {
			r.fail("ROSTER", v, err)
		}
		cfg.Roster = roster
	}
	if r.err != nil {
		return Config{}, r.err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	if len(cfg.TokenSecret) == 0 {
		cfg.TokenSecret = make([]byte, 32)
		rand.Read(cfg.TokenSecret)
		cfg.EphemeralKey = true
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("%sPORT %d out of range", prefix, c.Port)
	case c.Radius < 0 || c.Radius > 64:
		return fmt.Errorf("%sRADIUS %d must be between 0 and 64", prefix, c.Radius)
	case c.Window <= 0:
		return fmt.Errorf("%sWINDOW must be positive", prefix)
	case c.Interlude < 0:
		return fmt.Errorf("%sINTERLUDE must not be negative", prefix)
	case c.ImpactStride < 1:
		return fmt.Errorf("%sIMPACT_STRIDE must be at least 1", prefix)
	case c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%sLOG_FORMAT %q: want text or json", prefix, c.LogFormat)
	}
	return nil
}

// MatchDefaults converts the match settings for the session manager.
func (c Config) MatchDefaults() session.Options {
	return session.Options{
		Radius:              c.Radius,
		Seed:                c.Seed,
		Window:              c.Window,
		Interlude:           c.Interlude,
		EarlyClose:          c.EarlyClose,
		ImpactStride:        c.ImpactStride,
		RequireAdjacentMove: c.AdjacentMoves,
		SeededDice:          c.SeededDice,
	}
}

// ParseRoster reads "id[:name],id[:name],...". An entry without a name
// uses its id.
func ParseRoster(s string) ([]engine.Entrant, error) {
	var out []engine.Entrant
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, name, _ := strings.Cut(part, ":")
		id = strings.TrimSpace(id)
		name = strings.TrimSpace(name)
		if id == "" {
			return nil, fmt.Errorf("entry %q has no id", part)
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate id %q", id)
		}
		seen[id] = true
		if name == "" {
			name = id
		}
		out = append(out, engine.Entrant{ID: engine.PlayerID(id), Name: name})
	}
	return out, nil
}

type reader struct {
	lookup func(string) (string, bool)
	err    error
}

func (r *reader) str(key, def string) string {
	if v, ok := r.lookup(prefix + key); ok && v != "" {
		return v
	}
	return def
}

func (r *reader) fail(key, v string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%s%s=%q: %w", prefix, key, v, err)
	}
}

func (r *reader) int(key string, def int) int {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return n
}

func (r *reader) int64(key string, def int64) int64 {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return n
}

func (r *reader) bool(key string, def bool) bool {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return b
}

// duration accepts Go durations ("45s") or bare seconds ("45").
func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return d
}
