package config

import (
	"strings"
	"testing"
	"time"

	"github.com/talgya/hexfire/internal/engine"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := FromLookup(env(nil))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 8080 || cfg.Radius != 20 || cfg.Window != 30*time.Second || !cfg.EarlyClose || cfg.ImpactStride != 1 {
		t.Errorf("defaults = %+v", cfg)
	}
	if !cfg.EphemeralKey || len(cfg.TokenSecret) != 32 {
		t.Error("missing token secret was not generated")
	}
	if cfg.Roster != nil {
		t.Errorf("roster = %v", cfg.Roster)
	}
}

func TestOverrides(t *testing.T) {
	cfg, err := FromLookup(env(map[string]string{
		"HEXFIRE_PORT":           "9000",
		"HEXFIRE_TOKEN_SECRET":   "s3cret",
		"HEXFIRE_RADIUS":         "8",
		"HEXFIRE_SEED":           "1234567890123",
		"HEXFIRE_WINDOW":         "45",
		"HEXFIRE_INTERLUDE":      "1500ms",
		"HEXFIRE_EARLY_CLOSE":    "false",
		"HEXFIRE_ADJACENT_MOVES": "true",
		"HEXFIRE_LOG_LEVEL":      "debug",
		"HEXFIRE_LOG_FORMAT":     "JSON",
		"HEXFIRE_ROSTER":         "a:Ada, b",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 9000 || string(cfg.TokenSecret) != "s3cret" || cfg.EphemeralKey {
		t.Errorf("port/secret = %d %q", cfg.Port, cfg.TokenSecret)
	}
	if cfg.Window != 45*time.Second || cfg.Interlude != 1500*time.Millisecond {
		t.Errorf("window %v interlude %v", cfg.Window, cfg.Interlude)
	}
	if cfg.LogFormat != "json" || cfg.LogLevel.String() != "DEBUG" {
		t.Errorf("log = %s %s", cfg.LogFormat, cfg.LogLevel)
	}

	opts := cfg.MatchDefaults()
	if opts.Radius != 8 || opts.Seed != 1234567890123 || opts.EarlyClose || !opts.RequireAdjacentMove {
		t.Errorf("match defaults = %+v", opts)
	}
	want := []engine.Entrant{{ID: "a", Name: "Ada"}, {ID: "b", Name: "b"}}
	if len(cfg.Roster) != 2 || cfg.Roster[0] != want[0] || cfg.Roster[1] != want[1] {
		t.Errorf("roster = %+v", cfg.Roster)
	}
}

func TestInvalid(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"HEXFIRE_PORT", "http", "HEXFIRE_PORT"},
		{"HEXFIRE_PORT", "70000", "out of range"},
		{"HEXFIRE_RADIUS", "65", "RADIUS"},
		{"HEXFIRE_WINDOW", "soon", "HEXFIRE_WINDOW"},
		{"HEXFIRE_IMPACT_STRIDE", "0", "IMPACT_STRIDE"},
		{"HEXFIRE_EARLY_CLOSE", "maybe", "EARLY_CLOSE"},
		{"HEXFIRE_LOG_LEVEL", "loud", "LOG_LEVEL"},
		{"HEXFIRE_LOG_FORMAT", "xml", "LOG_FORMAT"},
		{"HEXFIRE_ROSTER", "a,a", "duplicate"},
		{"HEXFIRE_ROSTER", ":Ada", "no id"},
	}
	for _, tt := range tests {
		_, err := FromLookup(env(map[string]string{tt.key: tt.value}))
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s=%q: err = %v, want mention of %q", tt.key, tt.value, err, tt.want)
		}
	}
}
