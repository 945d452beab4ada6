package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewHandler(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, "json", slog.LevelInfo))
	log.Debug("hidden")
	log.Info("round resolved", "round", 3)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("not one JSON record: %q", buf.String())
	}
	if rec["msg"] != "round resolved" || rec["round"] != float64(3) {
		t.Errorf("record = %v", rec)
	}

	buf.Reset()
	slog.New(NewHandler(&buf, "text", slog.LevelDebug)).Debug("shown", "player", "a")
	if !strings.Contains(buf.String(), "msg=shown player=a") {
		t.Errorf("text record = %q", buf.String())
	}
}

func TestSetupWritesFile(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	path := filepath.Join(t.TempDir(), "hexfire.log")
	_, closer := Setup(Options{Level: slog.LevelInfo, Format: "json", File: path})
	slog.Info("match started", "match", "m1")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"match":"m1"`) {
		t.Errorf("log file = %q", b)
	}
}
