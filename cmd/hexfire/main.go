// Command hexfire runs the authoritative HEXFIRE host: the round loop,
// the participant socket and the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/talgya/hexfire/internal/api"
	"github.com/talgya/hexfire/internal/config"
	"github.com/talgya/hexfire/internal/logging"
	"github.com/talgya/hexfire/internal/session"
	"github.com/talgya/hexfire/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	_, logFile := logging.Setup(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	defer logFile.Close()

	slog.Info("HEXFIRE host starting",
		"port", cfg.Port,
		"radius", cfg.Radius,
		"window", cfg.Window,
		"interlude", cfg.Interlude,
		"early_close", cfg.EarlyClose,
		"seeded_dice", cfg.SeededDice,
	)
	if cfg.EphemeralKey {
		slog.Warn("HEXFIRE_TOKEN_SECRET not set, using a random key (tokens die with the process)")
	}
	if cfg.AdminKey == "" {
		slog.Warn("HEXFIRE_ADMIN_KEY not set, admin POST endpoints will be disabled")
	}

	// ── Match plumbing ───────────────────────────────────────────────
	tokens := transport.NewIssuer(cfg.TokenSecret, cfg.TokenTTL)
	hub := transport.NewHub(tokens, cfg.SocketQueue)
	matches := session.NewManager(tokens, hub, cfg.MatchDefaults())
	defer matches.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(cfg.Roster) > 0 {
		m, err := matches.Start(ctx, cfg.Roster, session.Options{})
		if err != nil {
			slog.Error("autostart failed", "error", err)
			os.Exit(1)
		}
		for id, tok := range m.Tokens {
			slog.Info("participant token", "player", id, "token", tok)
		}
	}

	// ── HTTP API ─────────────────────────────────────────────────────
	apiServer := &api.Server{
		Matches:      matches,
		Hub:          hub,
		Tokens:       tokens,
		Port:         cfg.Port,
		AdminKey:     cfg.AdminKey,
		RelayKey:     cfg.RelayKey,
		MaxSSE:       cfg.MaxSSE,
		ActionLimit:  api.NewRateLimiter(cfg.ActionRate, time.Minute),
		ConnectLimit: api.NewRateLimiter(cfg.ConnectRate, time.Minute),
	}

	fmt.Printf("\nHEXFIRE is listening.\n")
	fmt.Printf("API:    http://localhost:%d/api/v1/status\n", cfg.Port)
	fmt.Printf("Socket: ws://localhost:%d/ws?token=...\n", cfg.Port)
	fmt.Println("(Ctrl+C to stop)")

	if err := apiServer.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("shutting down")
}
