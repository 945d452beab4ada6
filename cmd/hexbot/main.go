// Command hexbot plays one seat of a HEXFIRE match.
// It observes the match over the participant socket, decides an order
// each round, and acts via the action API (or the socket).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/talgya/hexfire/internal/bot"
	"github.com/talgya/hexfire/internal/engine"
	"github.com/talgya/hexfire/internal/logging"
)

func main() {
	_ = godotenv.Load()

	var level slog.Level
	level.UnmarshalText([]byte(envOrDefault("HEXBOT_LOG_LEVEL", "info")))
	logging.Setup(logging.Options{Level: level, Format: os.Getenv("HEXBOT_LOG_FORMAT")})

	// Configuration from environment.
	apiURL := envOrDefault("HEXBOT_API_URL", "http://localhost:8080")
	token := os.Getenv("HEXBOT_TOKEN")
	codec := envOrDefault("HEXBOT_CODEC", "json")
	via := envOrDefault("HEXBOT_ACT", "http")
	delay := envDurationOrDefault("HEXBOT_SOCKET_DELAY", 6*time.Second)

	if token == "" {
		slog.Error("HEXBOT_TOKEN is required")
		os.Exit(1)
	}
	id, matchID, err := bot.Identify(token)
	if err != nil {
		slog.Error("bad token", "error", err)
		os.Exit(1)
	}

	slog.Info("HEXFIRE bot starting",
		"api_url", apiURL,
		"player", id,
		"match", matchID,
		"codec", codec,
		"act", via,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Wait for the host to be ready before connecting.
	slog.Info("waiting for host API...")
	if err := bot.WaitForAPI(ctx, apiURL); err != nil {
		slog.Error("host API never became ready", "error", err)
		os.Exit(1)
	}

	obs, err := bot.Dial(ctx, apiURL, token, codec)
	if err != nil {
		slog.Error("connect failed", "error", err)
		os.Exit(1)
	}

	b := &bot.Bot{ID: id, Observer: obs}
	switch via {
	case "http":
		b.Submit = bot.NewActor(apiURL, token).Act
	case "socket":
		// The socket gives no receipt, so wait out the host's interlude.
		b.Submit = func(ctx context.Context, a engine.Action) error {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			return obs.Submit(ctx, a)
		}
	default:
		slog.Error("HEXBOT_ACT must be http or socket", "value", via)
		os.Exit(1)
	}

	over, err := b.Run(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		slog.Info("received signal, shutting down")
	case err != nil:
		slog.Error("bot stopped", "error", err)
		os.Exit(1)
	case over.WinnerID == id:
		fmt.Println("Victory.")
	case over.Aborted:
		fmt.Println("Match aborted.")
	default:
		fmt.Printf("Defeat. Winner: %q\n", over.WinnerID)
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
