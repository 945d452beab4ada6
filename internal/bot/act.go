package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/talgya/hexfire/internal/engine"
)

// Actor submits orders via POST /api/v1/action with a participant token.
type Actor struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewActor creates an Actor targeting the given API base URL.
func NewActor(baseURL, token string) *Actor {
	return &Actor{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Act sends one order. A 409 means no window is open for the player and
// is reported as engine.ErrWindowClosed so the caller can retry.
func (a *Actor) Act(ctx context.Context, action engine.Action) error {
	body, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/api/v1/action", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.Token)

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST action: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		return nil
	case http.StatusConflict:
		return engine.ErrWindowClosed
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("action rejected (%d): %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
}

// WaitForAPI polls the host status endpoint with exponential backoff
// until it responds or ctx ends.
func WaitForAPI(ctx context.Context, baseURL string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	backoff := 500 * time.Millisecond
	maxBackoff := 15 * time.Second

	for {
		if statusOK(client, baseURL) {
			slog.Info("host API is ready")
			return nil
		}
		slog.Info("host not ready, retrying...", "backoff", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}
