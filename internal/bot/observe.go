// Package bot implements an autonomous HEXFIRE participant.
// It observes the match over the participant socket, decides on an order
// from its replica of the state, and acts through the action endpoint or
// the socket itself.
package bot

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/talgya/hexfire/internal/engine"
	"github.com/talgya/hexfire/internal/replica"
	"github.com/talgya/hexfire/internal/transport"
)

// Observer keeps a replica in sync with the host over a socket.
type Observer struct {
	Replica *replica.Replica

	conn    *websocket.Conn
	codec   transport.Codec
	writeMu sync.Mutex
}

// Dial connects to the host's participant socket. baseURL is the HTTP
// address of the host API.
func Dial(ctx context.Context, baseURL, token, codecName string) (*Observer, error) {
	codec, err := transport.CodecByName(codecName)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", baseURL, err)
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"token": {token}, "codec": {codec.Name()}}.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", u.Redacted(), err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	return &Observer{Replica: replica.NewReplica(), conn: conn, codec: codec}, nil
}

// Observe reads the next host message and folds it into the replica.
func (o *Observer) Observe() (replica.Message, error) {
	_, b, err := o.conn.ReadMessage()
	if err != nil {
		return replica.Message{}, err
	}
	var msg replica.Message
	if err := o.codec.Decode(b, &msg); err != nil {
		return replica.Message{}, fmt.Errorf("decode: %w", err)
	}
	if _, err := o.Replica.Apply(msg); err != nil {
		return msg, fmt.Errorf("apply %s: %w", msg.Type, err)
	}
	return msg, nil
}

// Submit sends an order over the socket. The host fills in the player id
// from the connection's token.
func (o *Observer) Submit(_ context.Context, a engine.Action) error {
	b, err := o.codec.Encode(replica.Submit("", a))
	if err != nil {
		return err
	}
	o.writeMu.Lock()
	defer o.writeMu.Unlock()
	o.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return o.conn.WriteMessage(o.codec.FrameType(), b)
}

// Close sends a close frame and drops the connection.
func (o *Observer) Close() error {
	o.writeMu.Lock()
	o.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	o.writeMu.Unlock()
	return o.conn.Close()
}

// Identify reads the player and match ids from a participant token without
// checking its signature; only the host can do that.
func Identify(token string) (engine.PlayerID, string, error) {
	var c transport.Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &c); err != nil {
		return "", "", fmt.Errorf("read token: %w", err)
	}
	if c.PlayerID == "" {
		return "", "", fmt.Errorf("token has no player id")
	}
	return c.PlayerID, c.MatchID, nil
}

// statusOK reports whether the host API answers its status endpoint.
func statusOK(client *http.Client, baseURL string) bool {
	resp, err := client.Get(baseURL + "/api/v1/status")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
