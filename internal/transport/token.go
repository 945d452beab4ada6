package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/talgya/hexfire/internal/engine"
)

var ErrBadToken = errors.New("invalid participant token")

// Claims bind a token to one player in one match.
type Claims struct {
	PlayerID engine.PlayerID `json:"pid"`
	MatchID  string          `json:"mid"`
	jwt.RegisteredClaims
}

// Issuer signs and checks HS256 participant tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an issuer. A zero ttl means tokens last 24 hours.
func NewIssuer(secret []byte, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{secret: secret, ttl: ttl, now: time.Now}
}

// Issue returns a signed token for a player.
func (i *Issuer) Issue(matchID string, id engine.PlayerID) (string, error) {
	now := i.now()
	claims := Claims{
		PlayerID: id,
		MatchID:  matchID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(id),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	ss, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return ss, nil
}

// Parse verifies a token and returns its claims.
func (i *Issuer) Parse(token string) (Claims, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrBadToken, err)
	}
	if c.PlayerID == "" || c.MatchID == "" {
		return Claims{}, fmt.Errorf("%w: missing player or match", ErrBadToken)
	}
	return c, nil
}
