// Package entropy supplies the dice the host rolls for landmines and spawn
// placement. Crypto is the default; Seeded reproduces a match from its seed.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	mrand "math/rand"
	"sync"
)

const poolSize = 64

// Crypto draws from crypto/rand through a small local pool.
type Crypto struct {
	mu   sync.Mutex
	pool []uint64
}

// NewCrypto creates a crypto-backed roller.
func NewCrypto() *Crypto {
	return &Crypto{}
}

// IntRange returns a uniform integer in [lo, hi].
func (c *Crypto) IntRange(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	span := uint64(hi-lo) + 1
	// Rejection sampling keeps the draw unbiased.
	limit := ^uint64(0) - ^uint64(0)%span
	for {
		n := c.next()
		if n < limit {
			return lo + int(n%span)
		}
	}
}

// Float returns a uniform float64 in [0, 1).
func (c *Crypto) Float() float64 {
	return float64(c.next()>>11) / float64(1<<53)
}

func (c *Crypto) next() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pool) == 0 {
		c.refill()
	}
	n := c.pool[0]
	c.pool = c.pool[1:]
	return n
}

func (c *Crypto) refill() {
	var buf [poolSize * 8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand does not fail on supported platforms; fall back anyway.
		slog.Warn("crypto/rand read failed, using math/rand", "error", err)
		for i := 0; i < poolSize; i++ {
			binary.LittleEndian.PutUint64(buf[i*8:], mrand.Uint64())
		}
	}
	c.pool = make([]uint64, poolSize)
	for i := range c.pool {
		c.pool[i] = binary.LittleEndian.Uint64(buf[i*8:])
	}
}

// Seeded is a deterministic roller for replays and tests. It is safe for
// concurrent use.
type Seeded struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

// NewSeeded creates a roller that yields the same sequence for the same seed.
func NewSeeded(seed int64) *Seeded {
	return &Seeded{rng: mrand.New(mrand.NewSource(seed))}
}

// IntRange returns a uniform integer in [lo, hi].
func (s *Seeded) IntRange(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + s.rng.Intn(hi-lo+1)
}

// Int63 returns a non-negative seed-sized value, for deriving match seeds.
func (s *Seeded) Int63() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Int63()
}

// Seed draws a fresh non-zero match seed from crypto/rand.
func Seed() int64 {
	c := NewCrypto()
	for {
		if n := int64(c.next() >> 1); n != 0 {
			return n
		}
	}
}
