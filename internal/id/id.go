// Package id mints the ULIDs used as primary keys for users, trades and
// snapshots. IDs sort by creation time, which the store relies on to break
// created_at ties ("ORDER BY created_at DESC, id DESC").
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator mints strictly increasing IDs from its clock. Safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// NewGenerator returns a Generator reading time from now. IDs minted in the
// same millisecond increment the random part instead of drawing a new one.
func NewGenerator(now func() time.Time) *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     now,
	}
}

// New returns the next ID.
func (g *Generator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now().UTC()), g.entropy).String()
}

var defaultGenerator = NewGenerator(time.Now)

// New returns an ID from the wall clock.
func New() string {
	return defaultGenerator.New()
}

// Parse checks that s is a journal ID and returns the time it was minted,
// truncated to the millisecond.
func Parse(s string) (time.Time, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return ulid.Time(u.Time()).UTC(), nil
}
