package id

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IsSortable(t *testing.T) {
	prev := New()
	for i := 0; i < 1000; i++ {
		next := New()
		assert.Len(t, next, 26)
		assert.Greater(t, next, prev)
		prev = next
	}
}

func TestGenerator_SameMillisecondStaysOrdered(t *testing.T) {
	at := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	g := NewGenerator(func() time.Time { return at })

	first, second := g.New(), g.New()
	assert.Greater(t, second, first)
	assert.Equal(t, first[:10], second[:10], "timestamp part")
}

func TestParse(t *testing.T) {
	at := time.Date(2026, 10, 16, 12, 30, 45, 123_456_789, time.UTC)
	minted := NewGenerator(func() time.Time { return at }).New()

	got, err := Parse(minted)
	require.NoError(t, err)
	assert.Equal(t, at.Truncate(time.Millisecond), got)

	for _, bad := range []string{"", "not-an-id", "01ARZ3NDEKTSV4RRFFQ69G5FA", "01ARZ3NDEKTSV4RRFFQ69G5FAVX"} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}
