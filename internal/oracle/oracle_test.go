package oracle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBounds_Usable(t *testing.T) {
	b := NewBounds()
	b.Set(3, AssetConfig{Endpoint: "feed://btc", MaxAge: 10 * time.Minute})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, b.Usable(3, Quote{Price: 100, UpdatedAt: now.Add(-5 * time.Minute)}, now))
	assert.False(t, b.Usable(3, Quote{Price: 100, UpdatedAt: now.Add(-11 * time.Minute)}, now), "past per-asset bound")
	assert.False(t, b.Usable(3, Quote{Price: 0, UpdatedAt: now}, now), "non-positive price")
	assert.False(t, b.Usable(3, Quote{Price: -5, UpdatedAt: now}, now), "negative price")

	// Asset 4 still uses the default bound.
	assert.True(t, b.Usable(4, Quote{Price: 1, UpdatedAt: now.Add(-DefaultMaxAge)}, now))
	assert.False(t, b.Usable(4, Quote{Price: 1, UpdatedAt: now.Add(-DefaultMaxAge - time.Second)}, now))
}

func TestPriceCache_LatestUnseen(t *testing.T) {
	c := NewPriceCache()
	_, err := c.Latest(0)
	assert.ErrorIs(t, err, ErrNoQuote)
}

func TestPriceCache_ObserveAndRead(t *testing.T) {
	c := NewPriceCache()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	c.Observe(7, 4200_00000000, ts)

	q, err := c.Latest(7)
	require.NoError(t, err)
	assert.Equal(t, int64(4200_00000000), q.Price)
	assert.Equal(t, ts, q.UpdatedAt)
}

func TestPriceCache_IgnoresStaleUpdate(t *testing.T) {
	c := NewPriceCache()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	c.Observe(7, 100, ts)
	c.Observe(7, 50, ts.Add(-time.Minute)) // older, must be dropped

	q, err := c.Latest(7)
	require.NoError(t, err)
	assert.Equal(t, int64(100), q.Price)
}

func TestPriceCache_OutOfRangeAsset(t *testing.T) {
	c := NewPriceCache()
	c.Observe(200, 100, time.Now())
	_, err := c.Latest(200)
	assert.ErrorIs(t, err, ErrNoQuote)
}

func TestFixtureFeed_FailInjection(t *testing.T) {
	f := NewFixtureFeed()
	ts := time.Now()
	f.SetAll(100, ts)

	q, err := f.Latest(10)
	require.NoError(t, err)
	assert.Equal(t, int64(100), q.Price)

	f.Fail(10)
	_, err = f.Latest(10)
	assert.ErrorIs(t, err, ErrNoQuote)

	// Setting a price clears the failure.
	f.SetPrice(10, 200, ts)
	q, err = f.Latest(10)
	require.NoError(t, err)
	assert.Equal(t, int64(200), q.Price)
}
