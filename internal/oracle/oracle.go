package oracle

import (
	"errors"
	"sync"
	"time"

	"github.com/DYBL777/DYBL-Crypto42/internal/codec"
)

// ErrNoQuote is returned when a feed has no usable price for an asset.
// Callers on the settlement path must degrade the asset, never abort.
var ErrNoQuote = errors.New("oracle: no quote for asset")

// Quote is one oracle reading: a fixed-point price (math.PriceConfig scale)
// and the oracle-reported time of its last update.
type Quote struct {
	Price     int64
	UpdatedAt time.Time
}

// Feed reads the latest price for one tracked asset.
type Feed interface {
	Latest(asset uint8) (Quote, error)
}

// AssetConfig is the per-asset oracle configuration. Endpoint identifies the
// upstream price source; MaxAge is the staleness bound for that asset.
type AssetConfig struct {
	Endpoint string
	MaxAge   time.Duration
}

// Bounds holds the oracle configuration for the whole universe. Mutations go
// through the settlement engine's timelock, never directly.
type Bounds struct {
	assets [codec.UniverseSize]AssetConfig
}

// DefaultMaxAge applies to assets with no explicit staleness bound.
const DefaultMaxAge = 30 * time.Minute

// NewBounds returns bounds with every asset at the default staleness bound.
func NewBounds() *Bounds {
	b := &Bounds{}
	for i := range b.assets {
		b.assets[i].MaxAge = DefaultMaxAge
	}
	return b
}

// Get returns the configuration for one asset.
func (b *Bounds) Get(asset uint8) AssetConfig {
	if asset >= codec.UniverseSize {
		return AssetConfig{MaxAge: DefaultMaxAge}
	}
	return b.assets[asset]
}

// Set replaces the configuration for one asset.
func (b *Bounds) Set(asset uint8, cfg AssetConfig) {
	if asset < codec.UniverseSize {
		b.assets[asset] = cfg
	}
}

// Usable reports whether a quote is acceptable for settlement: readable,
// positive, and no older than the asset's staleness bound at now.
func (b *Bounds) Usable(asset uint8, q Quote, now time.Time) bool {
	if q.Price <= 0 {
		return false
	}
	maxAge := b.Get(asset).MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return now.Sub(q.UpdatedAt) <= maxAge
}

// PriceCache is a Feed kept current by the ingestion shell from the oracle
// network's price stream. Reads happen on the core goroutine while writes
// come from the NATS consumer, hence the lock.
type PriceCache struct {
	mu     sync.RWMutex
	quotes [codec.UniverseSize]Quote
	seen   [codec.UniverseSize]bool
}

func NewPriceCache() *PriceCache {
	return &PriceCache{}
}

// Observe records a price update. Stale updates (older than the cached
// quote) are ignored; price streams tolerate gaps and reordering.
func (c *PriceCache) Observe(asset uint8, price int64, updatedAt time.Time) {
	if asset >= codec.UniverseSize {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.seen[asset] && !updatedAt.After(c.quotes[asset].UpdatedAt) {
		return
	}
	c.quotes[asset] = Quote{Price: price, UpdatedAt: updatedAt}
	c.seen[asset] = true
}

// Latest implements Feed.
func (c *PriceCache) Latest(asset uint8) (Quote, error) {
	if asset >= codec.UniverseSize {
		return Quote{}, ErrNoQuote
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.seen[asset] {
		return Quote{}, ErrNoQuote
	}
	return c.quotes[asset], nil
}
