package oracle

import (
	"time"

	"github.com/DYBL777/DYBL-Crypto42/internal/codec"
)

// FixtureFeed is an in-memory Feed for tests and local runs. Individual
// assets can be forced to fail or report arbitrary update times.
type FixtureFeed struct {
	prices  [codec.UniverseSize]int64
	updated [codec.UniverseSize]time.Time
	failing [codec.UniverseSize]bool
}

func NewFixtureFeed() *FixtureFeed {
	return &FixtureFeed{}
}

// SetPrice sets an asset's price with the given update time.
func (f *FixtureFeed) SetPrice(asset uint8, price int64, updatedAt time.Time) {
	if asset >= codec.UniverseSize {
		return
	}
	f.prices[asset] = price
	f.updated[asset] = updatedAt
	f.failing[asset] = false
}

// SetAll sets every asset to the same price and update time.
func (f *FixtureFeed) SetAll(price int64, updatedAt time.Time) {
	for i := uint8(0); i < codec.UniverseSize; i++ {
		f.SetPrice(i, price, updatedAt)
	}
}

// Fail forces reads of an asset to return ErrNoQuote.
func (f *FixtureFeed) Fail(asset uint8) {
	if asset < codec.UniverseSize {
		f.failing[asset] = true
	}
}

// FailAll forces every read to fail.
func (f *FixtureFeed) FailAll() {
	for i := range f.failing {
		f.failing[i] = true
	}
}

// Latest implements Feed.
func (f *FixtureFeed) Latest(asset uint8) (Quote, error) {
	if asset >= codec.UniverseSize || f.failing[asset] {
		return Quote{}, ErrNoQuote
	}
	return Quote{Price: f.prices[asset], UpdatedAt: f.updated[asset]}, nil
}
