package resolver

import (
	stdmath "math"
	"sort"
	"time"

	"github.com/DYBL777/DYBL-Crypto42/internal/codec"
	fpmath "github.com/DYBL777/DYBL-Crypto42/internal/math"
	"github.com/DYBL777/DYBL-Crypto42/internal/oracle"
)

// NoPrice marks an asset whose snapshot read failed, was stale, or reported
// a non-positive price. The week still resolves; the asset just cannot win.
const NoPrice int64 = -1

// worstScore guarantees a disqualified asset ranks below any real
// performance value.
const worstScore int64 = stdmath.MinInt64

// PriceSnapshot is the universe's start-of-week prices.
type PriceSnapshot struct {
	Week    int64
	TakenAt time.Time
	Prices  [codec.UniverseSize]int64 // NoPrice where unreadable
}

// Outcome is a week's resolved top-K subset: the winning assets in rank
// order, their bitmask encoding, and the full score vector for audit.
type Outcome struct {
	Week       int64
	ResolvedAt time.Time
	Assets     [codec.PickSize]uint8
	Mask       codec.PickMask
	Scores     [codec.UniverseSize]int64
}

// Resolver reads the oracle collaborator at week boundaries and ranks the
// universe by relative performance. Oracle failures degrade individual
// assets; they never fail a snapshot or a resolution.
type Resolver struct {
	feed   oracle.Feed
	bounds *oracle.Bounds
}

func New(feed oracle.Feed, bounds *oracle.Bounds) *Resolver {
	return &Resolver{feed: feed, bounds: bounds}
}

// Bounds exposes the live oracle configuration (mutated only through the
// engine's timelock).
func (r *Resolver) Bounds() *oracle.Bounds {
	return r.bounds
}

// Snapshot captures each asset's current price, recording NoPrice for any
// asset whose read fails or whose quote is stale or non-positive.
func (r *Resolver) Snapshot(week int64, now time.Time) PriceSnapshot {
	snap := PriceSnapshot{Week: week, TakenAt: now}
	for i := uint8(0); i < codec.UniverseSize; i++ {
		snap.Prices[i] = r.readUsable(i, now)
	}
	return snap
}

func (r *Resolver) readUsable(asset uint8, now time.Time) int64 {
	q, err := r.feed.Latest(asset)
	if err != nil || !r.bounds.Usable(asset, q, now) {
		return NoPrice
	}
	return q.Price
}

// Resolve reads end-of-week prices, scores each asset's relative
// performance against the snapshot, and selects the top PickSize assets.
// Ties break to the lower asset index; the ranking is a full deterministic
// pass independent of any iteration order. If every asset is disqualified
// the outcome degenerates to the lowest indices — the week always closes.
func (r *Resolver) Resolve(snap PriceSnapshot, now time.Time) Outcome {
	out := Outcome{Week: snap.Week, ResolvedAt: now}

	for i := uint8(0); i < codec.UniverseSize; i++ {
		start := snap.Prices[i]
		end := r.readUsable(i, now)
		if start == NoPrice || end == NoPrice {
			out.Scores[i] = worstScore
			continue
		}
		out.Scores[i] = fpmath.RelativePerformance(start, end)
	}

	order := make([]uint8, codec.UniverseSize)
	for i := range order {
		order[i] = uint8(i)
	}
	sort.Slice(order, func(a, b int) bool {
		sa, sb := out.Scores[order[a]], out.Scores[order[b]]
		if sa != sb {
			return sa > sb
		}
		return order[a] < order[b]
	})

	var mask codec.PickMask
	for k := 0; k < codec.PickSize; k++ {
		out.Assets[k] = order[k]
		mask |= 1 << order[k]
	}
	out.Mask = mask
	return out
}
