package resolver_test

import (
	"testing"
	"time"

	"github.com/DYBL777/DYBL-Crypto42/internal/codec"
	"github.com/DYBL777/DYBL-Crypto42/internal/oracle"
	"github.com/DYBL777/DYBL-Crypto42/internal/resolver"
)

var (
	weekStart = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	weekEnd   = weekStart.Add(7 * 24 * time.Hour)
)

func newResolver(feed oracle.Feed) *resolver.Resolver {
	return resolver.New(feed, oracle.NewBounds())
}

// freshFeed returns a fixture where every asset starts at base price and the
// quotes are always fresh.
func freshFeed(base int64) *oracle.FixtureFeed {
	f := oracle.NewFixtureFeed()
	f.SetAll(base, weekStart)
	return f
}

func TestResolve_TopSixByPerformance(t *testing.T) {
	f := freshFeed(1_000_000)
	r := newResolver(f)
	snap := r.Snapshot(1, weekStart)

	// Assets 10..15 gain progressively more; everyone else is flat.
	f.SetAll(1_000_000, weekEnd)
	for i := uint8(10); i <= 15; i++ {
		f.SetPrice(i, 1_000_000+int64(i)*10_000, weekEnd)
	}

	out := r.Resolve(snap, weekEnd)

	want := []uint8{10, 11, 12, 13, 14, 15}
	for _, idx := range want {
		if !codec.Contains(out.Mask, idx) {
			t.Errorf("asset %d should be in the outcome", idx)
		}
	}
	// Rank order: highest gain first.
	if out.Assets[0] != 15 || out.Assets[5] != 10 {
		t.Errorf("rank order wrong: %v", out.Assets)
	}
	if !codec.Valid(out.Mask) {
		t.Error("outcome mask must be a valid pick")
	}
}

func TestResolve_TiesBreakToLowerIndex(t *testing.T) {
	f := freshFeed(1_000_000)
	r := newResolver(f)
	snap := r.Snapshot(1, weekStart)

	// Every asset moves identically: all scores tie, so the outcome must be
	// the six lowest indices.
	f.SetAll(1_100_000, weekEnd)

	out := r.Resolve(snap, weekEnd)
	for k := 0; k < codec.PickSize; k++ {
		if out.Assets[k] != uint8(k) {
			t.Fatalf("tie break: got %v, want [0 1 2 3 4 5]", out.Assets)
		}
	}
}

func TestResolve_DeterministicAcrossRuns(t *testing.T) {
	f := freshFeed(1_000_000)
	r := newResolver(f)
	snap := r.Snapshot(1, weekStart)

	for i := uint8(0); i < codec.UniverseSize; i++ {
		f.SetPrice(i, 1_000_000+int64((i*37)%41)*1_000, weekEnd)
	}

	first := r.Resolve(snap, weekEnd)
	for run := 0; run < 10; run++ {
		again := r.Resolve(snap, weekEnd)
		if again.Mask != first.Mask || again.Assets != first.Assets {
			t.Fatalf("run %d: outcome diverged", run)
		}
	}
}

func TestSnapshot_DegradesFailedAndStaleReads(t *testing.T) {
	f := freshFeed(1_000_000)
	f.Fail(3)
	f.SetPrice(4, 1_000_000, weekStart.Add(-2*time.Hour)) // stale
	f.SetPrice(5, 0, weekStart)                           // non-positive

	r := newResolver(f)
	snap := r.Snapshot(1, weekStart)

	for _, asset := range []uint8{3, 4, 5} {
		if snap.Prices[asset] != resolver.NoPrice {
			t.Errorf("asset %d: got %d, want NoPrice", asset, snap.Prices[asset])
		}
	}
	if snap.Prices[6] != 1_000_000 {
		t.Errorf("asset 6 should have a real price, got %d", snap.Prices[6])
	}
}

func TestResolve_SentinelStartDisqualifies(t *testing.T) {
	f := freshFeed(1_000_000)
	f.Fail(20)
	r := newResolver(f)
	snap := r.Snapshot(1, weekStart)

	// Asset 20 recovers and posts a huge gain — but its start is sentinel,
	// so it must still be unrankable.
	f.SetAll(1_000_000, weekEnd)
	f.SetPrice(20, 9_000_000, weekEnd)
	f.SetPrice(7, 1_050_000, weekEnd)

	out := r.Resolve(snap, weekEnd)
	if codec.Contains(out.Mask, 20) {
		t.Error("asset with sentinel start price must not win")
	}
	if !codec.Contains(out.Mask, 7) {
		t.Error("asset 7 should win")
	}
}

func TestResolve_EndReadFailureDisqualifies(t *testing.T) {
	f := freshFeed(1_000_000)
	r := newResolver(f)
	snap := r.Snapshot(1, weekStart)

	f.SetAll(1_000_000, weekEnd)
	f.SetPrice(8, 2_000_000, weekEnd)
	f.Fail(8)

	out := r.Resolve(snap, weekEnd)
	if codec.Contains(out.Mask, 8) {
		t.Error("asset with failed end read must not win")
	}
}

func TestResolve_AllDisqualifiedFallsBackToLowestIndices(t *testing.T) {
	// Spec scenario: all 42 oracle reads fail at resolution. The week still
	// resolves to {0,1,2,3,4,5}.
	f := freshFeed(1_000_000)
	r := newResolver(f)
	snap := r.Snapshot(1, weekStart)

	f.FailAll()
	out := r.Resolve(snap, weekEnd)

	for k := 0; k < codec.PickSize; k++ {
		if out.Assets[k] != uint8(k) {
			t.Fatalf("fallback outcome: got %v, want [0 1 2 3 4 5]", out.Assets)
		}
	}
}

func TestResolve_NegativePerformanceStillRanks(t *testing.T) {
	f := freshFeed(1_000_000)
	r := newResolver(f)
	snap := r.Snapshot(1, weekStart)

	// Everyone loses; the least-bad six win.
	for i := uint8(0); i < codec.UniverseSize; i++ {
		f.SetPrice(i, 900_000-int64(i)*1_000, weekEnd)
	}

	out := r.Resolve(snap, weekEnd)
	for k := 0; k < codec.PickSize; k++ {
		if out.Assets[k] != uint8(k) {
			t.Fatalf("least-bad ranking: got %v", out.Assets)
		}
	}
	if out.Scores[0] >= 0 {
		t.Error("scores should be negative in a down week")
	}
}
