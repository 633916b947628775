package core_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/DYBL777/DYBL-Crypto42/internal/command"
	"github.com/DYBL777/DYBL-Crypto42/internal/core"
	"github.com/DYBL777/DYBL-Crypto42/internal/custody"
	"github.com/DYBL777/DYBL-Crypto42/internal/engine"
	"github.com/DYBL777/DYBL-Crypto42/internal/ledger"
	"github.com/DYBL777/DYBL-Crypto42/internal/oracle"
	"github.com/DYBL777/DYBL-Crypto42/internal/phase"
	"github.com/DYBL777/DYBL-Crypto42/internal/registry"
	"github.com/DYBL777/DYBL-Crypto42/internal/resolver"
)

var genesis = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func newTestCore(t *testing.T) (*core.Core, chan core.Output) {
	t.Helper()
	feed := oracle.NewFixtureFeed()
	feed.SetAll(1_000_000, genesis)
	return newCoreWithFeed(t, feed)
}

func newCoreWithFeed(t *testing.T, feed *oracle.FixtureFeed) (*core.Core, chan core.Output) {
	t.Helper()

	params := engine.DefaultParams()
	params.TicketPricePerWeek = 10_000

	eng := engine.New(params, engine.Deps{
		Registry: registry.New(),
		Accounts: ledger.NewAccountant(),
		Phases:   phase.NewController(phase.DefaultParams(), genesis),
		Resolver: resolver.New(feed, oracle.NewBounds()),
		Vault:    custody.NewSimVault(),
		Logger:   zerolog.Nop(),
	}, genesis)

	persistChan := make(chan core.Output, 64)
	return core.New(0, eng, persistChan, nil, nil, zerolog.Nop()), persistChan
}

func enrollCmd(weeks int64) *command.EnrollTicket {
	return &command.EnrollTicket{
		CommandID: uuid.New(),
		TicketID:  uuid.New(),
		Picks:     [][]uint8{{0, 1, 2, 3, 4, 5}},
		Weeks:     weeks,
		Payment:   weeks * 10_000,
		IssuedAt:  genesis,
	}
}

func TestApply_EmitsChainedEnvelopes(t *testing.T) {
	c, out := newTestCore(t)

	first := enrollCmd(5)
	if _, err := c.Apply(first); err != nil {
		t.Fatalf("apply: %v", err)
	}
	second := enrollCmd(5)
	if _, err := c.Apply(second); err != nil {
		t.Fatalf("apply: %v", err)
	}

	env1 := (<-out).Envelope
	env2 := (<-out).Envelope

	if env1.Sequence != 0 || env2.Sequence != 1 {
		t.Errorf("sequences: got %d, %d", env1.Sequence, env2.Sequence)
	}
	if env2.PrevHash != env1.StateHash {
		t.Error("hash chain broken between consecutive envelopes")
	}
	if env1.Type != command.TypeEnrollTicket {
		t.Errorf("type: got %v", env1.Type)
	}
	if len(env1.Payload) == 0 {
		t.Error("payload should carry the encoded command")
	}
	if c.Sequence() != 2 {
		t.Errorf("next sequence: got %d", c.Sequence())
	}
}

func TestApply_DeduplicatesByCommandID(t *testing.T) {
	c, out := newTestCore(t)

	cmd := enrollCmd(5)
	if _, err := c.Apply(cmd); err != nil {
		t.Fatalf("apply: %v", err)
	}
	<-out

	res, err := c.Apply(cmd)
	if err != nil {
		t.Fatalf("duplicate apply: %v", err)
	}
	if !res.Duplicate {
		t.Error("second apply should report duplicate")
	}
	if c.Engine().Accounts().TotalIntake() != 50_000 {
		t.Errorf("duplicate must not double-charge: intake %d", c.Engine().Accounts().TotalIntake())
	}
	select {
	case <-out:
		t.Error("duplicate must not emit an envelope")
	default:
	}
}

func TestApply_RejectionEmitsNothing(t *testing.T) {
	c, out := newTestCore(t)

	bad := enrollCmd(5)
	bad.Payment = 1 // mispriced

	if _, err := c.Apply(bad); err == nil {
		t.Fatal("mispriced enrollment should be rejected")
	}
	select {
	case <-out:
		t.Error("rejected command must not emit an envelope")
	default:
	}
	if c.Sequence() != 0 {
		t.Errorf("sequence must not advance on rejection, got %d", c.Sequence())
	}

	// The same command id can be resubmitted corrected.
	bad.Payment = 50_000
	if _, err := c.Apply(bad); err != nil {
		t.Fatalf("corrected resubmit: %v", err)
	}
}

func TestReplay_ReproducesHashChain(t *testing.T) {
	c, out := newTestCore(t)

	cmds := []*command.EnrollTicket{enrollCmd(5), enrollCmd(10), enrollCmd(2)}
	var envelopes []*command.Envelope
	for _, cmd := range cmds {
		if _, err := c.Apply(cmd); err != nil {
			t.Fatalf("apply: %v", err)
		}
		envelopes = append(envelopes, (<-out).Envelope)
	}
	liveHash := c.StateHash()

	// Cold-start a second core and replay the logged payloads.
	c2, _ := newTestCore(t)
	for _, env := range envelopes {
		cmd, err := command.Decode(env.Type, env.Payload)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if err := c2.Replay(cmd); err != nil {
			t.Fatalf("replay: %v", err)
		}
	}

	if c2.StateHash() != liveHash {
		t.Error("replayed hash chain diverged from live chain")
	}
	if c2.Sequence() != c.Sequence() {
		t.Errorf("replayed sequence: got %d, want %d", c2.Sequence(), c.Sequence())
	}
	if c2.Engine().Accounts().TotalIntake() != c.Engine().Accounts().TotalIntake() {
		t.Error("replayed ledger diverged")
	}
}

func TestReplay_SettlementIndependentOfFeedState(t *testing.T) {
	feed := oracle.NewFixtureFeed()
	feed.SetAll(1_000_000, genesis)
	c, out := newCoreWithFeed(t, feed)

	var envelopes []*command.Envelope
	apply := func(cmd command.Command) core.Result {
		t.Helper()
		res, err := c.Apply(cmd)
		if err != nil {
			t.Fatalf("apply %s: %v", cmd.Type(), err)
		}
		envelopes = append(envelopes, (<-out).Envelope)
		return res
	}

	ticket := uuid.New()
	apply(&command.EnrollTicket{
		CommandID: uuid.New(),
		TicketID:  ticket,
		Picks:     [][]uint8{{0, 1, 2, 3, 4, 5}},
		Weeks:     10,
		Payment:   100_000,
		IssuedAt:  genesis,
	})

	// Two settled weeks, the second a full match driven by live prices.
	week := genesis
	settle := func(winning bool) {
		t.Helper()
		week = week.Add(7 * 24 * time.Hour)
		feed.SetAll(1_000_000, week)
		if winning {
			for k := 0; k < 6; k++ {
				feed.SetPrice(uint8(k), 1_000_000+int64(6-k)*50_000, week)
			}
		}
		apply(&command.ResolveWeek{CommandID: uuid.New(), IssuedAt: week})
		feed.SetAll(1_000_000, week)
		for !apply(&command.AdvanceMatching{CommandID: uuid.New(), IssuedAt: week}).Done {
		}
		for !apply(&command.AdvanceDistribution{CommandID: uuid.New(), IssuedAt: week}).Done {
		}
	}
	settle(false)
	settle(true)

	liveHash := c.StateHash()
	liveCredit := c.Engine().Accounts().CreditOf(ticket)
	if liveCredit == 0 {
		t.Fatal("live run should credit the jackpot winner")
	}

	// Replay against a feed holding no prices at all: every oracle-derived
	// value must come from the logged payloads, never from the feed.
	c2, _ := newCoreWithFeed(t, oracle.NewFixtureFeed())
	for _, env := range envelopes {
		cmd, err := command.Decode(env.Type, env.Payload)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if err := c2.Replay(cmd); err != nil {
			t.Fatalf("replay: %v", err)
		}
	}

	if c2.StateHash() != liveHash {
		t.Error("replayed hash chain diverged from live chain")
	}
	if got := c2.Engine().Accounts().CreditOf(ticket); got != liveCredit {
		t.Errorf("replayed credit: got %d, want %d", got, liveCredit)
	}
	if c2.Engine().Week() != c.Engine().Week() {
		t.Errorf("replayed week: got %d, want %d", c2.Engine().Week(), c.Engine().Week())
	}
}

func TestApply_CrankReportsDone(t *testing.T) {
	c, out := newTestCore(t)

	if _, err := c.Apply(enrollCmd(5)); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	<-out

	after := genesis.Add(7*24*time.Hour + time.Minute)
	if _, err := c.Apply(&command.ResolveWeek{CommandID: uuid.New(), IssuedAt: after}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	<-out

	res, err := c.Apply(&command.AdvanceMatching{CommandID: uuid.New(), IssuedAt: after})
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if !res.Done {
		t.Error("single-ticket matching pass should finish in one batch")
	}
}
