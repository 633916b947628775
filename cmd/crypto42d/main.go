package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/DYBL777/DYBL-Crypto42/internal/command"
	"github.com/DYBL777/DYBL-Crypto42/internal/config"
	"github.com/DYBL777/DYBL-Crypto42/internal/core"
	"github.com/DYBL777/DYBL-Crypto42/internal/custody"
	"github.com/DYBL777/DYBL-Crypto42/internal/engine"
	"github.com/DYBL777/DYBL-Crypto42/internal/ingestion"
	"github.com/DYBL777/DYBL-Crypto42/internal/ledger"
	"github.com/DYBL777/DYBL-Crypto42/internal/observability"
	"github.com/DYBL777/DYBL-Crypto42/internal/oracle"
	"github.com/DYBL777/DYBL-Crypto42/internal/persistence"
	"github.com/DYBL777/DYBL-Crypto42/internal/phase"
	"github.com/DYBL777/DYBL-Crypto42/internal/query"
	"github.com/DYBL777/DYBL-Crypto42/internal/registry"
	"github.com/DYBL777/DYBL-Crypto42/internal/resolver"
	"github.com/DYBL777/DYBL-Crypto42/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (optional)")
	flag.Parse()

	log := observability.NewLogger("crypto42d")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	log.Info().Time("genesis", cfg.Genesis).Msg("crypto42d starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres open")
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("postgres ping")
	}
	log.Info().Msg("postgres connected")

	migrator := persistence.NewMigrator(db, cfg.MigrationsDir)
	if err := migrator.Up(ctx); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	snapMgr := persistence.NewSnapshotManager(db)

	// --- Observability ---
	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker()

	// --- Settlement aggregate ---
	// The price cache is kept current by the NATS price consumer; the
	// resolver samples it at week boundaries. SimVault stands in for the
	// external custody integration in single-node deployments.
	priceCache := oracle.NewPriceCache()
	vault := custody.NewSimVault()

	eng := engine.New(engine.DefaultParams(), engine.Deps{
		Registry: registry.New(),
		Accounts: ledger.NewAccountant(),
		Phases:   phase.NewController(phase.DefaultParams(), cfg.Genesis),
		Resolver: resolver.New(priceCache, oracle.NewBounds()),
		Vault:    vault,
		Logger:   observability.NewLogger("engine"),
	}, cfg.Genesis)

	// --- Core ---
	persistChan := make(chan core.Output, cfg.Persist.ChanSize)
	dbChecker := persistence.NewPostgresIdempotencyChecker(db)
	c := core.New(0, eng, persistChan, dbChecker, metrics, observability.NewLogger("core"))

	// --- Recovery: snapshot restore + log replay ---
	snap, err := snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("load snapshot failed, replaying full log")
	}

	startSequence := int64(0)
	if snap != nil {
		if err := eng.Restore(snap.Engine); err != nil {
			log.Fatal().Err(err).Msg("engine restore")
		}
		// Re-seed the dev vault to the restored custody total. A real
		// custody integration holds this state externally.
		seedVault(vault, snap.Engine.Buckets)

		var tip [32]byte
		copy(tip[:], snap.StateHash)
		c.RestoreCheckpoint(snap.Sequence, tip)
		startSequence = snap.Sequence
		log.Info().Int64("sequence", snap.Sequence).Msg("snapshot restored")
	} else {
		log.Info().Msg("no snapshot, cold start from sequence 0")
	}

	keys, err := snapMgr.RecentIdempotencyKeys(ctx, cfg.Snapshot.WarmKeys)
	if err != nil {
		log.Warn().Err(err).Msg("warm idempotency keys")
	} else if len(keys) > 0 {
		c.WarmLRU(keys)
		log.Info().Int("keys", len(keys)).Msg("idempotency LRU warmed")
	}

	replayStart := time.Now()
	replayed, lastHash, err := replayFromLog(ctx, snapMgr, c, startSequence)
	if err != nil {
		log.Fatal().Err(err).Msg("log replay")
	}
	metrics.ReplayDuration.Set(time.Since(replayStart).Seconds())

	switch {
	case replayed > 0:
		if got := c.StateHash(); !equalHash(got, lastHash) {
			log.Fatal().
				Hex("expected", lastHash).
				Hex("got", got[:]).
				Msg("state hash mismatch after replay")
		}
		log.Info().Int64("operations", replayed).Int64("sequence", c.Sequence()).Msg("log replayed, hash chain verified")
	case snap != nil:
		got := c.StateHash()
		if !equalHash(got, snap.StateHash) {
			log.Fatal().
				Hex("expected", snap.StateHash).
				Hex("got", got[:]).
				Msg("state hash mismatch after snapshot restore")
		}
		log.Info().Msg("state hash verified against snapshot")
	}

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATS.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("nats connect")
	}
	defer nc.Close()

	if err := ingestion.EnsureStreams(ctx, js); err != nil {
		log.Fatal().Err(err).Msg("ensure streams")
	}
	if err := ingestion.EnsureOutboundStream(ctx, js); err != nil {
		log.Fatal().Err(err).Msg("ensure outbound stream")
	}

	rawChan := make(chan ingestion.RawCommand, 4096)
	subscriber := ingestion.NewNATSSubscriber(js, rawChan)
	if err := subscriber.Subscribe(ctx, ingestion.DefaultSubjects()); err != nil {
		log.Fatal().Err(err).Msg("nats subscribe")
	}

	priceSub := ingestion.NewPriceSubscriber(js, priceCache)
	if err := priceSub.Subscribe(ctx); err != nil {
		log.Fatal().Err(err).Msg("price subscribe")
	}

	// --- Channels and goroutines ---
	errChan := make(chan error, 8)

	workerChan := make(chan core.Output, cfg.Persist.ChanSize)
	publishChan := make(chan ingestion.PublishableOp, 4096)
	go teeOutputs(ctx, persistChan, workerChan, publishChan)

	worker := persistence.NewPersistenceWorker(db, workerChan, cfg.Persist.BatchSize, cfg.Persist.FlushTimeout, metrics)
	go func() { errChan <- worker.Run(ctx) }()

	publisher := ingestion.NewOutboundPublisher(js, publishChan)
	go func() { errChan <- publisher.Run(ctx) }()

	typedChan := make(chan command.Command, 4096)
	go runParseLoop(ctx, rawChan, typedChan, log)

	submitChan := make(chan submitRequest, 64)
	statusChan := make(chan chan query.StatusResponse, 64)
	snapReqChan := make(chan snapshotRequest)
	coreDone := make(chan struct{})
	go func() {
		defer close(coreDone)
		runCoreLoop(ctx, c, typedChan, submitChan, statusChan, snapReqChan, log)
	}()

	go runPeriodicSnapshots(ctx, clockwork.NewRealClock(), snapReqChan, snapMgr, cfg.Snapshot.Interval, cfg.Snapshot.WarmKeys, metrics, log)

	// --- HTTP ---
	submit := func(ctx context.Context, cmd command.Command) (core.Result, error) {
		req := submitRequest{cmd: cmd, reply: make(chan submitReply, 1)}
		select {
		case submitChan <- req:
		case <-ctx.Done():
			return core.Result{}, ctx.Err()
		}
		select {
		case rep := <-req.reply:
			return rep.res, rep.err
		case <-ctx.Done():
			return core.Result{}, ctx.Err()
		}
	}
	status := func(ctx context.Context) (query.StatusResponse, error) {
		reply := make(chan query.StatusResponse, 1)
		select {
		case statusChan <- reply:
		case <-ctx.Done():
			return query.StatusResponse{}, ctx.Err()
		}
		select {
		case st := <-reply:
			return st, nil
		case <-ctx.Done():
			return query.StatusResponse{}, ctx.Err()
		}
	}

	httpServer := server.NewHTTPServer(
		cfg.HTTP.Addr,
		submit,
		status,
		query.NewQueryService(db),
		health,
		metrics,
		observability.NewLogger("http"),
	)
	go func() { errChan <- httpServer.Run(ctx) }()

	health.SetReady(true)
	log.Info().
		Int64("sequence", c.Sequence()).
		Str("http", cfg.HTTP.Addr).
		Msg("crypto42d ready")

	// --- Wait for shutdown ---
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("goroutine failed, shutting down")
		}
	}

	cancel()
	subscriber.Stop()
	priceSub.Stop()
	<-coreDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	close(workerChan)
	close(publishChan)

	// The core loop has exited, so touching it from here is safe.
	if err := takeSnapshot(shutdownCtx, buildSnapshot(c), snapMgr, cfg.Snapshot.WarmKeys, metrics); err != nil {
		log.Warn().Err(err).Msg("final snapshot skipped")
	} else {
		log.Info().Msg("final snapshot saved")
	}

	log.Info().Msg("crypto42d shutdown complete")
}

// --- core goroutine ---

type submitRequest struct {
	cmd   command.Command
	reply chan submitReply
}

type submitReply struct {
	res core.Result
	err error
}

type snapshotRequest struct {
	reply chan *persistence.SnapshotData
}

// runCoreLoop is the single goroutine that owns the engine. Every command,
// status read, and snapshot capture is serialized through here.
func runCoreLoop(
	ctx context.Context,
	c *core.Core,
	typedChan <-chan command.Command,
	submitChan <-chan submitRequest,
	statusChan <-chan chan query.StatusResponse,
	snapReqChan <-chan snapshotRequest,
	log zerolog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return

		case cmd, ok := <-typedChan:
			if !ok {
				return
			}
			// NATS commands are already acked; rejections are logged,
			// not retried.
			if _, err := c.Apply(cmd); err != nil {
				log.Warn().
					Str("type", cmd.Type().String()).
					Str("key", cmd.IdempotencyKey()).
					Err(err).
					Msg("command rejected")
			}

		case req := <-submitChan:
			res, err := c.Apply(req.cmd)
			req.reply <- submitReply{res: res, err: err}

		case reply := <-statusChan:
			reply <- liveStatus(c)

		case req := <-snapReqChan:
			req.reply <- buildSnapshot(c)
		}
	}
}

func liveStatus(c *core.Core) query.StatusResponse {
	eng := c.Engine()
	buckets := eng.Accounts().Snapshot()
	return query.StatusResponse{
		Week:          eng.Week(),
		Machine:       eng.Machine().String(),
		EconomicPhase: eng.EconomicPhase(time.Now()).String(),
		WeekOpenedAt:  eng.WeekOpenedAt(),
		LastSettledAt: eng.LastSettledAt(),
		ActiveTickets: eng.Registry().Len(),
		Founders:      eng.Phases().FounderCount(),
		Sequence:      c.Sequence(),
		Pot:           buckets.Pot,
		Treasury:      buckets.Treasury,
		Jackpot:       buckets.Jackpot,
		Unclaimed:     buckets.Unclaimed,
		TotalIntake:   buckets.TotalIntake,
	}
}

// buildSnapshot captures the aggregate if it is at an Idle boundary.
// Returns nil when a settlement is in flight; the scheduler retries later.
func buildSnapshot(c *core.Core) *persistence.SnapshotData {
	engSnap, err := c.Engine().Snapshot()
	if err != nil {
		return nil
	}
	tip := c.StateHash()
	return &persistence.SnapshotData{
		Sequence:  c.Sequence(),
		StateHash: tip[:],
		Engine:    engSnap,
		CreatedAt: time.Now(),
	}
}

// --- ingestion ---

// runParseLoop validates raw NATS messages and forwards typed commands to
// the core. Messages are acked after the channel send, not after core
// processing: backpressure propagates through the blocking send, and
// malformed messages are acked to stop redelivery.
func runParseLoop(ctx context.Context, rawChan <-chan ingestion.RawCommand, typedChan chan<- command.Command, log zerolog.Logger) {
	subjectToType := make(map[string]string)
	for _, sc := range ingestion.DefaultSubjects() {
		subjectToType[strings.TrimSuffix(sc.Subject, ".>")] = sc.CommandType
	}

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-rawChan:
			if !ok {
				close(typedChan)
				return
			}

			commandType := resolveCommandType(raw.Subject, subjectToType)
			if commandType == "" {
				log.Warn().Str("subject", raw.Subject).Msg("unknown subject")
				raw.AckFunc()
				continue
			}

			cmd, err := ingestion.ParseRawCommand(raw, commandType)
			if err != nil {
				log.Warn().Str("subject", raw.Subject).Err(err).Msg("parse failed")
				raw.AckFunc()
				continue
			}

			select {
			case typedChan <- cmd:
				raw.AckFunc()
			case <-ctx.Done():
				raw.NakFunc()
				return
			}
		}
	}
}

// resolveCommandType matches a subject against the configured prefixes,
// longest match wins.
func resolveCommandType(subject string, prefixMap map[string]string) string {
	best, bestType := "", ""
	for prefix, cmdType := range prefixMap {
		if strings.HasPrefix(subject, prefix) && len(prefix) > len(best) {
			best, bestType = prefix, cmdType
		}
	}
	return bestType
}

// teeOutputs fans applied operations out to the persistence worker and the
// outbound publisher. The worker send blocks (the durable log must keep
// up); the publish send drops when full, downstream consumers can read the
// operation log instead.
func teeOutputs(ctx context.Context, in <-chan core.Output, workerOut chan<- core.Output, publishOut chan<- ingestion.PublishableOp) {
	for {
		select {
		case <-ctx.Done():
			return
		case out, ok := <-in:
			if !ok {
				return
			}
			workerOut <- out

			env := out.Envelope
			select {
			case publishOut <- ingestion.PublishableOp{
				Sequence:       env.Sequence,
				CommandType:    env.Type.String(),
				IdempotencyKey: env.IdempotencyKey,
				Week:           out.Week,
				Payload:        env.Payload,
				StateHash:      env.StateHash[:],
				Timestamp:      env.Timestamp,
			}:
			default:
			}
		}
	}
}

// --- recovery ---

// replayFromLog re-dispatches logged operations in batches and returns the
// count replayed and the last stored state hash for verification.
func replayFromLog(ctx context.Context, snapMgr *persistence.SnapshotManager, c *core.Core, fromSequence int64) (int64, []byte, error) {
	const batchSize = 1000
	var total int64
	var lastHash []byte

	for {
		ops, err := snapMgr.LoadOperationsFrom(ctx, fromSequence, batchSize)
		if err != nil {
			return total, lastHash, fmt.Errorf("load operations from seq %d: %w", fromSequence, err)
		}
		if len(ops) == 0 {
			return total, lastHash, nil
		}

		for _, op := range ops {
			t, ok := command.TypeFromString(op.CommandType)
			if !ok {
				return total, lastHash, fmt.Errorf("unknown command type %q at seq %d", op.CommandType, op.Sequence)
			}
			cmd, err := command.Decode(t, op.Payload)
			if err != nil {
				return total, lastHash, fmt.Errorf("decode seq %d: %w", op.Sequence, err)
			}
			if err := c.Replay(cmd); err != nil {
				return total, lastHash, err
			}
			lastHash = op.StateHash
			total++
		}

		fromSequence = ops[len(ops)-1].Sequence + 1
	}
}

// seedVault aligns the in-memory dev vault with the restored buckets: what
// custody holds is everything intaken that has not yet been withdrawn.
func seedVault(vault custody.Vault, b ledger.BucketSnapshot) {
	held := b.Pot + b.Treasury + b.Jackpot + b.Unclaimed
	for _, p := range b.TierPending {
		held += p
	}
	if held > 0 {
		vault.Deposit(held)
	}
}

func equalHash(got [32]byte, want []byte) bool {
	if len(want) != len(got) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// --- snapshots ---

// runPeriodicSnapshots asks the core loop for a snapshot once enough
// operations have accumulated. The engine only snapshots at Idle, so a
// request during settlement simply yields nothing until the next tick.
func runPeriodicSnapshots(
	ctx context.Context,
	clock clockwork.Clock,
	snapReqChan chan<- snapshotRequest,
	snapMgr *persistence.SnapshotManager,
	interval int64,
	warmKeys int,
	metrics *observability.Metrics,
	log zerolog.Logger,
) {
	lastSequence := int64(-1)
	ticker := clock.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			req := snapshotRequest{reply: make(chan *persistence.SnapshotData, 1)}
			select {
			case snapReqChan <- req:
			case <-ctx.Done():
				return
			}

			var snap *persistence.SnapshotData
			select {
			case snap = <-req.reply:
			case <-ctx.Done():
				return
			}

			if snap == nil || snap.Sequence-lastSequence < interval {
				continue
			}
			if err := takeSnapshot(ctx, snap, snapMgr, warmKeys, metrics); err != nil {
				log.Warn().Err(err).Msg("periodic snapshot failed")
				continue
			}
			lastSequence = snap.Sequence
			log.Info().Int64("sequence", snap.Sequence).Msg("periodic snapshot saved")
		}
	}
}

// takeSnapshot persists captured state along with recent dedup keys for
// LRU warming on the next boot.
func takeSnapshot(ctx context.Context, snap *persistence.SnapshotData, snapMgr *persistence.SnapshotManager, warmKeys int, metrics *observability.Metrics) error {
	if snap == nil {
		return errors.New("settlement in flight, no snapshot boundary")
	}
	start := time.Now()

	keys, err := snapMgr.RecentIdempotencyKeys(ctx, warmKeys)
	if err == nil {
		snap.IdempotencyKeys = keys
	}

	if err := snapMgr.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	// Created from live state, so verified immediately.
	if err := snapMgr.MarkVerified(ctx, snap.Sequence); err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}

	if metrics != nil {
		metrics.SnapshotTaken.Inc()
		metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		metrics.SnapshotLastSeq.Set(float64(snap.Sequence))
	}
	return nil
}
