package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the settlement service.
type Metrics struct {
	// --- Core processing ---
	CoreCommandsApplied  *prometheus.CounterVec
	CoreCommandsRejected *prometheus.CounterVec
	CoreCommandDuration  *prometheus.HistogramVec
	CoreStateHashDur     prometheus.Histogram
	CoreSequence         prometheus.Gauge

	// --- Ledger buckets ---
	LedgerPot         prometheus.Gauge
	LedgerTreasury    prometheus.Gauge
	LedgerJackpot     prometheus.Gauge
	LedgerUnclaimed   prometheus.Gauge
	LedgerTotalIntake prometheus.Gauge

	// --- Settlement ---
	CurrentWeek          prometheus.Gauge
	MachinePhase         prometheus.Gauge
	WeeksSettled         prometheus.Counter
	TierWinners          *prometheus.CounterVec
	TierPaid             *prometheus.CounterVec
	JackpotHits          prometheus.Counter
	JackpotRollovers     prometheus.Counter
	EmergencyUnwinds     prometheus.Counter
	OracleDegradedReads  prometheus.Counter
	SettlementBatchDur   *prometheus.HistogramVec

	// --- Ingestion ---
	NATSPullLatency *prometheus.HistogramVec
	IngestToApply   *prometheus.HistogramVec

	// --- Idempotency ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupLRUEvictions     prometheus.Counter
	DedupTier2Duration    prometheus.Histogram

	// --- Persistence ---
	PersistOpsWritten   prometheus.Counter
	PersistBatchDur     prometheus.Histogram
	PersistBatchSize    prometheus.Histogram
	PersistErrors       *prometheus.CounterVec
	PersistRetry        prometheus.Counter
	PersistLastSequence prometheus.Gauge
	PersistBackpressure prometheus.Counter

	// --- Snapshot & replay ---
	SnapshotTaken     prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotSizeBytes prometheus.Gauge
	SnapshotLastSeq   prometheus.Gauge
	ReplayOpsTotal    prometheus.Counter
	ReplayDuration    prometheus.Gauge

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	ingestBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		CoreCommandsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "c42_core_commands_applied_total",
			Help: "Commands successfully applied by core",
		}, []string{"command_type"}),

		CoreCommandsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "c42_core_commands_rejected_total",
			Help: "Commands rejected (duplicate, precondition, validation)",
		}, []string{"command_type", "reason"}),

		CoreCommandDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "c42_core_command_apply_duration_seconds",
			Help:    "Time to apply a single command in core",
			Buckets: latencyBuckets,
		}, []string{"command_type"}),

		CoreStateHashDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "c42_core_state_hash_duration_seconds",
			Help:    "Time to compute state hash",
			Buckets: latencyBuckets,
		}),

		CoreSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "c42_core_sequence",
			Help: "Current global sequence number",
		}),

		LedgerPot: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "c42_ledger_pot",
			Help: "Current pot balance",
		}),

		LedgerTreasury: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "c42_ledger_treasury",
			Help: "Current treasury balance",
		}),

		LedgerJackpot: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "c42_ledger_jackpot",
			Help: "Current jackpot reserve",
		}),

		LedgerUnclaimed: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "c42_ledger_unclaimed",
			Help: "Credits awaiting claim",
		}),

		LedgerTotalIntake: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "c42_ledger_total_intake",
			Help: "Lifetime intake (conservation reference)",
		}),

		CurrentWeek: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "c42_current_week",
			Help: "Current settlement week",
		}),

		MachinePhase: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "c42_machine_phase",
			Help: "Settlement machine phase (0=idle 1=matching 2=distributing 3=draining)",
		}),

		WeeksSettled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "c42_weeks_settled_total",
			Help: "Weeks fully settled",
		}),

		TierWinners: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "c42_tier_winners_total",
			Help: "Winning picks per tier",
		}, []string{"tier"}),

		TierPaid: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "c42_tier_paid_total",
			Help: "Value credited per tier",
		}, []string{"tier"}),

		JackpotHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "c42_jackpot_hits_total",
			Help: "Weeks the jackpot was hit",
		}),

		JackpotRollovers: promauto.NewCounter(prometheus.CounterOpts{
			Name: "c42_jackpot_rollovers_total",
			Help: "Weeks the jackpot rolled over",
		}),

		EmergencyUnwinds: promauto.NewCounter(prometheus.CounterOpts{
			Name: "c42_emergency_unwinds_total",
			Help: "Settlements force-unwound after the stuck timeout",
		}),

		OracleDegradedReads: promauto.NewCounter(prometheus.CounterOpts{
			Name: "c42_oracle_degraded_reads_total",
			Help: "Snapshot reads degraded to sentinel (failed, stale, non-positive)",
		}),

		SettlementBatchDur: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "c42_settlement_batch_duration_seconds",
			Help:    "Duration of one matching/payout/drain batch",
			Buckets: latencyBuckets,
		}, []string{"stage"}),

		NATSPullLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "c42_nats_pull_latency_seconds",
			Help:    "NATS pull request latency",
			Buckets: ingestBuckets,
		}, []string{"subject"}),

		IngestToApply: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "c42_ingest_to_apply_seconds",
			Help:    "NATS receive to core apply complete",
			Buckets: ingestBuckets,
		}, []string{"command_type"}),

		IdempotencyDuplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "c42_idempotency_duplicates_total",
			Help: "Duplicates caught (lru/postgres)",
		}, []string{"command_type", "tier"}),

		DedupLRUSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "c42_dedup_lru_size",
			Help: "Current LRU occupancy",
		}),

		DedupLRUEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "c42_dedup_lru_evictions_total",
			Help: "LRU evictions",
		}),

		DedupTier2Duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "c42_dedup_tier2_duration_seconds",
			Help:    "Postgres dedup lookup latency",
			Buckets: latencyBuckets,
		}),

		PersistOpsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "c42_persist_ops_written_total",
			Help: "Operations written to Postgres",
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "c42_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "c42_persist_batch_size",
			Help:    "Operations per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "c42_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "c42_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "c42_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "c42_persist_backpressure_total",
			Help: "Times core blocked on persist channel",
		}),

		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "c42_snapshot_taken_total",
			Help: "Snapshots created",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "c42_snapshot_duration_seconds",
			Help:    "Snapshot creation time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		}),

		SnapshotSizeBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "c42_snapshot_size_bytes",
			Help: "Last snapshot size",
		}),

		SnapshotLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "c42_snapshot_last_sequence",
			Help: "Sequence of last snapshot",
		}),

		ReplayOpsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "c42_replay_ops_total",
			Help: "Operations replayed on startup",
		}),

		ReplayDuration: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "c42_replay_duration_seconds",
			Help: "Total replay time",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "c42_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "c42_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),

		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "c42_query_errors_total",
			Help: "Query errors",
		}, []string{"endpoint"}),
	}
}

// ObserveBuckets pushes the current ledger balances to the bucket gauges.
func (m *Metrics) ObserveBuckets(pot, treasury, jackpot, unclaimed, totalIntake int64) {
	m.LedgerPot.Set(float64(pot))
	m.LedgerTreasury.Set(float64(treasury))
	m.LedgerJackpot.Set(float64(jackpot))
	m.LedgerUnclaimed.Set(float64(unclaimed))
	m.LedgerTotalIntake.Set(float64(totalIntake))
}
