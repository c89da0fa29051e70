package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for GoldLedger.
type Metrics struct {
	// --- Core processing ---
	CommandsApplied  *prometheus.CounterVec
	CommandsRejected *prometheus.CounterVec
	CommandDuration  *prometheus.HistogramVec
	EventsEmitted    *prometheus.CounterVec
	MovesGenerated   *prometheus.CounterVec
	CoreStateHashDur prometheus.Histogram
	CoreSequence     prometheus.Gauge

	// --- Latency ---
	IngestToApply       *prometheus.HistogramVec
	ApplyToPersist      prometheus.Histogram
	PersistBatchDur     prometheus.Histogram
	ProjectionUpdateDur *prometheus.HistogramVec

	// --- Channels & backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	ProjectionDrops     *prometheus.CounterVec
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Idempotency & ordering ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupLRUEvictions     prometheus.Counter
	DedupTier2Duration    prometheus.Histogram
	PriceSequenceGap      *prometheus.CounterVec
	PriceOutOfOrder       *prometheus.CounterVec

	// --- Oracle ---
	OracleRefreshes *prometheus.CounterVec

	// --- Lending ---
	LoansOpened     prometheus.Counter
	LoansRepaid     *prometheus.CounterVec
	LoansLiquidated prometheus.Counter

	// --- Auctions ---
	AuctionsStarted     *prometheus.CounterVec
	AuctionsActive      prometheus.Gauge
	AuctionBids         prometheus.Counter
	AuctionsSettled     *prometheus.CounterVec
	AuctionsCancelled   prometheus.Counter
	UncoveredShortfalls prometheus.Counter

	// --- Insurance fund ---
	InsuranceFundBalance *prometheus.GaugeVec
	ClaimsPaid           *prometheus.CounterVec

	// --- Persistence ---
	PersistEventsWritten prometheus.Counter
	PersistMovesWritten  prometheus.Counter
	PersistBatchSize     prometheus.Histogram
	PersistErrors        *prometheus.CounterVec
	PersistRetry         prometheus.Counter
	PersistLastSequence  prometheus.Gauge

	// --- Snapshot ---
	SnapshotTaken     prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotSizeBytes prometheus.Gauge
	SnapshotLastSeq   prometheus.Gauge

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the default registerer.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers with reg. Tests pass a fresh prometheus.Registry.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	ingestBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		// Core processing
		CommandsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goldledger_commands_applied_total",
			Help: "Commands successfully applied by the engine",
		}, []string{"command_type"}),

		CommandsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goldledger_commands_rejected_total",
			Help: "Commands rejected by the engine, by error kind",
		}, []string{"command_type", "kind"}),

		CommandDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "goldledger_command_apply_duration_seconds",
			Help:    "Time to apply a single command",
			Buckets: latencyBuckets,
		}, []string{"command_type"}),

		EventsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goldledger_events_emitted_total",
			Help: "Events emitted by the engine",
		}, []string{"event_type"}),

		MovesGenerated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goldledger_moves_generated_total",
			Help: "Ledger moves executed",
		}, []string{"journal_type"}),

		CoreStateHashDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "goldledger_state_hash_duration_seconds",
			Help:    "Time to extend the hash chain",
			Buckets: latencyBuckets,
		}),

		CoreSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "goldledger_sequence",
			Help: "Current global sequence number",
		}),

		// Latency
		IngestToApply: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "goldledger_ingest_to_apply_seconds",
			Help:    "Command receive to engine apply complete",
			Buckets: ingestBuckets,
		}, []string{"command_type"}),

		ApplyToPersist: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "goldledger_apply_to_persist_seconds",
			Help:    "Engine emit to Postgres commit",
			Buckets: latencyBuckets,
		}),

		PersistBatchDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "goldledger_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		ProjectionUpdateDur: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "goldledger_projection_update_duration_seconds",
			Help:    "Projection table update duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}, []string{"projection"}),

		// Channels
		ChannelSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "goldledger_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "goldledger_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "goldledger_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		ProjectionDrops: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goldledger_projection_drops_total",
			Help: "Envelopes dropped due to a full projection channel",
		}, []string{"projection"}),

		PublishDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "goldledger_publish_drops_total",
			Help: "Envelopes dropped due to a full publish channel",
		}),

		PersistBackpressure: f.NewCounter(prometheus.CounterOpts{
			Name: "goldledger_persist_backpressure_total",
			Help: "Times the processor blocked on the persist channel",
		}),

		// Idempotency & ordering
		IdempotencyDuplicates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goldledger_idempotency_duplicates_total",
			Help: "Duplicate commands caught (lru/postgres)",
		}, []string{"command_type", "tier"}),

		DedupLRUSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "goldledger_dedup_lru_size",
			Help: "Current LRU occupancy",
		}),

		DedupLRUEvictions: f.NewCounter(prometheus.CounterOpts{
			Name: "goldledger_dedup_lru_evictions_total",
			Help: "LRU evictions",
		}),

		DedupTier2Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "goldledger_dedup_tier2_duration_seconds",
			Help:    "Postgres dedup lookup latency",
			Buckets: latencyBuckets,
		}),

		PriceSequenceGap: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goldledger_price_sequence_gap_total",
			Help: "Gaps in pushed price sequences",
		}, []string{"feed"}),

		PriceOutOfOrder: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goldledger_price_out_of_order_total",
			Help: "Pushed prices dropped as stale",
		}, []string{"feed"}),

		// Oracle
		OracleRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goldledger_oracle_refreshes_total",
			Help: "Feed refreshes by outcome (accepted/rejected)",
		}, []string{"feed", "outcome"}),

		// Lending
		LoansOpened: f.NewCounter(prometheus.CounterOpts{
			Name: "goldledger_loans_opened_total",
			Help: "Loans opened",
		}),

		LoansRepaid: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goldledger_loans_repaid_total",
			Help: "Repayments by outcome (partial/closed)",
		}, []string{"outcome"}),

		LoansLiquidated: f.NewCounter(prometheus.CounterOpts{
			Name: "goldledger_loans_liquidated_total",
			Help: "Loans liquidated",
		}),

		// Auctions
		AuctionsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goldledger_auctions_started_total",
			Help: "Auctions started per collateral asset",
		}, []string{"asset"}),

		AuctionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "goldledger_auctions_active",
			Help: "Auctions neither settled nor cancelled",
		}),

		AuctionBids: f.NewCounter(prometheus.CounterOpts{
			Name: "goldledger_auction_bids_total",
			Help: "Accepted bids",
		}),

		AuctionsSettled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goldledger_auctions_settled_total",
			Help: "Settlements by outcome (surplus/exact/shortfall)",
		}, []string{"outcome"}),

		AuctionsCancelled: f.NewCounter(prometheus.CounterOpts{
			Name: "goldledger_auctions_cancelled_total",
			Help: "Auctions cancelled",
		}),

		UncoveredShortfalls: f.NewCounter(prometheus.CounterOpts{
			Name: "goldledger_uncovered_shortfalls_total",
			Help: "Settlements that left part of the debt uncovered",
		}),

		// Insurance fund
		InsuranceFundBalance: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "goldledger_insurance_fund_balance",
			Help: "Insurance fund balance in whole units",
		}, []string{"asset"}),

		ClaimsPaid: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goldledger_claims_paid_total",
			Help: "Claims paid by the insurance fund",
		}, []string{"asset"}),

		// Persistence
		PersistEventsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "goldledger_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistMovesWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "goldledger_persist_moves_written_total",
			Help: "Ledger moves written to Postgres",
		}),

		PersistBatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "goldledger_persist_batch_size",
			Help:    "Envelopes per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goldledger_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: f.NewCounter(prometheus.CounterOpts{
			Name: "goldledger_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "goldledger_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		// Snapshot
		SnapshotTaken: f.NewCounter(prometheus.CounterOpts{
			Name: "goldledger_snapshot_taken_total",
			Help: "Snapshots created",
		}),

		SnapshotDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "goldledger_snapshot_duration_seconds",
			Help:    "Snapshot creation time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		}),

		SnapshotSizeBytes: f.NewGauge(prometheus.GaugeOpts{
			Name: "goldledger_snapshot_size_bytes",
			Help: "Last snapshot size",
		}),

		SnapshotLastSeq: f.NewGauge(prometheus.GaugeOpts{
			Name: "goldledger_snapshot_last_sequence",
			Help: "Sequence of last snapshot",
		}),

		// Query API
		QueryRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goldledger_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "goldledger_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),

		QueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goldledger_query_errors_total",
			Help: "Query errors",
		}, []string{"endpoint", "code"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
