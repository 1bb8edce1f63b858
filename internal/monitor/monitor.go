// ==================================
// File: internal/monitor/monitor.go
// ==================================
package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/solwatch/solwatch/internal/config"
	"github.com/solwatch/solwatch/internal/correlator"
	"github.com/solwatch/solwatch/internal/decoder"
	"github.com/solwatch/solwatch/internal/emitter"
	"github.com/solwatch/solwatch/internal/features"
	"github.com/solwatch/solwatch/internal/learner"
	"github.com/solwatch/solwatch/internal/risk"
	"github.com/solwatch/solwatch/internal/stream"
	"github.com/solwatch/solwatch/internal/telemetry"
	"github.com/solwatch/solwatch/internal/tracker"
	"github.com/solwatch/solwatch/internal/types"
)

const sweepInterval = time.Minute

// Monitor owns every component of the pipeline and all process-wide
// state: stream → decoder → tracker → correlator → emitter, with the
// risk scorer and outcome learner fed from each discovery.
type Monitor struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *telemetry.Metrics

	decoder    *decoder.Decoder
	tracker    *tracker.Tracker
	correlator *correlator.Correlator
	pipeline   *emitter.Pipeline
	scorer     *risk.Scorer
	learner    *learner.Learner
	stream     *stream.Manager

	programDEX map[solana.PublicKey]types.DEXKind

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New assembles the full pipeline from configuration. Nothing runs
// until Start.
func New(cfg *config.Config, reg prometheus.Registerer, logger *zap.Logger) (*Monitor, error) {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		cfg:        cfg,
		logger:     logger.Named("monitor"),
		metrics:    telemetry.New(reg),
		programDEX: make(map[solana.PublicKey]types.DEXKind),
		ctx:        ctx,
		cancel:     cancel,
	}

	m.decoder = decoder.New(logger)
	m.scorer = risk.NewScorer(cfg.WeightsPath, logger)
	m.learner = learner.New(nil, logger)

	journal, err := emitter.NewJournal(cfg.JournalPath, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open journal: %w", err)
	}
	sink := emitter.NewSinkClient(cfg.SinkURL, cfg.SinkToken, logger)
	m.pipeline = emitter.NewPipeline(journal, sink, m.metrics, logger)

	das := correlator.NewDASClient(dasEndpoint(cfg.MetadataFallbackKey), logger)
	m.correlator = correlator.New(
		correlator.NewMetadataCache(),
		das,
		func(ev types.PoolEvent) { m.pipeline.Publish(ev) },
		m.metrics,
		logger,
	)

	m.stream = stream.NewManager(stream.ManagerConfig{
		Endpoint: cfg.StreamEndpoint,
		Token:    cfg.StreamToken,
		Owners:   m.ownerFilters(),
		Handler:  m.handleAccount,
		Callbacks: stream.Callbacks{
			OnConnect: func() { m.logger.Info("Account stream established") },
		},
		Metrics: m.metrics,
		Logger:  logger,
	})
	m.tracker = tracker.New(m.stream, m.metrics, logger)

	return m, nil
}

// ownerFilters builds the initial subscription: one filter per enabled
// DEX program plus the two metadata-bearing programs.
func (m *Monitor) ownerFilters() map[string][]solana.PublicKey {
	filters := make(map[string][]solana.PublicKey)
	for _, dex := range m.cfg.DEXKinds() {
		program := types.ProgramForDEX(dex)
		m.programDEX[program] = dex
		filters["dex_"+string(dex)] = []solana.PublicKey{program}
	}
	filters["metadata"] = []solana.PublicKey{types.MetadataProgram}
	filters["token2022"] = []solana.PublicKey{types.Token2022Program}
	return filters
}

// Start brings the pipeline up back-to-front so every stage has a
// running consumer before updates flow.
func (m *Monitor) Start() {
	m.pipeline.Start()
	m.correlator.Start()
	m.stream.Start()

	m.wg.Add(1)
	go m.sweepLoop()

	m.logger.Info("Pool monitor started",
		zap.Strings("dexs", m.cfg.EnabledDEXs),
		zap.String("scorer_mode", m.scorer.Mode()))
}

// Stop tears the pipeline down front-to-back and cancels every timer.
func (m *Monitor) Stop() {
	m.cancel()
	m.stream.Stop()
	m.correlator.Stop()
	m.pipeline.Stop()
	m.wg.Wait()
	m.logger.Info("Pool monitor stopped")
}

func (m *Monitor) sweepLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.tracker.Sweep()
		}
	}
}

// handleAccount demuxes one stream update by owner program. Unknown
// owners are dropped silently.
func (m *Monitor) handleAccount(u stream.AccountUpdate) {
	now := time.Now()

	switch {
	case u.Owner == types.MetadataProgram:
		if md, ok := m.decoder.DecodeLegacyMetadata(u.Data, now); ok {
			m.onMetadata(md)
		}
	case u.Owner == types.Token2022Program:
		// The mint is the account itself, so the bonding-curve PDA is
		// registered even when the TLV metadata does not decode; the
		// correlator's retry path covers the missing name.
		if md, ok := m.decoder.DecodeMintMetadata(u.Pubkey, u.Data, now); ok {
			m.correlator.OnMetadata(md)
		}
		for _, ev := range m.tracker.RegisterMint(u.Pubkey) {
			m.process(ev)
		}
	case u.Owner == types.TokenProgram:
		if ev := m.tracker.HandleVaultUpdate(u.Pubkey, u.Data, u.Slot); ev != nil {
			m.correlator.Submit(*ev)
		}
	default:
		dex, ok := m.programDEX[u.Owner]
		if !ok {
			return
		}
		snap, ok := m.decoder.Decode(dex, u.Pubkey, u.Data, u.Slot, now)
		if !ok {
			m.metrics.DecoderMisses.WithLabelValues(string(dex)).Inc()
			return
		}
		for _, ev := range m.tracker.Observe(*snap) {
			m.process(ev)
		}
	}
}

// onMetadata feeds the correlator first so that the bonding-curve
// completion path below sees a warm cache.
func (m *Monitor) onMetadata(md types.TokenMetadata) {
	m.correlator.OnMetadata(md)
	for _, ev := range m.tracker.RegisterMint(md.Mint) {
		m.process(ev)
	}
}

// process scores a discovery, records the prediction and hands the
// event to metadata correlation. Price updates skip scoring.
func (m *Monitor) process(ev types.PoolEvent) {
	if ev.Kind != types.EventPriceUpdate {
		report := m.scorer.Score(statsFor(ev))
		m.learner.RecordPrediction(learner.Prediction{
			Mint:              ev.Snapshot.BaseMint.String(),
			RiskScore:         report.RiskScore,
			Verdict:           string(report.RiskLevel),
			Confidence:        report.Confidence,
			Features:          report.Features,
			MatchedPatternIDs: patternIDs(report.PatternMatches),
		})

		decision := risk.Gate(report)
		if !decision.Allow {
			m.logger.Warn("Token failed risk gate",
				zap.String("mint", ev.Snapshot.BaseMint.String()),
				zap.Int("risk_score", report.RiskScore),
				zap.Strings("reasons", decision.Reasons))
		} else if len(decision.Warnings) > 0 {
			m.logger.Info("Token passed risk gate with warnings",
				zap.String("mint", ev.Snapshot.BaseMint.String()),
				zap.Strings("warnings", decision.Warnings))
		}
	}
	m.correlator.Submit(ev)
}

// statsFor maps a discovery onto token stats. Only on-chain facts are
// known at this point; holder, market and creator fields keep their
// unknown defaults and liquidity stays unset because the snapshot
// carries SOL, not USD.
func statsFor(ev types.PoolEvent) features.TokenStats {
	stats := features.TokenStats{
		TradingRecency: -1,
	}
	if ev.Kind == types.EventGraduation {
		stats.AgeHours = float64(ev.BondingCurveDuration) / 1000 / 3600
	}
	return stats
}

func patternIDs(matches []risk.PatternMatch) []string {
	if len(matches) == 0 {
		return nil
	}
	ids := make([]string, 0, len(matches))
	for _, match := range matches {
		ids = append(ids, match.PatternID)
	}
	return ids
}

// TrackPosition switches a pool into position-tracking mode.
func (m *Monitor) TrackPosition(pool, token solana.PublicKey, dex types.DEXKind) error {
	return m.tracker.AddPositionTracking(pool, token, dex)
}

// UntrackPosition removes a tracked pool.
func (m *Monitor) UntrackPosition(pool solana.PublicKey) {
	m.tracker.RemovePositionTracking(pool)
	if err := m.stream.UnsubscribePool(pool); err != nil {
		m.logger.Debug("Position unsubscribe failed",
			zap.String("pool", pool.String()), zap.Error(err))
	}
}

// RecordOutcome forwards a position outcome to the learner.
func (m *Monitor) RecordOutcome(ctx context.Context, outcome learner.OutcomeRecord) error {
	return m.learner.RecordOutcome(ctx, outcome)
}

// Stats snapshots pipeline health for diagnostics.
func (m *Monitor) Stats() map[string]interface{} {
	learnerStats := m.learner.Stats()
	return map[string]interface{}{
		"tracker":            m.tracker.Stats(),
		"queue_depth":        m.pipeline.QueueDepth(),
		"metadata_hit_rate":  m.correlator.HitRate(),
		"metadata_pending":   m.correlator.PendingCount(),
		"scorer_mode":        m.scorer.Mode(),
		"predictions":        learnerStats.TotalPredictions,
		"outcomes":           learnerStats.TotalOutcomes,
		"prediction_hitrate": learnerStats.Accuracy.Overall,
	}
}

// dasEndpoint turns a configured fallback key into a DAS endpoint; a
// full URL passes through unchanged.
func dasEndpoint(key string) string {
	if key == "" {
		return ""
	}
	if strings.Contains(key, "://") {
		return key
	}
	return "https://mainnet.helius-rpc.com/?api-key=" + key
}
