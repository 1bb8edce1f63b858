// ===================================
// File: internal/learner/learner.go
// ===================================
package learner

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/solwatch/solwatch/internal/features"
)

// Outcome labels a prediction after the fact.
type Outcome string

const (
	OutcomeRug     Outcome = "RUG"
	OutcomeDump    Outcome = "DUMP"
	OutcomeStable  Outcome = "STABLE"
	OutcomeMoon    Outcome = "MOON"
	OutcomeUnknown Outcome = "UNKNOWN"
)

// Prediction is one recorded scorer verdict.
type Prediction struct {
	ID                string                       `json:"predictionId"`
	Mint              string                       `json:"mint"`
	Timestamp         time.Time                    `json:"timestamp"`
	RiskScore         int                          `json:"riskScore"`
	Verdict           string                       `json:"verdict"`
	Confidence        int                          `json:"confidence"`
	Features          [features.VectorSize]float64 `json:"features"`
	MatchedPatternIDs []string                     `json:"matchedPatternIds,omitempty"`
}

// OutcomeRecord links a later observation back to its prediction.
type OutcomeRecord struct {
	PredictionID    string  `json:"predictionId"`
	Outcome         Outcome `json:"outcome"`
	PriceChange     float64 `json:"priceChange"`
	LiquidityChange float64 `json:"liquidityChange"`
	TimeToOutcomeMs uint64  `json:"timeToOutcomeMs"`
	Details         string  `json:"details,omitempty"`
}

// AccuracyStats reports hit rates overall and per verdict class.
type AccuracyStats struct {
	Overall  float64            `json:"overall"`
	PerClass map[string]float64 `json:"perClass"`
}

// Stats is the learner summary.
type Stats struct {
	TotalPredictions int           `json:"totalPredictions"`
	TotalOutcomes    int           `json:"totalOutcomes"`
	Accuracy         AccuracyStats `json:"accuracy"`
}

// FeatureImportance is one ranked feature/correlation pair.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// RationaleFn optionally produces a human-readable rationale for an
// outcome (e.g. via an external LLM). Failures are ignored; only the
// numerical outcome is kept.
type RationaleFn func(ctx context.Context, pred Prediction, outcome OutcomeRecord) (string, error)

// Learner records predictions and their eventual outcomes, exposing
// accuracy statistics and Pearson feature importance. Persistence
// beyond the process lifetime is an external store's job.
type Learner struct {
	mu        sync.RWMutex
	logger    *zap.Logger
	rationale RationaleFn
	now       func() time.Time

	predictions map[string]Prediction
	outcomes    map[string]OutcomeRecord
	order       []string
}

// New creates an empty learner; rationale may be nil.
func New(rationale RationaleFn, logger *zap.Logger) *Learner {
	return &Learner{
		logger:      logger.Named("learner"),
		rationale:   rationale,
		now:         time.Now,
		predictions: make(map[string]Prediction),
		outcomes:    make(map[string]OutcomeRecord),
	}
}

// SetClock replaces the time source for tests.
func (l *Learner) SetClock(now func() time.Time) { l.now = now }

// RecordPrediction stores a prediction and returns its id.
func (l *Learner) RecordPrediction(pred Prediction) string {
	if pred.ID == "" {
		pred.ID = uuid.New().String()
	}
	if pred.Timestamp.IsZero() {
		pred.Timestamp = l.now()
	}

	l.mu.Lock()
	l.predictions[pred.ID] = pred
	l.order = append(l.order, pred.ID)
	l.mu.Unlock()

	l.logger.Debug("Prediction recorded",
		zap.String("prediction_id", pred.ID),
		zap.String("mint", pred.Mint),
		zap.Int("risk_score", pred.RiskScore))
	return pred.ID
}

// RecordOutcome links an outcome to its prediction. The optional
// rationale hook may fail without affecting the stored record.
func (l *Learner) RecordOutcome(ctx context.Context, outcome OutcomeRecord) error {
	l.mu.Lock()
	pred, ok := l.predictions[outcome.PredictionID]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("unknown prediction id %s", outcome.PredictionID)
	}
	l.mu.Unlock()

	if l.rationale != nil && outcome.Details == "" {
		if details, err := l.rationale(ctx, pred, outcome); err == nil {
			outcome.Details = details
		} else {
			l.logger.Debug("Rationale generation failed, keeping numerical outcome",
				zap.String("prediction_id", outcome.PredictionID),
				zap.Error(err))
		}
	}

	l.mu.Lock()
	l.outcomes[outcome.PredictionID] = outcome
	l.mu.Unlock()

	l.logger.Info("Outcome linked",
		zap.String("prediction_id", outcome.PredictionID),
		zap.String("outcome", string(outcome.Outcome)))
	return nil
}

// PendingOutcomes returns predictions older than the given age that
// have no linked outcome yet.
func (l *Learner) PendingOutcomes(olderThan time.Duration) []Prediction {
	cutoff := l.now().Add(-olderThan)

	l.mu.RLock()
	defer l.mu.RUnlock()

	var pending []Prediction
	for _, id := range l.order {
		if _, done := l.outcomes[id]; done {
			continue
		}
		pred := l.predictions[id]
		if pred.Timestamp.Before(cutoff) {
			pending = append(pending, pred)
		}
	}
	return pending
}

// badVerdict marks the verdicts that predict a bad outcome.
func badVerdict(verdict string) bool {
	return verdict == "DANGEROUS" || verdict == "SCAM"
}

// badOutcome marks the outcomes that confirm a bad prediction.
func badOutcome(o Outcome) bool {
	return o == OutcomeRug || o == OutcomeDump
}

// Stats computes accuracy overall and per verdict class; UNKNOWN
// outcomes are excluded from accuracy.
func (l *Learner) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := Stats{
		TotalPredictions: len(l.predictions),
		TotalOutcomes:    len(l.outcomes),
		Accuracy:         AccuracyStats{PerClass: make(map[string]float64)},
	}

	correct, labeled := 0, 0
	classCorrect := make(map[string]int)
	classTotal := make(map[string]int)

	for id, outcome := range l.outcomes {
		if outcome.Outcome == OutcomeUnknown {
			continue
		}
		pred := l.predictions[id]
		labeled++
		classTotal[pred.Verdict]++
		if badVerdict(pred.Verdict) == badOutcome(outcome.Outcome) {
			correct++
			classCorrect[pred.Verdict]++
		}
	}

	if labeled > 0 {
		stats.Accuracy.Overall = float64(correct) / float64(labeled)
	}
	for class, total := range classTotal {
		stats.Accuracy.PerClass[class] = float64(classCorrect[class]) / float64(total)
	}
	return stats
}

// FeatureImportanceRanking correlates each feature with the binary
// bad outcome (RUG or DUMP) across all labeled predictions, ranked by
// absolute Pearson coefficient.
func (l *Learner) FeatureImportanceRanking() []FeatureImportance {
	l.mu.RLock()

	var vectors [][features.VectorSize]float64
	var labels []float64
	for id, outcome := range l.outcomes {
		if outcome.Outcome == OutcomeUnknown {
			continue
		}
		pred := l.predictions[id]
		vectors = append(vectors, pred.Features)
		if badOutcome(outcome.Outcome) {
			labels = append(labels, 1)
		} else {
			labels = append(labels, 0)
		}
	}
	l.mu.RUnlock()

	if len(vectors) == 0 {
		return nil
	}

	ranking := make([]FeatureImportance, 0, features.VectorSize)
	for i := 0; i < features.VectorSize; i++ {
		values := make([]float64, len(vectors))
		for j, vec := range vectors {
			values[j] = vec[i]
		}
		ranking = append(ranking, FeatureImportance{
			Feature:    features.Names[i],
			Importance: pearson(values, labels),
		})
	}

	sort.Slice(ranking, func(a, b int) bool {
		return math.Abs(ranking[a].Importance) > math.Abs(ranking[b].Importance)
	})
	return ranking
}

// pearson computes the correlation coefficient; degenerate series
// yield 0.
func pearson(xs, ys []float64) float64 {
	n := float64(len(xs))
	if n == 0 {
		return 0
	}
	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX, meanY := sumX/n, sumY/n

	var cov, varX, varY float64
	for i := range xs {
		dx, dy := xs[i]-meanX, ys[i]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}
