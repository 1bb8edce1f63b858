// =================================
// File: internal/risk/scorer.go
// =================================
package risk

import (
	"math"

	"go.uber.org/zap"

	"github.com/solwatch/solwatch/internal/features"
)

// RiskLevel is the argmax class of the classifier.
type RiskLevel string

const (
	LevelSafe       RiskLevel = "SAFE"
	LevelSuspicious RiskLevel = "SUSPICIOUS"
	LevelDangerous  RiskLevel = "DANGEROUS"
	LevelScam       RiskLevel = "SCAM"
)

var classLevels = [outputDim]RiskLevel{LevelSafe, LevelSuspicious, LevelDangerous, LevelScam}

// Scorer modes.
const (
	ModeNeural    = "neural"
	ModeRuleBased = "rule-based"
)

// RiskReport is the scorer output consumed by the learner and by
// downstream gating.
type RiskReport struct {
	RiskScore         int                          `json:"riskScore"` // 0..100
	RiskLevel         RiskLevel                    `json:"riskLevel"`
	Confidence        int                          `json:"confidence"` // 0..100
	Flags             []Flag                       `json:"flags"`
	PatternMatches    []PatternMatch               `json:"patternMatches,omitempty"`
	FeatureImportance map[string]float64           `json:"featureImportance,omitempty"`
	Mode              string                       `json:"mode"`
	Features          [features.VectorSize]float64 `json:"features"`
}

// Scorer combines the ternary network with the rule flags and the
// pattern library. When the weights file is missing the scorer runs
// permanently in rule-based mode.
type Scorer struct {
	logger  *zap.Logger
	net     *TernaryNetwork
	library []ScamPattern
}

// NewScorer loads the weights file once. A missing or malformed file
// is logged at warn level and degrades the scorer to rule-based mode
// for the process lifetime.
func NewScorer(weightsPath string, logger *zap.Logger) *Scorer {
	s := &Scorer{
		logger:  logger.Named("risk-scorer"),
		library: DefaultPatternLibrary(),
	}

	if weightsPath == "" {
		s.logger.Warn("No weights file configured, running rule-based")
		return s
	}
	net, err := LoadNetwork(weightsPath)
	if err != nil {
		s.logger.Warn("Quantised weights unavailable, running rule-based",
			zap.String("path", weightsPath),
			zap.Error(err))
		return s
	}
	s.net = net
	s.logger.Info("Loaded ternary classifier weights", zap.String("path", weightsPath))
	return s
}

// Mode reports which scoring path is active.
func (s *Scorer) Mode() string {
	if s.net != nil {
		return ModeNeural
	}
	return ModeRuleBased
}

// Score classifies one token. Deterministic for a fixed model and
// stats input.
func (s *Scorer) Score(stats features.TokenStats) RiskReport {
	vec := features.Extract(stats)
	report := RiskReport{
		Flags:          evaluateFlags(stats),
		PatternMatches: MatchPatterns(s.library, vec, stats),
		Mode:           s.Mode(),
		Features:       vec,
	}

	if s.net != nil {
		probs := s.net.Infer(vec)
		argmax := 0
		for i := 1; i < outputDim; i++ {
			if probs[i] > probs[argmax] {
				argmax = i
			}
		}
		report.RiskScore = clampScore(math.Round(100 * (probs[classDangerous] + probs[classScam])))
		report.RiskLevel = classLevels[argmax]
		report.Confidence = clampScore(math.Round(100 * probs[argmax]))
		report.FeatureImportance = s.neuralImportance(vec)
		return report
	}

	score := ruleScore(vec)
	report.RiskScore = clampScore(score)
	report.RiskLevel = levelForScore(report.RiskScore)
	report.Confidence = clampScore(50 + math.Abs(score-50)/2)
	report.FeatureImportance = ruleImportance(vec)
	return report
}

// ruleScore synthesises risk as 100*(1 - weighted average of safety
// features) when no network is available.
func ruleScore(vec [features.VectorSize]float64) float64 {
	lpSafety := math.Max(vec[features.LPLocked], vec[features.LPBurned])
	safety := 0.2*vec[features.MintDisabled] +
		0.1*vec[features.FreezeDisabled] +
		0.2*lpSafety +
		0.2*vec[features.BundleQuality] +
		0.2*(1-vec[features.Top10Concentration]) +
		0.1*vec[features.LiquidityLog]
	return 100 * (1 - safety)
}

var ruleSafetyWeights = map[int]float64{
	features.MintDisabled:       0.2,
	features.FreezeDisabled:     0.1,
	features.LPLocked:           0.2,
	features.BundleQuality:      0.2,
	features.Top10Concentration: 0.2,
	features.LiquidityLog:       0.1,
}

func ruleImportance(vec [features.VectorSize]float64) map[string]float64 {
	out := make(map[string]float64, len(ruleSafetyWeights))
	for idx, w := range ruleSafetyWeights {
		out[features.Names[idx]] = w * math.Abs(vec[idx])
	}
	return out
}

// neuralImportance weighs each input by its activation scaled by the
// fraction of non-zero first-layer weights attached to it.
func (s *Scorer) neuralImportance(vec [features.VectorSize]float64) map[string]float64 {
	first := &s.net.layers[0]
	out := make(map[string]float64, inputDim)
	for i := 0; i < inputDim; i++ {
		nonZero := 0
		for o := 0; o < first.out; o++ {
			if first.weights[o*first.in+i] != 0 {
				nonZero++
			}
		}
		out[features.Names[i]] = math.Abs(vec[i]) * float64(nonZero) / float64(first.out)
	}
	return out
}

func levelForScore(score int) RiskLevel {
	switch {
	case score >= 75:
		return LevelScam
	case score >= 50:
		return LevelDangerous
	case score >= 25:
		return LevelSuspicious
	default:
		return LevelSafe
	}
}

func clampScore(v float64) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(v)
}
