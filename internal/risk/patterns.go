// ===================================
// File: internal/risk/patterns.go
// ===================================
package risk

import (
	"math"
	"sort"

	"github.com/solwatch/solwatch/internal/features"
)

// ScamPattern is one library entry: a centroid in the 29-dim feature
// space plus the indicator set that must accompany it.
type ScamPattern struct {
	ID                 string
	Name               string
	Severity           FlagSeverity
	Centroid           [features.VectorSize]float64
	RequiredIndicators []string
	HistoricalRugRate  float64
	Active             bool
}

// PatternMatch is a similarity hit against one pattern.
type PatternMatch struct {
	Pattern           *ScamPattern `json:"-"`
	PatternID         string       `json:"patternId"`
	PatternName       string       `json:"patternName"`
	Severity          FlagSeverity `json:"severity"`
	Confidence        float64      `json:"confidence"`
	MatchedIndicators []string     `json:"matchedIndicators"`
}

// Indicator keys derivable from raw stats.
const (
	indMintAuthority   = "mint_authority_active"
	indFreezeAuthority = "freeze_authority_active"
	indBundle          = "bundle_detected"
	indFreshWallets    = "fresh_wallets"
	indConcentrated    = "high_concentration"
	indWhale           = "whale_holder"
	indLowLiquidity    = "low_liquidity"
	indLPUnlocked      = "lp_unlocked"
	indCreatorRugs     = "creator_rug_history"
	indHighVelocity    = "high_price_velocity"
	indSellPressure    = "sell_pressure"
)

// indicatorsFor derives the indicator set from raw stats.
func indicatorsFor(s features.TokenStats) map[string]bool {
	ind := make(map[string]bool)
	if !s.MintAuthorityDisabled {
		ind[indMintAuthority] = true
	}
	if !s.FreezeAuthorityDisabled {
		ind[indFreezeAuthority] = true
	}
	if s.BundleDetected {
		ind[indBundle] = true
	}
	if s.FreshWalletRatio > 0.5 {
		ind[indFreshWallets] = true
	}
	if s.Top10Concentration > 0.7 {
		ind[indConcentrated] = true
	}
	if s.TopWhalePercent > 0.4 {
		ind[indWhale] = true
	}
	if s.LiquidityUSD > 0 && s.LiquidityUSD < 5000 {
		ind[indLowLiquidity] = true
	}
	if s.LPLockedPercent == 0 && !s.LPBurned {
		ind[indLPUnlocked] = true
	}
	if s.CreatorKnown && s.CreatorRugCount > 0 {
		ind[indCreatorRugs] = true
	}
	if math.Abs(s.PriceChange5m) > 50 {
		ind[indHighVelocity] = true
	}
	if s.Sells1h > 2*s.Buys1h && s.Sells1h > 10 {
		ind[indSellPressure] = true
	}
	return ind
}

// MatchPatterns scores the feature vector against every active
// pattern and returns up to three matches with confidence >= 0.5,
// sorted by confidence descending.
func MatchPatterns(library []ScamPattern, vec [features.VectorSize]float64, s features.TokenStats) []PatternMatch {
	indicators := indicatorsFor(s)

	var matches []PatternMatch
	for i := range library {
		p := &library[i]
		if !p.Active {
			continue
		}

		sim := (cosine(vec, p.Centroid) + 1) / 2

		var matched []string
		for _, required := range p.RequiredIndicators {
			if indicators[required] {
				matched = append(matched, required)
			}
		}
		coverage := 0.0
		if len(p.RequiredIndicators) > 0 {
			coverage = float64(len(matched)) / float64(len(p.RequiredIndicators))
		}

		confidence := 0.6*sim + 0.4*coverage
		if confidence < 0.5 {
			continue
		}
		matches = append(matches, PatternMatch{
			Pattern:           p,
			PatternID:         p.ID,
			PatternName:       p.Name,
			Severity:          p.Severity,
			Confidence:        confidence,
			MatchedIndicators: matched,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})
	if len(matches) > 3 {
		matches = matches[:3]
	}
	return matches
}

func cosine(a, b [features.VectorSize]float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// centroid builds a pattern centroid from the neutral baseline with
// per-index overrides.
func centroid(overrides map[int]float64) [features.VectorSize]float64 {
	v := [features.VectorSize]float64{}
	// Neutral baseline: mid-range ratios, quiet counts.
	v[features.LiquidityLog] = 0.3
	v[features.MarketCapLog] = 0.3
	v[features.VolumeLog] = 0.3
	v[features.HolderCountLog] = 0.3
	v[features.BuyRatio24h] = 0.5
	v[features.BuyRatio1h] = 0.5
	v[features.TradingRecency] = 0.5
	v[features.BundleQuality] = 1
	v[features.AgeDecay] = 0.9
	for idx, val := range overrides {
		v[idx] = val
	}
	return v
}

// DefaultPatternLibrary returns the built-in library. Rug rates come
// from labeled historical outcomes.
func DefaultPatternLibrary() []ScamPattern {
	return []ScamPattern{
		{
			ID:       "classic-rug-pull",
			Name:     "Classic rug pull",
			Severity: SeverityCritical,
			Centroid: centroid(map[int]float64{
				features.Top10Concentration: 0.9,
				features.MintDisabled:       0,
				features.LPLocked:           0,
				features.LPBurned:           0,
				features.LiquidityLog:       0.2,
			}),
			RequiredIndicators: []string{indMintAuthority, indLPUnlocked, indConcentrated},
			HistoricalRugRate:  0.94,
			Active:             true,
		},
		{
			ID:       "honeypot-freeze",
			Name:     "Honeypot via freeze authority",
			Severity: SeverityCritical,
			Centroid: centroid(map[int]float64{
				features.FreezeDisabled: 0,
				features.BuyRatio24h:    0.95,
				features.BuyRatio1h:     0.95,
				features.Momentum:       0.9,
			}),
			RequiredIndicators: []string{indFreezeAuthority, indSellPressure},
			HistoricalRugRate:  0.88,
			Active:             true,
		},
		{
			ID:       "bundled-launch",
			Name:     "Bundled sniper launch",
			Severity: SeverityCritical,
			Centroid: centroid(map[int]float64{
				features.BundleDetected:       1,
				features.BundleCountNorm:      0.8,
				features.BundleControlPercent: 0.7,
				features.BundleConfidence:     1,
				features.BundleQuality:        0.3,
				features.FreshWalletRatio:     0.8,
			}),
			RequiredIndicators: []string{indBundle, indFreshWallets},
			HistoricalRugRate:  0.91,
			Active:             true,
		},
		{
			ID:       "whale-dump-setup",
			Name:     "Whale dump setup",
			Severity: SeverityHigh,
			Centroid: centroid(map[int]float64{
				features.WhaleCount:      0.8,
				features.TopWhalePercent: 0.6,
				features.PriceVelocity:   0.8,
				features.ActivityLevel:   0.9,
			}),
			RequiredIndicators: []string{indWhale, indHighVelocity},
			HistoricalRugRate:  0.72,
			Active:             true,
		},
		{
			ID:       "slow-rug",
			Name:     "Slow liquidity drain",
			Severity: SeverityHigh,
			Centroid: centroid(map[int]float64{
				features.LiquidityLog:      0.2,
				features.VolumeToLiquidity: 0.9,
				features.BuyRatio24h:       0.3,
				features.Momentum:          -0.4,
				features.AgeDecay:          0.4,
			}),
			RequiredIndicators: []string{indSellPressure, indLowLiquidity},
			HistoricalRugRate:  0.66,
			Active:             true,
		},
		{
			ID:       "fresh-wallet-farm",
			Name:     "Fresh wallet holder farm",
			Severity: SeverityHigh,
			Centroid: centroid(map[int]float64{
				features.FreshWalletRatio: 0.9,
				features.HolderCountLog:   0.7,
				features.Gini:             0.85,
				features.ActivityLevel:    0.8,
			}),
			RequiredIndicators: []string{indFreshWallets},
			HistoricalRugRate:  0.69,
			Active:             true,
		},
		{
			ID:       "serial-rugger",
			Name:     "Serial rugger relaunch",
			Severity: SeverityCritical,
			Centroid: centroid(map[int]float64{
				features.CreatorIdentified: 1,
				features.CreatorRugHistory: 0.8,
				features.CreatorHoldings:   0.5,
				features.AgeDecay:          1,
			}),
			RequiredIndicators: []string{indCreatorRugs},
			HistoricalRugRate:  0.97,
			Active:             true,
		},
		{
			ID:       "flash-pump",
			Name:     "Flash pump and dump",
			Severity: SeverityMedium,
			Centroid: centroid(map[int]float64{
				features.PriceVelocity:     1,
				features.VolumeToLiquidity: 1,
				features.ActivityLevel:     1,
				features.AgeDecay:          1,
				features.HolderCountLog:    0.2,
			}),
			RequiredIndicators: []string{indHighVelocity, indLowLiquidity},
			HistoricalRugRate:  0.58,
			Active:             true,
		},
	}
}
