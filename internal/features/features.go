// =====================================
// File: internal/features/features.go
// =====================================
package features

import "math"

// VectorSize is the public contract with downstream scorers: every
// extracted vector has exactly this many coordinates.
const VectorSize = 29

// Feature indices. The layout is frozen; scorer weights and pattern
// centroids are trained against these positions.
const (
	LiquidityLog = iota
	VolumeToLiquidity
	MarketCapLog
	PriceVelocity
	VolumeLog
	HolderCountLog
	Top10Concentration
	Gini
	FreshWalletRatio
	WhaleCount
	TopWhalePercent
	MintDisabled
	FreezeDisabled
	LPLocked
	LPBurned
	BundleDetected
	BundleCountNorm
	BundleControlPercent
	BundleConfidence
	BundleQuality
	BuyRatio24h
	BuyRatio1h
	ActivityLevel
	Momentum
	AgeDecay
	TradingRecency
	CreatorIdentified
	CreatorRugHistory
	CreatorHoldings
)

// Names maps indices to stable feature names for reporting.
var Names = [VectorSize]string{
	"liquidityLog", "volumeToLiquidity", "marketCapLog", "priceVelocity",
	"volumeLog", "holderCountLog", "top10Concentration", "gini",
	"freshWalletRatio", "whaleCount", "topWhalePercent", "mintDisabled",
	"freezeDisabled", "lpLocked", "lpBurned", "bundleDetected",
	"bundleCountNorm", "bundleControlPercent", "bundleConfidence",
	"bundleQuality", "buyRatio24h", "buyRatio1h", "activityLevel",
	"momentum", "ageDecay", "tradingRecency", "creatorIdentified",
	"creatorRugHistory", "creatorHoldings",
}

// BundleConfidenceLevel grades a wallet-bundle detection.
type BundleConfidenceLevel string

const (
	BundleConfidenceHigh   BundleConfidenceLevel = "HIGH"
	BundleConfidenceMedium BundleConfidenceLevel = "MEDIUM"
	BundleConfidenceLow    BundleConfidenceLevel = "LOW"
)

// TokenStats aggregates everything known about a token at scoring
// time. Zero values mean "unknown" and resolve to the documented
// per-feature defaults.
type TokenStats struct {
	LiquidityUSD  float64
	Volume24hUSD  float64
	MarketCapUSD  float64
	PriceChange5m float64 // percent

	HolderCount        int
	Top10Concentration float64 // 0..1
	Gini               float64 // 0..1
	FreshWalletRatio   float64 // 0..1
	WhaleCount         int
	TopWhalePercent    float64 // 0..1

	MintAuthorityDisabled   bool
	FreezeAuthorityDisabled bool
	LPLockedPercent         float64 // 0..1
	LPBurned                bool

	BundleDetected       bool
	BundleWalletCount    int
	BundleControlPercent float64 // 0..1
	BundleConfidence     BundleConfidenceLevel

	Buys24h  int
	Sells24h int
	Buys1h   int
	Sells1h  int
	Txns24h  int

	AgeHours        float64
	TradingRecency  float64 // 0..1, <0 means unknown
	CreatorKnown    bool
	CreatorRugCount int
	CreatorHoldings float64 // 0..1
}

// Extract produces the fixed 29-float vector. Every coordinate is
// finite: ratios sanitize to 0.5, counts to 0.
func Extract(s TokenStats) [VectorSize]float64 {
	var v [VectorSize]float64

	v[LiquidityLog] = logScale(s.LiquidityUSD, 7)
	v[VolumeToLiquidity] = math.Min(5, s.Volume24hUSD/math.Max(1, s.LiquidityUSD)) / 5
	v[MarketCapLog] = logScale(s.MarketCapUSD, 9)
	v[PriceVelocity] = clamp(s.PriceChange5m/100, -1, 1)
	v[VolumeLog] = logScale(s.Volume24hUSD, 7)
	v[HolderCountLog] = logScale(float64(s.HolderCount), 4)
	v[Top10Concentration] = clamp(s.Top10Concentration, 0, 1)
	v[Gini] = clamp(s.Gini, 0, 1)
	v[FreshWalletRatio] = clamp(s.FreshWalletRatio, 0, 1)
	v[WhaleCount] = math.Min(1, float64(s.WhaleCount)/10)
	v[TopWhalePercent] = clamp(s.TopWhalePercent, 0, 1)
	v[MintDisabled] = boolFeature(s.MintAuthorityDisabled)
	v[FreezeDisabled] = boolFeature(s.FreezeAuthorityDisabled)
	if s.LPLockedPercent > 0.5 {
		v[LPLocked] = 1
	} else {
		v[LPLocked] = clamp(s.LPLockedPercent, 0, 1)
	}
	v[LPBurned] = boolFeature(s.LPBurned)
	v[BundleDetected] = boolFeature(s.BundleDetected)
	v[BundleCountNorm] = math.Min(1, float64(s.BundleWalletCount)/20)
	v[BundleControlPercent] = clamp(s.BundleControlPercent, 0, 1)
	v[BundleConfidence] = bundleConfidence(s.BundleConfidence)
	if s.BundleDetected {
		v[BundleQuality] = 1 - clamp(s.BundleControlPercent, 0, 1)
	} else {
		v[BundleQuality] = 1
	}
	v[BuyRatio24h] = buyRatio(s.Buys24h, s.Sells24h)
	v[BuyRatio1h] = buyRatio(s.Buys1h, s.Sells1h)
	v[ActivityLevel] = math.Min(1, float64(s.Txns24h)/100)
	v[Momentum] = 2*v[BuyRatio24h] - 1
	v[AgeDecay] = math.Exp(-math.Max(0, s.AgeHours) / 24)
	if s.TradingRecency < 0 {
		v[TradingRecency] = 0.5
	} else {
		v[TradingRecency] = clamp(s.TradingRecency, 0, 1)
	}
	v[CreatorIdentified] = boolFeature(s.CreatorKnown)
	v[CreatorRugHistory] = math.Min(1, float64(s.CreatorRugCount)/5)
	v[CreatorHoldings] = clamp(s.CreatorHoldings, 0, 1)

	for i := range v {
		if math.IsNaN(v[i]) || math.IsInf(v[i], 0) {
			if isRatioFeature(i) {
				v[i] = 0.5
			} else {
				v[i] = 0
			}
		}
	}
	return v
}

func logScale(value, decades float64) float64 {
	return math.Min(1, math.Log10(math.Max(1, value))/decades)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func bundleConfidence(level BundleConfidenceLevel) float64 {
	switch level {
	case BundleConfidenceHigh:
		return 1
	case BundleConfidenceMedium:
		return 0.6
	case BundleConfidenceLow:
		return 0.3
	}
	return 0
}

// buyRatio defaults to 0.5 when no trades are known.
func buyRatio(buys, sells int) float64 {
	total := buys + sells
	if total <= 0 {
		return 0.5
	}
	return float64(buys) / float64(total)
}

func isRatioFeature(i int) bool {
	switch i {
	case BuyRatio24h, BuyRatio1h, TradingRecency, BundleQuality:
		return true
	}
	return false
}
