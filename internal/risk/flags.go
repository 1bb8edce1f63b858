// ================================
// File: internal/risk/flags.go
// ================================
package risk

import (
	"fmt"

	"github.com/solwatch/solwatch/internal/features"
)

// FlagSeverity grades a risk flag.
type FlagSeverity string

const (
	SeverityLow      FlagSeverity = "LOW"
	SeverityMedium   FlagSeverity = "MEDIUM"
	SeverityHigh     FlagSeverity = "HIGH"
	SeverityCritical FlagSeverity = "CRITICAL"
)

// Flag is one hard-rule finding over the raw token stats, produced
// independently of the network output.
type Flag struct {
	Type     string       `json:"type"`
	Severity FlagSeverity `json:"severity"`
	Message  string       `json:"message"`
}

// Flag type constants.
const (
	FlagWhaleConcentration  = "WHALE_CONCENTRATION"
	FlagHolderConcentration = "HOLDER_CONCENTRATION"
	FlagMintAuthority       = "MINT_AUTHORITY_ACTIVE"
	FlagFreezeAuthority     = "FREEZE_AUTHORITY_ACTIVE"
	FlagBundleControl       = "BUNDLE_CONTROL"
	FlagLowLiquidity        = "LOW_LIQUIDITY"
	FlagFreshWallets        = "FRESH_WALLET_SWARM"
	FlagCreatorRugHistory   = "CREATOR_RUG_HISTORY"
	FlagLPUnlocked          = "LP_UNLOCKED"
)

// evaluateFlags applies the hard-coded rule set to the raw stats.
func evaluateFlags(s features.TokenStats) []Flag {
	var flags []Flag

	if s.TopWhalePercent > 0.5 {
		flags = append(flags, Flag{
			Type:     FlagWhaleConcentration,
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("top holder controls %.0f%% of supply", s.TopWhalePercent*100),
		})
	}

	switch {
	case s.Top10Concentration > 0.95:
		flags = append(flags, Flag{
			Type:     FlagHolderConcentration,
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("top 10 holders control %.0f%% of supply", s.Top10Concentration*100),
		})
	case s.Top10Concentration > 0.8:
		flags = append(flags, Flag{
			Type:     FlagHolderConcentration,
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("top 10 holders control %.0f%% of supply", s.Top10Concentration*100),
		})
	}

	if !s.MintAuthorityDisabled {
		flags = append(flags, Flag{
			Type:     FlagMintAuthority,
			Severity: SeverityHigh,
			Message:  "mint authority has not been revoked",
		})
	}
	if !s.FreezeAuthorityDisabled {
		flags = append(flags, Flag{
			Type:     FlagFreezeAuthority,
			Severity: SeverityMedium,
			Message:  "freeze authority has not been revoked",
		})
	}

	if s.BundleDetected {
		severity := SeverityMedium
		switch {
		case s.BundleControlPercent > 0.5:
			severity = SeverityCritical
		case s.BundleControlPercent > 0.3:
			severity = SeverityHigh
		}
		flags = append(flags, Flag{
			Type:     FlagBundleControl,
			Severity: severity,
			Message:  fmt.Sprintf("coordinated bundle of %d wallets controls %.0f%%", s.BundleWalletCount, s.BundleControlPercent*100),
		})
	}

	if s.LiquidityUSD > 0 && s.LiquidityUSD < 1000 {
		flags = append(flags, Flag{
			Type:     FlagLowLiquidity,
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("pool liquidity only $%.0f", s.LiquidityUSD),
		})
	}

	if s.FreshWalletRatio > 0.7 {
		flags = append(flags, Flag{
			Type:     FlagFreshWallets,
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("%.0f%% of holders are freshly funded wallets", s.FreshWalletRatio*100),
		})
	}

	if s.CreatorKnown && s.CreatorRugCount > 0 {
		severity := SeverityHigh
		if s.CreatorRugCount >= 3 {
			severity = SeverityCritical
		}
		flags = append(flags, Flag{
			Type:     FlagCreatorRugHistory,
			Severity: severity,
			Message:  fmt.Sprintf("creator linked to %d prior rugs", s.CreatorRugCount),
		})
	}

	if s.LPLockedPercent == 0 && !s.LPBurned {
		flags = append(flags, Flag{
			Type:     FlagLPUnlocked,
			Severity: SeverityMedium,
			Message:  "LP tokens neither locked nor burned",
		})
	}

	return flags
}

// hasSeverity reports whether any flag is at least the given severity.
func hasSeverity(flags []Flag, severity FlagSeverity) bool {
	for _, f := range flags {
		if f.Severity == severity {
			return true
		}
	}
	return false
}
