// ======================================
// File: internal/decoder/whirlpool.go
// ======================================
package decoder

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"lukechampine.com/uint128"

	"github.com/solwatch/solwatch/internal/types"
)

// Orca Whirlpool account layout. sqrtPrice is a Q64.64 fixed-point
// square root of the B/A price.
const (
	whirlMinSize      = 245
	whirlLiquidityOff = 49
	whirlSqrtPriceOff = 65
	whirlMintAOff     = 101
	whirlVaultAOff    = 133
	whirlMintBOff     = 181
	whirlVaultBOff    = 213
)

func (d *Decoder) decodeWhirlpool(pool solana.PublicKey, data []byte, slot uint64, now time.Time) (*types.PoolSnapshot, bool) {
	if len(data) < whirlMinSize {
		return nil, false
	}

	mintA := readPubkey(data, whirlMintAOff)
	mintB := readPubkey(data, whirlMintBOff)
	if !validMint(mintA) || !validMint(mintB) {
		return nil, false
	}

	liquidity := readUint128(data, whirlLiquidityOff)
	sqrtPrice := readUint128(data, whirlSqrtPriceOff)

	// price = (sqrtPriceX64 / 2^64)^2, then decimal-corrected toward
	// SOL per token depending on which side SOL sits on.
	sqrt := u128Float(sqrtPrice) / math.Exp2(64)
	rawPrice := sqrt * sqrt

	var price float64
	switch {
	case mintB == types.WSOLMint:
		price = rawPrice * (1e6 / 1e9)
	case mintA == types.WSOLMint:
		if rawPrice > 0 {
			price = (1 / rawPrice) * (1e6 / 1e9)
		}
	default:
		price = rawPrice
	}

	base, quote, _, _ := orientPair(mintA, mintB, 0, 0)
	vaultA := readPubkey(data, whirlVaultAOff)
	vaultB := readPubkey(data, whirlVaultBOff)
	if base != mintA {
		vaultA, vaultB = vaultB, vaultA
	}

	// Whirlpool concentrated liquidity is not directly comparable to
	// constant-product reserves; scale the u128 down as a rough SOL
	// axis estimate.
	liqEstimate := u128Float(liquidity) / 1e9
	if liqEstimate > 100000 {
		liqEstimate = 100000
	}

	d.logger.Debug("Decoded Orca Whirlpool",
		zap.String("pool", pool.String()),
		zap.String("base_mint", base.String()),
		zap.Uint64("slot", slot))

	return &types.PoolSnapshot{
		DEX:         types.DEXOrcaWhirl,
		PoolAddress: pool,
		BaseMint:    base,
		QuoteMint:   quote,
		Slot:        slot,
		ObservedAt:  now,
		Enriched: types.EnrichedData{
			LiquiditySOL:     liqEstimate,
			BaseVault:        vaultA,
			QuoteVault:       vaultB,
			PriceSOLPerToken: sanitizePrice(price),
		},
	}, true
}

func readUint128(data []byte, offset int) uint128.Uint128 {
	lo := binary.LittleEndian.Uint64(data[offset : offset+8])
	hi := binary.LittleEndian.Uint64(data[offset+8 : offset+16])
	return uint128.New(lo, hi)
}

func u128Float(u uint128.Uint128) float64 {
	return float64(u.Hi)*math.Exp2(64) + float64(u.Lo)
}
