// ====================================
// File: internal/decoder/raydium.go
// ====================================
package decoder

import (
	"encoding/binary"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/solwatch/solwatch/internal/types"
)

// Raydium CPMM pool state layout.
const (
	cpmmMinSize      = 354
	cpmmMint0Off     = 72
	cpmmMint1Off     = 104
	cpmmLPMintOff    = 136
	cpmmBaseVaultOff = 168
	cpmmQuoteVltOff  = 200
	cpmmToken0Off    = 338
	cpmmToken1Off    = 346
)

func (d *Decoder) decodeRaydiumCPMM(pool solana.PublicKey, data []byte, slot uint64, now time.Time) (*types.PoolSnapshot, bool) {
	if len(data) < cpmmMinSize {
		return nil, false
	}

	mint0 := readPubkey(data, cpmmMint0Off)
	mint1 := readPubkey(data, cpmmMint1Off)
	if !validMint(mint0) || !validMint(mint1) {
		return nil, false
	}

	amount0 := binary.LittleEndian.Uint64(data[cpmmToken0Off : cpmmToken0Off+8])
	amount1 := binary.LittleEndian.Uint64(data[cpmmToken1Off : cpmmToken1Off+8])

	base, quote, baseRes, quoteRes := orientPair(mint0, mint1, amount0, amount1)
	baseVault := readPubkey(data, cpmmBaseVaultOff)
	quoteVault := readPubkey(data, cpmmQuoteVltOff)
	if base != mint0 {
		baseVault, quoteVault = quoteVault, baseVault
	}

	var price float64
	if quote == types.WSOLMint && baseRes > 0 {
		price = (float64(quoteRes) / 1e9) / (float64(baseRes) / 1e6)
	}

	d.logger.Debug("Decoded Raydium CPMM pool",
		zap.String("pool", pool.String()),
		zap.String("base_mint", base.String()),
		zap.Uint64("slot", slot))

	return &types.PoolSnapshot{
		DEX:         types.DEXRaydiumCPMM,
		PoolAddress: pool,
		BaseMint:    base,
		QuoteMint:   quote,
		Slot:        slot,
		ObservedAt:  now,
		Enriched: types.EnrichedData{
			LiquiditySOL:     deriveLiquiditySOL(base, quote, baseRes, quoteRes),
			Token0Amount:     amount0,
			Token1Amount:     amount1,
			BaseVault:        baseVault,
			QuoteVault:       quoteVault,
			LPMint:           readPubkey(data, cpmmLPMintOff),
			PriceSOLPerToken: sanitizePrice(price),
		},
	}, true
}

// Raydium AMM v4 pool state layout. Reserves live in the token vaults,
// not the pool account, so liquidity is 0 ("unknown") at discovery and
// gets filled in by vault subscription updates.
const (
	ammV4MinSize      = 464
	ammV4LPMintOff    = 304
	ammV4BaseMintOff  = 336
	ammV4QuoteMintOff = 368
	ammV4CoinVaultOff = 400
	ammV4PcVaultOff   = 432
)

func (d *Decoder) decodeRaydiumAMMv4(pool solana.PublicKey, data []byte, slot uint64, now time.Time) (*types.PoolSnapshot, bool) {
	if len(data) < ammV4MinSize {
		return nil, false
	}

	baseMint := readPubkey(data, ammV4BaseMintOff)
	quoteMint := readPubkey(data, ammV4QuoteMintOff)
	if !validMint(baseMint) || !validMint(quoteMint) {
		return nil, false
	}

	base, quote, _, _ := orientPair(baseMint, quoteMint, 0, 0)
	coinVault := readPubkey(data, ammV4CoinVaultOff)
	pcVault := readPubkey(data, ammV4PcVaultOff)
	if base != baseMint {
		coinVault, pcVault = pcVault, coinVault
	}

	d.logger.Debug("Decoded Raydium AMMv4 pool",
		zap.String("pool", pool.String()),
		zap.String("base_mint", base.String()),
		zap.Uint64("slot", slot))

	return &types.PoolSnapshot{
		DEX:         types.DEXRaydiumAMMv4,
		PoolAddress: pool,
		BaseMint:    base,
		QuoteMint:   quote,
		Slot:        slot,
		ObservedAt:  now,
		Enriched: types.EnrichedData{
			BaseVault:  coinVault,
			QuoteVault: pcVault,
			LPMint:     readPubkey(data, ammV4LPMintOff),
		},
	}, true
}
