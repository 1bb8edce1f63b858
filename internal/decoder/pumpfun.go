// ====================================
// File: internal/decoder/pumpfun.go
// ====================================
package decoder

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/solwatch/solwatch/internal/types"
)

// Pump.fun bonding curve account. The account itself is the
// ["bonding-curve", mint] PDA, so the mint is not in the layout; the
// tracker recovers it from the registered PDA mapping.
const pumpCurveSize = 151

// Anchor discriminator of the BondingCurve account.
var pumpCurveDiscriminator = []byte{0x17, 0xb7, 0xf8, 0x37, 0x60, 0xd8, 0xac, 0x60}

// Virtual-SOL sanity window for a live curve, in SOL. Values outside
// this window are treated as a parse miss.
const (
	pumpMinVirtualSOL = 1.0
	pumpMaxVirtualSOL = 100.0
)

func (d *Decoder) decodePumpFun(pool solana.PublicKey, data []byte, slot uint64, now time.Time) (*types.PoolSnapshot, bool) {
	if len(data) != pumpCurveSize {
		return nil, false
	}
	if !bytes.Equal(data[:8], pumpCurveDiscriminator) {
		return nil, false
	}

	virtualTokens := binary.LittleEndian.Uint64(data[8:16])
	virtualSOL := binary.LittleEndian.Uint64(data[16:24])
	realTokens := binary.LittleEndian.Uint64(data[24:32])
	realSOL := binary.LittleEndian.Uint64(data[32:40])
	tokenSupply := binary.LittleEndian.Uint64(data[40:48])
	complete := data[48] != 0

	liquiditySOL := float64(virtualSOL) / 1e9
	if liquiditySOL <= pumpMinVirtualSOL || liquiditySOL >= pumpMaxVirtualSOL {
		return nil, false
	}

	var price float64
	if virtualTokens > 0 {
		price = (float64(virtualSOL) / 1e9) / (float64(virtualTokens) / 1e6)
	}

	d.logger.Debug("Decoded pump.fun bonding curve",
		zap.String("curve", pool.String()),
		zap.Float64("virtual_sol", liquiditySOL),
		zap.Bool("complete", complete),
		zap.Uint64("slot", slot))

	return &types.PoolSnapshot{
		DEX:         types.DEXPumpFun,
		PoolAddress: pool,
		QuoteMint:   types.WSOLMint,
		Slot:        slot,
		ObservedAt:  now,
		Enriched: types.EnrichedData{
			LiquiditySOL:         liquiditySOL,
			VirtualSOLReserves:   virtualSOL,
			VirtualTokenReserves: virtualTokens,
			RealSOLReserves:      realSOL,
			RealTokenReserves:    realTokens,
			TokenSupply:          tokenSupply,
			Complete:             complete,
			PriceSOLPerToken:     sanitizePrice(price),
		},
	}, true
}
