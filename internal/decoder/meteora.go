// ====================================
// File: internal/decoder/meteora.go
// ====================================
package decoder

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/solwatch/solwatch/internal/types"
)

// Meteora DLMM lb-pair layout. The account carries the two mints and
// the two reserve vault addresses; balances arrive via vault updates.
const (
	dlmmMinSize     = 136
	dlmmMintXOff    = 8
	dlmmMintYOff    = 40
	dlmmReserveXOff = 72
	dlmmReserveYOff = 104
)

func (d *Decoder) decodeMeteoraDLMM(pool solana.PublicKey, data []byte, slot uint64, now time.Time) (*types.PoolSnapshot, bool) {
	if len(data) < dlmmMinSize {
		return nil, false
	}

	mintX := readPubkey(data, dlmmMintXOff)
	mintY := readPubkey(data, dlmmMintYOff)
	if !validMint(mintX) || !validMint(mintY) {
		return nil, false
	}

	base, quote, _, _ := orientPair(mintX, mintY, 0, 0)
	reserveX := readPubkey(data, dlmmReserveXOff)
	reserveY := readPubkey(data, dlmmReserveYOff)
	if base != mintX {
		reserveX, reserveY = reserveY, reserveX
	}

	d.logger.Debug("Decoded Meteora DLMM pair",
		zap.String("pool", pool.String()),
		zap.String("base_mint", base.String()),
		zap.Uint64("slot", slot))

	return &types.PoolSnapshot{
		DEX:         types.DEXMeteoraDLMM,
		PoolAddress: pool,
		BaseMint:    base,
		QuoteMint:   quote,
		Slot:        slot,
		ObservedAt:  now,
		Enriched: types.EnrichedData{
			BaseVault:  reserveX,
			QuoteVault: reserveY,
		},
	}, true
}
