// ====================================
// File: internal/decoder/decoder.go
// ====================================
package decoder

import (
	"math"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"github.com/solwatch/solwatch/internal/types"
)

// Decoder parses raw pool account bytes into normalized snapshots.
// Every method is pure over its inputs: a malformed buffer yields
// (nil, false), never an error and never a panic.
type Decoder struct {
	logger *zap.Logger
}

// New creates a pool account decoder.
func New(logger *zap.Logger) *Decoder {
	return &Decoder{logger: logger.Named("decoder")}
}

// Decode dispatches on the venue kind. The five layouts are known at
// compile time, so this is a plain switch rather than a method table.
func (d *Decoder) Decode(dex types.DEXKind, pool solana.PublicKey, data []byte, slot uint64, now time.Time) (*types.PoolSnapshot, bool) {
	switch dex {
	case types.DEXRaydiumCPMM:
		return d.decodeRaydiumCPMM(pool, data, slot, now)
	case types.DEXRaydiumAMMv4:
		return d.decodeRaydiumAMMv4(pool, data, slot, now)
	case types.DEXOrcaWhirl:
		return d.decodeWhirlpool(pool, data, slot, now)
	case types.DEXMeteoraDLMM:
		return d.decodeMeteoraDLMM(pool, data, slot, now)
	case types.DEXPumpFun:
		return d.decodePumpFun(pool, data, slot, now)
	}
	return nil, false
}

// readPubkey copies 32 bytes at offset into a PublicKey. The caller
// guarantees the buffer is long enough.
func readPubkey(data []byte, offset int) solana.PublicKey {
	var key solana.PublicKey
	copy(key[:], data[offset:offset+32])
	return key
}

// validMint rejects the reserved sentinels: the system program address
// (all '1's in base-58) and any address whose base-58 form starts with
// ten '1' characters. Wrapped SOL is a valid mint.
func validMint(mint solana.PublicKey) bool {
	if mint.IsZero() {
		return false
	}
	return !strings.HasPrefix(base58.Encode(mint[:]), "1111111111")
}

// isQuoteMint reports whether the mint is one of the conventional pair
// denominators (wSOL, USDC, USDT).
func isQuoteMint(mint solana.PublicKey) bool {
	return mint == types.WSOLMint || mint == types.USDCMint || mint == types.USDTMint
}

// isStableMint reports whether the mint is a 6-decimal dollar stable.
func isStableMint(mint solana.PublicKey) bool {
	return mint == types.USDCMint || mint == types.USDTMint
}

// orientPair puts the quote mint (wSOL or a stablecoin) on the quote
// side. When neither side is a recognised quote the original order is
// kept.
func orientPair(mint0, mint1 solana.PublicKey, res0, res1 uint64) (base, quote solana.PublicKey, baseRes, quoteRes uint64) {
	if isQuoteMint(mint0) && !isQuoteMint(mint1) {
		return mint1, mint0, res1, res0
	}
	return mint0, mint1, res0, res1
}

// deriveLiquiditySOL converts pool reserves into the SOL-denominated
// liquidity axis. wSOL quote: lamports / 1e9. Stablecoin quote: raw
// units / 1e6, treated as USD-adjusted SOL for scale. Anything else is
// the geometric-mean estimate capped at 100000.
func deriveLiquiditySOL(base, quote solana.PublicKey, baseRes, quoteRes uint64) float64 {
	switch {
	case quote == types.WSOLMint:
		return float64(quoteRes) / 1e9
	case isStableMint(quote):
		return float64(quoteRes) / 1e6
	default:
		est := math.Sqrt(float64(baseRes)*float64(quoteRes)) / 1e11
		if est > 100000 {
			est = 100000
		}
		return est
	}
}

// sanitizePrice rewrites NaN and Inf to 0 and clamps negatives away.
func sanitizePrice(price float64) float64 {
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return 0
	}
	return price
}
