// =========================================
// File: internal/decoder/decoder_test.go
// =========================================
package decoder

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/solwatch/solwatch/internal/types"
)

func testKey(b byte) solana.PublicKey {
	var key solana.PublicKey
	key[0] = b
	key[31] = b
	return key
}

func putKey(data []byte, offset int, key solana.PublicKey) {
	copy(data[offset:offset+32], key[:])
}

func newTestDecoder() *Decoder {
	return New(zap.NewNop())
}

// curveBuffer builds a bonding-curve account with the given virtual
// reserves.
func curveBuffer(size int, virtualTokens, virtualSOL uint64, complete bool) []byte {
	data := make([]byte, size)
	copy(data, pumpCurveDiscriminator)
	if size < 48 {
		return data
	}
	binary.LittleEndian.PutUint64(data[8:16], virtualTokens)
	binary.LittleEndian.PutUint64(data[16:24], virtualSOL)
	binary.LittleEndian.PutUint64(data[24:32], virtualTokens/2)
	binary.LittleEndian.PutUint64(data[32:40], virtualSOL/2)
	binary.LittleEndian.PutUint64(data[40:48], 1_000_000_000_000)
	if complete && size > 48 {
		data[48] = 1
	}
	return data
}

func TestDecodePumpFunSizeBoundary(t *testing.T) {
	d := newTestDecoder()
	pool := testKey(1)
	now := time.Now()

	_, ok := d.Decode(types.DEXPumpFun, pool, curveBuffer(150, 1e12, 45e9, false), 10, now)
	assert.False(t, ok, "150 bytes is below the account size")

	snap, ok := d.Decode(types.DEXPumpFun, pool, curveBuffer(151, 1e12, 45e9, false), 10, now)
	require.True(t, ok)
	assert.Equal(t, types.DEXPumpFun, snap.DEX)
	assert.Equal(t, types.WSOLMint, snap.QuoteMint)
	assert.InDelta(t, 45.0, snap.Enriched.LiquiditySOL, 1e-9)

	_, ok = d.Decode(types.DEXPumpFun, pool, curveBuffer(152, 1e12, 45e9, false), 10, now)
	assert.False(t, ok, "the bonding-curve account is exactly 151 bytes")
}

func TestDecodePumpFunBadDiscriminator(t *testing.T) {
	d := newTestDecoder()
	data := curveBuffer(151, 1e12, 45e9, false)
	data[0] ^= 0xFF

	_, ok := d.Decode(types.DEXPumpFun, testKey(1), data, 10, time.Now())
	assert.False(t, ok)
}

func TestDecodePumpFunSanityWindow(t *testing.T) {
	d := newTestDecoder()
	pool := testKey(1)
	now := time.Now()

	tests := []struct {
		name       string
		virtualSOL uint64
		want       bool
	}{
		{"at lower bound", 1e9, false},
		{"just above lower bound", 1_100_000_000, true},
		{"mid window", 45e9, true},
		{"at upper bound", 100e9, false},
		{"above upper bound", 500e9, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := d.Decode(types.DEXPumpFun, pool, curveBuffer(151, 1e12, tt.virtualSOL, false), 10, now)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestDecodePumpFunPrice(t *testing.T) {
	d := newTestDecoder()

	// 30 virtual SOL against 1e9 whole tokens (1e15 raw at 6 decimals).
	snap, ok := d.Decode(types.DEXPumpFun, testKey(1), curveBuffer(151, 1e15, 30e9, true), 10, time.Now())
	require.True(t, ok)
	assert.InDelta(t, 30.0/1e9, snap.Enriched.PriceSOLPerToken, 1e-15)
	assert.True(t, snap.Enriched.Complete)
}

func cpmmBuffer(mint0, mint1 solana.PublicKey, amount0, amount1 uint64) []byte {
	data := make([]byte, cpmmMinSize)
	putKey(data, cpmmMint0Off, mint0)
	putKey(data, cpmmMint1Off, mint1)
	putKey(data, cpmmLPMintOff, testKey(9))
	putKey(data, cpmmBaseVaultOff, testKey(10))
	putKey(data, cpmmQuoteVltOff, testKey(11))
	binary.LittleEndian.PutUint64(data[cpmmToken0Off:cpmmToken0Off+8], amount0)
	binary.LittleEndian.PutUint64(data[cpmmToken1Off:cpmmToken1Off+8], amount1)
	return data
}

func TestDecodeRaydiumCPMM(t *testing.T) {
	d := newTestDecoder()
	token := testKey(2)

	// Token on side 0, wSOL on side 1: orientation keeps token as base.
	snap, ok := d.Decode(types.DEXRaydiumCPMM, testKey(1),
		cpmmBuffer(token, types.WSOLMint, 5_000_000_000, 12_000_000_000), 42, time.Now())
	require.True(t, ok)

	assert.Equal(t, token, snap.BaseMint)
	assert.Equal(t, types.WSOLMint, snap.QuoteMint)
	assert.InDelta(t, 12.0, snap.Enriched.LiquiditySOL, 1e-9)
	// (12e9/1e9) / (5e9/1e6) = 12 / 5000
	assert.InDelta(t, 12.0/5000.0, snap.Enriched.PriceSOLPerToken, 1e-12)
	assert.Equal(t, testKey(10), snap.Enriched.BaseVault)
	assert.Equal(t, testKey(11), snap.Enriched.QuoteVault)
}

func TestDecodeRaydiumCPMMOrientsWSOLToQuote(t *testing.T) {
	d := newTestDecoder()
	token := testKey(2)

	// wSOL on side 0: sides and vaults must swap.
	snap, ok := d.Decode(types.DEXRaydiumCPMM, testKey(1),
		cpmmBuffer(types.WSOLMint, token, 12_000_000_000, 5_000_000_000), 42, time.Now())
	require.True(t, ok)

	assert.Equal(t, token, snap.BaseMint)
	assert.Equal(t, types.WSOLMint, snap.QuoteMint)
	assert.InDelta(t, 12.0, snap.Enriched.LiquiditySOL, 1e-9)
	assert.Equal(t, testKey(11), snap.Enriched.BaseVault)
	assert.Equal(t, testKey(10), snap.Enriched.QuoteVault)
}

func TestDecodeRaydiumCPMMRejectsInvalidMint(t *testing.T) {
	d := newTestDecoder()

	_, ok := d.Decode(types.DEXRaydiumCPMM, testKey(1),
		cpmmBuffer(solana.PublicKey{}, types.WSOLMint, 1, 1), 42, time.Now())
	assert.False(t, ok, "zeroed mint must be rejected")
}

func TestDecodeRaydiumAMMv4LiquidityUnknown(t *testing.T) {
	d := newTestDecoder()
	token := testKey(3)

	data := make([]byte, ammV4MinSize)
	putKey(data, ammV4BaseMintOff, token)
	putKey(data, ammV4QuoteMintOff, types.WSOLMint)
	putKey(data, ammV4LPMintOff, testKey(9))
	putKey(data, ammV4CoinVaultOff, testKey(10))
	putKey(data, ammV4PcVaultOff, testKey(11))

	snap, ok := d.Decode(types.DEXRaydiumAMMv4, testKey(1), data, 7, time.Now())
	require.True(t, ok)
	assert.Equal(t, token, snap.BaseMint)
	assert.Zero(t, snap.Enriched.LiquiditySOL, "reserves live in the vaults, unknown at discovery")
	assert.Equal(t, testKey(10), snap.Enriched.BaseVault)
	assert.Equal(t, testKey(11), snap.Enriched.QuoteVault)
}

func whirlpoolBuffer(mintA, mintB solana.PublicKey, sqrtPriceX64 uint64) []byte {
	data := make([]byte, whirlMinSize)
	putKey(data, whirlMintAOff, mintA)
	putKey(data, whirlMintBOff, mintB)
	putKey(data, whirlVaultAOff, testKey(10))
	putKey(data, whirlVaultBOff, testKey(11))
	binary.LittleEndian.PutUint64(data[whirlSqrtPriceOff:whirlSqrtPriceOff+8], sqrtPriceX64)
	return data
}

func TestDecodeWhirlpoolZeroSqrtPrice(t *testing.T) {
	d := newTestDecoder()

	snap, ok := d.Decode(types.DEXOrcaWhirl, testKey(1),
		whirlpoolBuffer(testKey(2), types.WSOLMint, 0), 5, time.Now())
	require.True(t, ok)
	assert.Zero(t, snap.Enriched.PriceSOLPerToken)
}

func TestDecodeWhirlpoolPrice(t *testing.T) {
	d := newTestDecoder()

	// sqrtPrice lo-word 2^63 means sqrt = 0.5, raw price = 0.25, then
	// the 1e6/1e9 decimal correction.
	snap, ok := d.Decode(types.DEXOrcaWhirl, testKey(1),
		whirlpoolBuffer(testKey(2), types.WSOLMint, 1<<63), 5, time.Now())
	require.True(t, ok)
	assert.InDelta(t, 0.25*1e-3, snap.Enriched.PriceSOLPerToken, 1e-12)
	assert.Equal(t, testKey(2), snap.BaseMint)
}

func TestDecodeMeteoraDLMM(t *testing.T) {
	d := newTestDecoder()
	token := testKey(4)

	data := make([]byte, dlmmMinSize)
	putKey(data, dlmmMintXOff, types.WSOLMint)
	putKey(data, dlmmMintYOff, token)
	putKey(data, dlmmReserveXOff, testKey(10))
	putKey(data, dlmmReserveYOff, testKey(11))

	snap, ok := d.Decode(types.DEXMeteoraDLMM, testKey(1), data, 3, time.Now())
	require.True(t, ok)
	assert.Equal(t, token, snap.BaseMint)
	assert.Equal(t, types.WSOLMint, snap.QuoteMint)
	// wSOL was on the X side, so the reserve vaults swap with it.
	assert.Equal(t, testKey(11), snap.Enriched.BaseVault)
	assert.Equal(t, testKey(10), snap.Enriched.QuoteVault)
}

func TestDecodeMeteoraDLMMShortBuffer(t *testing.T) {
	d := newTestDecoder()
	_, ok := d.Decode(types.DEXMeteoraDLMM, testKey(1), make([]byte, dlmmMinSize-1), 3, time.Now())
	assert.False(t, ok)
}

func metadataBuffer(mint solana.PublicKey, name, symbol string) []byte {
	data := make([]byte, 200)
	data[0] = metaKeyMetadataV4
	putKey(data, metaMintOff, mint)
	off := metaNameLenOff
	binary.LittleEndian.PutUint32(data[off:off+4], uint32(len(name)))
	off += 4
	copy(data[off:], name)
	off += len(name)
	binary.LittleEndian.PutUint32(data[off:off+4], uint32(len(symbol)))
	off += 4
	copy(data[off:], symbol)
	return data
}

func TestDecodeLegacyMetadata(t *testing.T) {
	d := newTestDecoder()
	mint := testKey(5)

	md, ok := d.DecodeLegacyMetadata(metadataBuffer(mint, "My Token\x00\x00", "MTK\x00"), time.Now())
	require.True(t, ok)
	assert.Equal(t, mint, md.Mint)
	assert.Equal(t, "My Token", md.Name, "NUL padding must be trimmed")
	assert.Equal(t, "MTK", md.Symbol)
}

func TestDecodeLegacyMetadataRejects(t *testing.T) {
	d := newTestDecoder()
	now := time.Now()
	mint := testKey(5)

	t.Run("bad key byte", func(t *testing.T) {
		data := metadataBuffer(mint, "Name", "SYM")
		data[0] = 2
		_, ok := d.DecodeLegacyMetadata(data, now)
		assert.False(t, ok)
	})

	t.Run("zero-length name", func(t *testing.T) {
		data := metadataBuffer(mint, "", "SYM")
		_, ok := d.DecodeLegacyMetadata(data, now)
		assert.False(t, ok)
	})

	t.Run("name over 32 bytes", func(t *testing.T) {
		data := metadataBuffer(mint, "0123456789012345678901234567890123", "SYM")
		_, ok := d.DecodeLegacyMetadata(data, now)
		assert.False(t, ok)
	})

	t.Run("symbol over 10 bytes", func(t *testing.T) {
		data := metadataBuffer(mint, "Name", "WAYTOOLONGSYM")
		_, ok := d.DecodeLegacyMetadata(data, now)
		assert.False(t, ok)
	})

	t.Run("zero mint", func(t *testing.T) {
		data := metadataBuffer(solana.PublicKey{}, "Name", "SYM")
		_, ok := d.DecodeLegacyMetadata(data, now)
		assert.False(t, ok)
	})
}

func TestDecodeMintMetadataTLV(t *testing.T) {
	d := newTestDecoder()
	mint := testKey(6)

	payload := make([]byte, 0, 96)
	payload = append(payload, make([]byte, 32)...) // update authority
	payload = append(payload, mint[:]...)
	name := "Ext Token"
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(name)))
	payload = append(payload, lenBuf[:]...)
	payload = append(payload, name...)
	symbol := "EXT"
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(symbol)))
	payload = append(payload, lenBuf[:]...)
	payload = append(payload, symbol...)

	data := make([]byte, 300)
	off := mint2022TLVOff
	// Leading extension of another type, then the metadata extension.
	binary.LittleEndian.PutUint16(data[off:off+2], 3)
	binary.LittleEndian.PutUint16(data[off+2:off+4], 8)
	off += 4 + 8
	binary.LittleEndian.PutUint16(data[off:off+2], metadataPointerTLV)
	binary.LittleEndian.PutUint16(data[off+2:off+4], uint16(len(payload)))
	copy(data[off+4:], payload)

	md, ok := d.DecodeMintMetadata(mint, data, time.Now())
	require.True(t, ok)
	assert.Equal(t, mint, md.Mint)
	assert.Equal(t, "Ext Token", md.Name)
	assert.Equal(t, "EXT", md.Symbol)
}

func TestDecodeMintMetadataTooSmall(t *testing.T) {
	d := newTestDecoder()
	_, ok := d.DecodeMintMetadata(testKey(6), make([]byte, mint2022MinSize-1), time.Now())
	assert.False(t, ok)
}

func TestTokenAccountAmount(t *testing.T) {
	data := make([]byte, tokenAccountMinSize)
	binary.LittleEndian.PutUint64(data[tokenAmountOff:tokenAmountOff+8], 123456789)

	amount, ok := TokenAccountAmount(data)
	require.True(t, ok)
	assert.Equal(t, uint64(123456789), amount)

	_, ok = TokenAccountAmount(data[:tokenAccountMinSize-1])
	assert.False(t, ok)
}

func TestDeriveLiquiditySOL(t *testing.T) {
	token := testKey(2)

	tests := []struct {
		name     string
		quote    solana.PublicKey
		baseRes  uint64
		quoteRes uint64
		want     float64
	}{
		{"wsol quote", types.WSOLMint, 1, 3_500_000_000, 3.5},
		{"usdc quote", types.USDCMint, 1, 250_000_000, 250},
		{"usdt quote", types.USDTMint, 1, 90_000_000, 90},
		{"exotic pair", testKey(7), 1e12, 1e12, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := deriveLiquiditySOL(token, tt.quote, tt.baseRes, tt.quoteRes)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestDeriveLiquiditySOLCap(t *testing.T) {
	got := deriveLiquiditySOL(testKey(2), testKey(7), 1<<62, 1<<62)
	assert.Equal(t, 100000.0, got)
}

func TestValidMint(t *testing.T) {
	assert.False(t, validMint(solana.PublicKey{}))
	assert.True(t, validMint(types.WSOLMint))
	assert.True(t, validMint(testKey(1)))

	// Nine leading zero bytes produce at least ten leading '1's.
	var almostZero solana.PublicKey
	almostZero[30] = 1
	assert.False(t, validMint(almostZero))
}
