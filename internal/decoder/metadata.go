// =====================================
// File: internal/decoder/metadata.go
// =====================================
package decoder

import (
	"encoding/binary"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/solwatch/solwatch/internal/types"
)

// Legacy metadata PDA layout constants.
const (
	metaKeyMetadataV1 = 0
	metaKeyMetadataV4 = 4
	metaMintOff       = 33
	metaNameLenOff    = 65
	metaMaxNameLen    = 32
	metaMaxSymbolLen  = 10
)

// DecodeLegacyMetadata parses a Metaplex metadata PDA account into a
// (mint, name, symbol) triple. Malformed accounts return ok=false.
func (d *Decoder) DecodeLegacyMetadata(data []byte, now time.Time) (types.TokenMetadata, bool) {
	if len(data) < metaNameLenOff+4 {
		return types.TokenMetadata{}, false
	}
	if data[0] != metaKeyMetadataV1 && data[0] != metaKeyMetadataV4 {
		return types.TokenMetadata{}, false
	}

	mint := readPubkey(data, metaMintOff)
	if !validMint(mint) && mint != types.WSOLMint {
		return types.TokenMetadata{}, false
	}

	name, next, ok := readPrefixedString(data, metaNameLenOff, metaMaxNameLen)
	if !ok {
		return types.TokenMetadata{}, false
	}
	symbol, _, ok := readPrefixedString(data, next, metaMaxSymbolLen)
	if !ok {
		return types.TokenMetadata{}, false
	}

	d.logger.Debug("Decoded legacy metadata",
		zap.String("mint", mint.String()),
		zap.String("symbol", symbol))

	return types.TokenMetadata{Mint: mint, Name: name, Symbol: symbol, CachedAt: now}, true
}

// Token-2022 mint with an embedded metadata extension: a TLV stream
// starting at offset 83, extension type 12 carries the metadata.
const (
	mint2022MinSize    = 200
	mint2022TLVOff     = 83
	metadataPointerTLV = 12
)

// DecodeMintMetadata walks the Token-2022 extension TLV stream of a
// mint account and extracts the embedded metadata, if any.
func (d *Decoder) DecodeMintMetadata(mint solana.PublicKey, data []byte, now time.Time) (types.TokenMetadata, bool) {
	if len(data) < mint2022MinSize {
		return types.TokenMetadata{}, false
	}

	offset := mint2022TLVOff
	for offset+4 <= len(data) {
		extType := binary.LittleEndian.Uint16(data[offset : offset+2])
		extLen := int(binary.LittleEndian.Uint16(data[offset+2 : offset+4]))
		offset += 4
		if offset+extLen > len(data) {
			return types.TokenMetadata{}, false
		}
		if extType != metadataPointerTLV {
			offset += extLen
			continue
		}

		payload := data[offset : offset+extLen]
		// 32 bytes update authority, 32 bytes mint, then the three
		// length-prefixed strings: name, symbol, uri.
		if len(payload) < 64+4 {
			return types.TokenMetadata{}, false
		}
		embeddedMint := readPubkey(payload, 32)

		name, next, ok := readPrefixedString(payload, 64, metaMaxNameLen)
		if !ok {
			return types.TokenMetadata{}, false
		}
		symbol, _, ok := readPrefixedString(payload, next, metaMaxSymbolLen)
		if !ok {
			return types.TokenMetadata{}, false
		}

		out := mint
		if out.IsZero() {
			out = embeddedMint
		}

		d.logger.Debug("Decoded token-2022 embedded metadata",
			zap.String("mint", out.String()),
			zap.String("symbol", symbol))

		return types.TokenMetadata{Mint: out, Name: name, Symbol: symbol, CachedAt: now}, true
	}

	return types.TokenMetadata{}, false
}

// readPrefixedString reads a u32 length followed by that many UTF-8
// bytes, trims NULs and outer whitespace, and returns the offset just
// past the string. Lengths outside [1, maxLen] are rejected.
func readPrefixedString(data []byte, offset, maxLen int) (string, int, bool) {
	if offset+4 > len(data) {
		return "", 0, false
	}
	strLen := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
	if strLen < 1 || strLen > maxLen {
		return "", 0, false
	}
	offset += 4
	if offset+strLen > len(data) {
		return "", 0, false
	}
	raw := data[offset : offset+strLen]
	if !utf8.Valid(raw) {
		return "", 0, false
	}
	s := strings.TrimSpace(strings.Trim(string(raw), "\x00"))
	return s, offset + strLen, true
}
