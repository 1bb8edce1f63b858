// ======================================
// File: internal/decoder/spl_token.go
// ======================================
package decoder

import "encoding/binary"

// SPL token account layout: mint (32), owner (32), amount u64 at 64.
const (
	tokenAccountMinSize = 72
	tokenAmountOff      = 64
)

// TokenAccountAmount reads the raw balance of an SPL token account.
func TokenAccountAmount(data []byte) (uint64, bool) {
	if len(data) < tokenAccountMinSize {
		return 0, false
	}
	return binary.LittleEndian.Uint64(data[tokenAmountOff : tokenAmountOff+8]), true
}
