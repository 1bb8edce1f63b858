// =================================
// File: internal/types/types.go
// =================================
package types

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// DEXKind identifies one of the supported pool venues.
type DEXKind string

const (
	DEXRaydiumCPMM  DEXKind = "raydium_cpmm"
	DEXRaydiumAMMv4 DEXKind = "raydium_ammv4"
	DEXOrcaWhirl    DEXKind = "orca_whirlpool"
	DEXMeteoraDLMM  DEXKind = "meteora_dlmm"
	DEXPumpFun      DEXKind = "pumpfun"
)

// AllDEXKinds lists every supported venue in a stable order.
var AllDEXKinds = []DEXKind{
	DEXRaydiumCPMM,
	DEXRaydiumAMMv4,
	DEXOrcaWhirl,
	DEXMeteoraDLMM,
	DEXPumpFun,
}

// Program IDs of the observed on-chain programs.
var (
	RaydiumCPMMProgram  = solana.MustPublicKeyFromBase58("CPMMoo8L3F4NbTegBCKVNunggL7H1ZpdTHKxQB5qKP1C")
	RaydiumAMMv4Program = solana.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
	OrcaWhirlProgram    = solana.MustPublicKeyFromBase58("whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc")
	MeteoraDLMMProgram  = solana.MustPublicKeyFromBase58("LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo")
	PumpFunProgram      = solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")

	MetadataProgram  = solana.MustPublicKeyFromBase58("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")
	TokenProgram     = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	Token2022Program = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
)

// Quote mints recognised for liquidity derivation.
var (
	WSOLMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	USDCMint = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	USDTMint = solana.MustPublicKeyFromBase58("Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB")
)

// ProgramForDEX returns the owner program of a venue's pool accounts.
func ProgramForDEX(dex DEXKind) solana.PublicKey {
	switch dex {
	case DEXRaydiumCPMM:
		return RaydiumCPMMProgram
	case DEXRaydiumAMMv4:
		return RaydiumAMMv4Program
	case DEXOrcaWhirl:
		return OrcaWhirlProgram
	case DEXMeteoraDLMM:
		return MeteoraDLMMProgram
	case DEXPumpFun:
		return PumpFunProgram
	}
	return solana.PublicKey{}
}

// DEXForProgram is the inverse of ProgramForDEX; ok is false for
// programs that do not own pool accounts.
func DEXForProgram(program solana.PublicKey) (DEXKind, bool) {
	switch program {
	case RaydiumCPMMProgram:
		return DEXRaydiumCPMM, true
	case RaydiumAMMv4Program:
		return DEXRaydiumAMMv4, true
	case OrcaWhirlProgram:
		return DEXOrcaWhirl, true
	case MeteoraDLMMProgram:
		return DEXMeteoraDLMM, true
	case PumpFunProgram:
		return DEXPumpFun, true
	}
	return "", false
}

// IsAMM reports whether the venue is an AMM-style pool rather than the
// bonding-curve launchpad.
func (d DEXKind) IsAMM() bool {
	return d != DEXPumpFun && d != ""
}

// EnrichedData carries the per-DEX optional fields of a snapshot.
type EnrichedData struct {
	LiquiditySOL float64 `json:"liquiditySol,omitempty"`

	Token0Amount uint64 `json:"token0Amount,omitempty"`
	Token1Amount uint64 `json:"token1Amount,omitempty"`

	// Bonding-curve fields (pump.fun only).
	VirtualSOLReserves   uint64 `json:"virtualSolReserves,omitempty"`
	VirtualTokenReserves uint64 `json:"virtualTokenReserves,omitempty"`
	RealSOLReserves      uint64 `json:"realSolReserves,omitempty"`
	RealTokenReserves    uint64 `json:"realTokenReserves,omitempty"`
	TokenSupply          uint64 `json:"tokenSupply,omitempty"`
	Complete             bool   `json:"complete,omitempty"`

	BaseVault  solana.PublicKey `json:"baseVault,omitempty"`
	QuoteVault solana.PublicKey `json:"quoteVault,omitempty"`
	LPMint     solana.PublicKey `json:"lpMint,omitempty"`

	PriceSOLPerToken float64 `json:"priceSolPerToken,omitempty"`
}

// PoolSnapshot is the normalized result of decoding one pool account
// update. Snapshots are values: created once, never mutated.
type PoolSnapshot struct {
	DEX         DEXKind          `json:"dex"`
	PoolAddress solana.PublicKey `json:"poolAddress"`
	BaseMint    solana.PublicKey `json:"baseMint"`
	QuoteMint   solana.PublicKey `json:"quoteMint"`
	Slot        uint64           `json:"slot"`
	ObservedAt  time.Time        `json:"observedAt"`
	Enriched    EnrichedData     `json:"enriched"`
}

// EventKind classifies an emitted pool event.
type EventKind string

const (
	EventNewPool     EventKind = "new_pool"
	EventGraduation  EventKind = "graduation"
	EventPriceUpdate EventKind = "price_update"
)

// PoolEvent is what leaves the system after metadata resolution.
type PoolEvent struct {
	Kind     EventKind    `json:"kind"`
	Snapshot PoolSnapshot `json:"snapshot"`

	TokenName   string `json:"tokenName,omitempty"`
	TokenSymbol string `json:"tokenSymbol,omitempty"`

	// Graduation-only fields.
	GraduatedFrom        DEXKind `json:"graduatedFrom,omitempty"`
	BondingCurveDuration uint64  `json:"bondingCurveDurationMs,omitempty"`
}

// TokenMetadata is one resolved (mint, name, symbol) triple.
type TokenMetadata struct {
	Mint     solana.PublicKey `json:"mint"`
	Name     string           `json:"name"`
	Symbol   string           `json:"symbol"`
	CachedAt time.Time        `json:"cachedAt"`
}
