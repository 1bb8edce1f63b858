// ===================================
// File: internal/tracker/tracker.go
// ===================================
package tracker

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/solwatch/solwatch/internal/decoder"
	"github.com/solwatch/solwatch/internal/telemetry"
	"github.com/solwatch/solwatch/internal/types"
)

// Cache bounds.
const (
	seenKeysCap        = 50000
	launchpadMintsCap  = 10000
	launchpadMaxAge    = 2 * time.Hour
	vaultMapCap        = 10000
	vaultEvictBatch    = 1000
	pendingCurvesCap   = 10000
	pendingCurveMaxAge = 30 * time.Second
)

// Minimum relative price move before a tracked position emits an
// update.
const priceMoveThreshold = 0.001

// VaultSide marks which side of a pool a vault belongs to.
type VaultSide string

const (
	VaultSideBase  VaultSide = "base"
	VaultSideQuote VaultSide = "quote"
)

// VaultRef ties a subscribed vault account back to its pool.
type VaultRef struct {
	Pool solana.PublicKey
	Side VaultSide
	Mint solana.PublicKey
}

// Subscriber is the slice of the subscription manager the tracker
// needs: additive vault and position subscriptions.
type Subscriber interface {
	SubscribeVaults(pool, baseVault, quoteVault solana.PublicKey) error
	SubscribePool(pool solana.PublicKey) error
}

// position is one tracked pool in position-tracking mode.
type position struct {
	token     solana.PublicKey
	dex       types.DEXKind
	lastPrice float64
}

// poolReserves mirrors the latest vault balances of an AMM pool.
type poolReserves struct {
	base, quote   solana.PublicKey
	baseAmount    uint64
	quoteAmount   uint64
	haveBase      bool
	haveQuote     bool
	liquiditySOL  float64
}

type pendingCurve struct {
	snapshot types.PoolSnapshot
	added    time.Time
}

// Tracker owns the discovery-path state: dedup, graduation detection,
// vault bookkeeping and position tracking. All maps are bounded and
// confined behind one mutex.
type Tracker struct {
	mu      sync.Mutex
	logger  *zap.Logger
	metrics *telemetry.Metrics
	subs    Subscriber
	now     func() time.Time

	seen           *boundedSet
	launchpadMints *orderedMap[solana.PublicKey, time.Time]
	curveToMint    *orderedMap[solana.PublicKey, solana.PublicKey]
	pendingCurves  *orderedMap[solana.PublicKey, pendingCurve]
	vaults         *orderedMap[solana.PublicKey, VaultRef]
	reserves       map[solana.PublicKey]*poolReserves
	positions      map[solana.PublicKey]*position
}

// New creates a tracker wired to the given subscription manager.
func New(subs Subscriber, metrics *telemetry.Metrics, logger *zap.Logger) *Tracker {
	return &Tracker{
		logger:         logger.Named("tracker"),
		metrics:        metrics,
		subs:           subs,
		now:            time.Now,
		seen:           newBoundedSet(seenKeysCap),
		launchpadMints: newOrderedMap[solana.PublicKey, time.Time](launchpadMintsCap, launchpadMintsCap/2),
		curveToMint:    newOrderedMap[solana.PublicKey, solana.PublicKey](launchpadMintsCap, launchpadMintsCap/2),
		pendingCurves:  newOrderedMap[solana.PublicKey, pendingCurve](pendingCurvesCap, pendingCurvesCap/2),
		vaults:         newOrderedMap[solana.PublicKey, VaultRef](vaultMapCap, vaultEvictBatch),
		reserves:       make(map[solana.PublicKey]*poolReserves),
		positions:      make(map[solana.PublicKey]*position),
	}
}

// SetClock replaces the time source; used by tests and the simulated
// clock path.
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

func dedupKey(dex types.DEXKind, base, quote solana.PublicKey) string {
	return fmt.Sprintf("%s|%s|%s", dex, base, quote)
}

// Observe runs one decoded snapshot through the discovery path and
// returns zero or more events ready for metadata correlation.
// Tracked pools take the position path and deliberately bypass the
// seen-keys dedup.
func (t *Tracker) Observe(snap types.PoolSnapshot) []types.PoolEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	if pos, ok := t.positions[snap.PoolAddress]; ok {
		if ev := t.positionUpdate(pos, snap); ev != nil {
			return []types.PoolEvent{*ev}
		}
		return nil
	}

	if snap.DEX == types.DEXPumpFun {
		return t.observeCurve(snap)
	}
	return t.observeAMM(snap)
}

// observeCurve handles a pump.fun bonding-curve account. The layout
// carries no mint; it must come from the registered PDA mapping, and
// events with no resolvable mint never leave the system.
func (t *Tracker) observeCurve(snap types.PoolSnapshot) []types.PoolEvent {
	mint, ok := t.curveToMint.Get(snap.PoolAddress)
	if !ok {
		t.pendingCurves.Put(snap.PoolAddress, pendingCurve{snapshot: snap, added: t.now()})
		return nil
	}
	snap.BaseMint = mint
	return t.completeCurve(snap)
}

func (t *Tracker) completeCurve(snap types.PoolSnapshot) []types.PoolEvent {
	if _, seen := t.launchpadMints.Get(snap.BaseMint); !seen {
		t.launchpadMints.Put(snap.BaseMint, t.now())
	}

	key := dedupKey(snap.DEX, snap.BaseMint, snap.QuoteMint)
	if t.seen.Contains(key) {
		t.metrics.DedupHits.Inc()
		return nil
	}
	t.seen.Add(key)

	t.logger.Info("New launchpad curve",
		zap.String("mint", snap.BaseMint.String()),
		zap.Float64("liquidity_sol", snap.Enriched.LiquiditySOL))

	return []types.PoolEvent{{Kind: types.EventNewPool, Snapshot: snap}}
}

// observeAMM handles the four AMM venues: dedup, graduation check and
// vault subscription.
func (t *Tracker) observeAMM(snap types.PoolSnapshot) []types.PoolEvent {
	key := dedupKey(snap.DEX, snap.BaseMint, snap.QuoteMint)
	if t.seen.Contains(key) {
		t.metrics.DedupHits.Inc()
		return nil
	}
	t.seen.Add(key)

	event := types.PoolEvent{Kind: types.EventNewPool, Snapshot: snap}
	if firstSeen, ok := t.launchpadMints.Get(snap.BaseMint); ok {
		event.Kind = types.EventGraduation
		event.GraduatedFrom = types.DEXPumpFun
		event.BondingCurveDuration = uint64(t.now().Sub(firstSeen).Milliseconds())
		t.logger.Info("Launchpad graduation",
			zap.String("mint", snap.BaseMint.String()),
			zap.String("dex", string(snap.DEX)),
			zap.Uint64("bonding_curve_ms", event.BondingCurveDuration))
	}

	t.registerVaults(snap)
	return []types.PoolEvent{event}
}

// registerVaults records the pool's vault accounts and asks the
// subscription manager to watch them.
func (t *Tracker) registerVaults(snap types.PoolSnapshot) {
	baseVault := snap.Enriched.BaseVault
	quoteVault := snap.Enriched.QuoteVault
	if baseVault.IsZero() || quoteVault.IsZero() {
		return
	}

	t.vaults.Put(baseVault, VaultRef{Pool: snap.PoolAddress, Side: VaultSideBase, Mint: snap.BaseMint})
	t.vaults.Put(quoteVault, VaultRef{Pool: snap.PoolAddress, Side: VaultSideQuote, Mint: snap.QuoteMint})
	t.reserves[snap.PoolAddress] = &poolReserves{
		base:         snap.BaseMint,
		quote:        snap.QuoteMint,
		liquiditySOL: snap.Enriched.LiquiditySOL,
	}

	if err := t.subs.SubscribeVaults(snap.PoolAddress, baseVault, quoteVault); err != nil {
		t.logger.Warn("Vault subscription failed",
			zap.String("pool", snap.PoolAddress.String()),
			zap.Error(err))
	}
}

// RegisterMint stores the ["bonding-curve", mint] PDA mapping for a
// newly observed launchpad mint and completes any bonding-curve
// account that arrived before its mint.
func (t *Tracker) RegisterMint(mint solana.PublicKey) []types.PoolEvent {
	curve, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("bonding-curve"), mint.Bytes()},
		types.PumpFunProgram,
	)
	if err != nil {
		t.logger.Warn("Bonding curve PDA derivation failed",
			zap.String("mint", mint.String()), zap.Error(err))
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.curveToMint.Put(curve, mint)

	pending, ok := t.pendingCurves.Get(curve)
	if !ok {
		return nil
	}
	t.pendingCurves.Delete(curve)
	if t.now().Sub(pending.added) > pendingCurveMaxAge {
		return nil
	}
	snap := pending.snapshot
	snap.BaseMint = mint
	return t.completeCurve(snap)
}

// HandleVaultUpdate applies an SPL token balance change to its pool's
// reserve record and recomputes liquidity. When the pool is a tracked
// position a reserve-derived price update may be returned.
func (t *Tracker) HandleVaultUpdate(vault solana.PublicKey, data []byte, slot uint64) *types.PoolEvent {
	amount, ok := decoder.TokenAccountAmount(data)
	if !ok {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	ref, ok := t.vaults.Get(vault)
	if !ok {
		return nil
	}
	res, ok := t.reserves[ref.Pool]
	if !ok {
		res = &poolReserves{base: ref.Mint}
		t.reserves[ref.Pool] = res
	}
	switch ref.Side {
	case VaultSideBase:
		res.baseAmount, res.haveBase = amount, true
	case VaultSideQuote:
		res.quoteAmount, res.haveQuote = amount, true
	}
	t.metrics.VaultUpdates.Inc()

	if res.haveBase && res.haveQuote {
		res.liquiditySOL = deriveVaultLiquidity(res)
	}

	pos, tracked := t.positions[ref.Pool]
	if !tracked || !res.haveBase || !res.haveQuote || res.baseAmount == 0 {
		return nil
	}

	price := (float64(res.quoteAmount) / 1e9) / (float64(res.baseAmount) / 1e6)
	if math.IsNaN(price) || math.IsInf(price, 0) {
		price = 0
	}
	return t.maybePriceEvent(pos, ref.Pool, price, res.liquiditySOL, slot)
}

// deriveVaultLiquidity mirrors the decoder's AMM liquidity rules over
// vault-observed reserves.
func deriveVaultLiquidity(res *poolReserves) float64 {
	switch {
	case res.quote == types.WSOLMint:
		return float64(res.quoteAmount) / 1e9
	case res.quote == types.USDCMint || res.quote == types.USDTMint:
		return float64(res.quoteAmount) / 1e6
	default:
		est := math.Sqrt(float64(res.baseAmount)*float64(res.quoteAmount)) / 1e11
		if est > 100000 {
			est = 100000
		}
		return est
	}
}

// AddPositionTracking watches a pool for price moves and requests a
// per-account subscription for it.
func (t *Tracker) AddPositionTracking(pool, token solana.PublicKey, dex types.DEXKind) error {
	t.mu.Lock()
	t.positions[pool] = &position{token: token, dex: dex}
	t.mu.Unlock()

	t.logger.Info("Position tracking added",
		zap.String("pool", pool.String()),
		zap.String("token", token.String()),
		zap.String("dex", string(dex)))
	return t.subs.SubscribePool(pool)
}

// RemovePositionTracking drops the entry; the upstream needs no
// explicit unsubscribe.
func (t *Tracker) RemovePositionTracking(pool solana.PublicKey) {
	t.mu.Lock()
	delete(t.positions, pool)
	t.mu.Unlock()
	t.logger.Info("Position tracking removed", zap.String("pool", pool.String()))
}

// positionUpdate re-derives the price from a fresh snapshot of a
// tracked pool.
func (t *Tracker) positionUpdate(pos *position, snap types.PoolSnapshot) *types.PoolEvent {
	return t.maybePriceEvent(pos, snap.PoolAddress, snap.Enriched.PriceSOLPerToken, snap.Enriched.LiquiditySOL, snap.Slot)
}

// maybePriceEvent emits only when the move clears the 0.1% threshold
// relative to the last emitted price.
func (t *Tracker) maybePriceEvent(pos *position, pool solana.PublicKey, price, liquidity float64, slot uint64) *types.PoolEvent {
	if price <= 0 {
		return nil
	}
	if pos.lastPrice > 0 {
		if math.Abs(price-pos.lastPrice)/pos.lastPrice < priceMoveThreshold {
			return nil
		}
	}
	pos.lastPrice = price

	return &types.PoolEvent{
		Kind: types.EventPriceUpdate,
		Snapshot: types.PoolSnapshot{
			DEX:         pos.dex,
			PoolAddress: pool,
			BaseMint:    pos.token,
			QuoteMint:   types.WSOLMint,
			Slot:        slot,
			ObservedAt:  t.now(),
			Enriched: types.EnrichedData{
				PriceSOLPerToken: price,
				LiquiditySOL:     liquidity,
			},
		},
	}
}

// Sweep evicts aged launchpad mints (2 h) and stale pending curves
// (30 s). Called periodically by the monitor.
func (t *Tracker) Sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	aged := t.launchpadMints.DeleteWhere(func(_ solana.PublicKey, firstSeen time.Time) bool {
		return now.Sub(firstSeen) > launchpadMaxAge
	})
	stale := t.pendingCurves.DeleteWhere(func(_ solana.PublicKey, p pendingCurve) bool {
		return now.Sub(p.added) > pendingCurveMaxAge
	})
	if aged > 0 || stale > 0 {
		t.logger.Debug("Tracker sweep",
			zap.Int("aged_mints", aged),
			zap.Int("stale_curves", stale))
	}
}

// IsVault reports whether the account is one of the subscribed pool
// vaults.
func (t *Tracker) IsVault(account solana.PublicKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.vaults.Get(account)
	return ok
}

// IsTracked reports whether the pool is in position-tracking mode.
func (t *Tracker) IsTracked(pool solana.PublicKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.positions[pool]
	return ok
}

// Stats returns cache occupancy for diagnostics.
func (t *Tracker) Stats() map[string]interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return map[string]interface{}{
		"seen_keys":       t.seen.Len(),
		"launchpad_mints": t.launchpadMints.Len(),
		"curve_mappings":  t.curveToMint.Len(),
		"pending_curves":  t.pendingCurves.Len(),
		"vaults":          t.vaults.Len(),
		"positions":       len(t.positions),
	}
}
