// ========================================
// File: internal/tracker/tracker_test.go
// ========================================
package tracker

import (
	"encoding/binary"
	"fmt"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/solwatch/solwatch/internal/telemetry"
	"github.com/solwatch/solwatch/internal/types"
)

type fakeSubscriber struct {
	vaultCalls    int
	positionCalls int
	lastPool      solana.PublicKey
}

func (f *fakeSubscriber) SubscribeVaults(pool, baseVault, quoteVault solana.PublicKey) error {
	f.vaultCalls++
	f.lastPool = pool
	return nil
}

func (f *fakeSubscriber) SubscribePool(pool solana.PublicKey) error {
	f.positionCalls++
	return nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.now = c.now.Add(d)
	return c.now
}

func testKey(b byte) solana.PublicKey {
	var key solana.PublicKey
	key[0] = b
	key[31] = b
	return key
}

func newTestTracker() (*Tracker, *fakeSubscriber, *fakeClock) {
	subs := &fakeSubscriber{}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	tr := New(subs, telemetry.NewUnregistered(), zap.NewNop())
	tr.SetClock(clock.Now)
	return tr, subs, clock
}

func ammSnapshot(pool, base solana.PublicKey, dex types.DEXKind) types.PoolSnapshot {
	return types.PoolSnapshot{
		DEX:         dex,
		PoolAddress: pool,
		BaseMint:    base,
		QuoteMint:   types.WSOLMint,
		Slot:        100,
		Enriched: types.EnrichedData{
			LiquiditySOL: 12,
			BaseVault:    testKey(40),
			QuoteVault:   testKey(41),
		},
	}
}

func TestObserveDedupsPoolPairs(t *testing.T) {
	tr, subs, _ := newTestTracker()
	snap := ammSnapshot(testKey(1), testKey(2), types.DEXRaydiumCPMM)

	first := tr.Observe(snap)
	require.Len(t, first, 1)
	assert.Equal(t, types.EventNewPool, first[0].Kind)

	assert.Empty(t, tr.Observe(snap), "second observation must dedup")
	assert.Equal(t, 1, subs.vaultCalls, "vault subscription happens once")
}

func TestObserveSameMintDifferentDEX(t *testing.T) {
	tr, _, _ := newTestTracker()
	base := testKey(2)

	require.Len(t, tr.Observe(ammSnapshot(testKey(1), base, types.DEXRaydiumCPMM)), 1)
	require.Len(t, tr.Observe(ammSnapshot(testKey(3), base, types.DEXOrcaWhirl)), 1,
		"dedup key includes the venue")
}

func curveSnapshot(curve solana.PublicKey, liquidity float64) types.PoolSnapshot {
	return types.PoolSnapshot{
		DEX:         types.DEXPumpFun,
		PoolAddress: curve,
		QuoteMint:   types.WSOLMint,
		Enriched:    types.EnrichedData{LiquiditySOL: liquidity},
	}
}

func bondingCurveFor(t *testing.T, mint solana.PublicKey) solana.PublicKey {
	t.Helper()
	curve, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("bonding-curve"), mint.Bytes()},
		types.PumpFunProgram,
	)
	require.NoError(t, err)
	return curve
}

func TestCurveBeforeMintRegistration(t *testing.T) {
	tr, _, _ := newTestTracker()
	mint := testKey(5)
	curve := bondingCurveFor(t, mint)

	// The curve account arrives before its mint is known: buffered.
	assert.Empty(t, tr.Observe(curveSnapshot(curve, 31)))

	events := tr.RegisterMint(mint)
	require.Len(t, events, 1)
	assert.Equal(t, types.EventNewPool, events[0].Kind)
	assert.Equal(t, mint, events[0].Snapshot.BaseMint)
}

func TestPendingCurveExpires(t *testing.T) {
	tr, _, clock := newTestTracker()
	mint := testKey(5)
	curve := bondingCurveFor(t, mint)

	assert.Empty(t, tr.Observe(curveSnapshot(curve, 31)))
	clock.Advance(31 * time.Second)

	assert.Empty(t, tr.RegisterMint(mint), "stale pending curves never emit")
}

func TestMintBeforeCurve(t *testing.T) {
	tr, _, _ := newTestTracker()
	mint := testKey(5)
	curve := bondingCurveFor(t, mint)

	assert.Empty(t, tr.RegisterMint(mint))

	events := tr.Observe(curveSnapshot(curve, 31))
	require.Len(t, events, 1)
	assert.Equal(t, mint, events[0].Snapshot.BaseMint)

	assert.Empty(t, tr.Observe(curveSnapshot(curve, 31)), "curve dedups after first emission")
}

func TestGraduationCarriesCurveDuration(t *testing.T) {
	tr, _, clock := newTestTracker()
	mint := testKey(5)
	curve := bondingCurveFor(t, mint)

	tr.RegisterMint(mint)
	require.Len(t, tr.Observe(curveSnapshot(curve, 31)), 1)

	clock.Advance(90 * time.Second)
	events := tr.Observe(ammSnapshot(testKey(9), mint, types.DEXRaydiumCPMM))
	require.Len(t, events, 1)

	assert.Equal(t, types.EventGraduation, events[0].Kind)
	assert.Equal(t, types.DEXPumpFun, events[0].GraduatedFrom)
	assert.Equal(t, uint64(90_000), events[0].BondingCurveDuration)
}

func TestLaunchpadMintAgesOut(t *testing.T) {
	tr, _, clock := newTestTracker()
	mint := testKey(5)
	curve := bondingCurveFor(t, mint)

	tr.RegisterMint(mint)
	require.Len(t, tr.Observe(curveSnapshot(curve, 31)), 1)

	clock.Advance(2*time.Hour + time.Minute)
	tr.Sweep()

	events := tr.Observe(ammSnapshot(testKey(9), mint, types.DEXRaydiumCPMM))
	require.Len(t, events, 1)
	assert.Equal(t, types.EventNewPool, events[0].Kind,
		"after the age sweep the AMM pool is a plain discovery")
}

func tokenAccount(amount uint64) []byte {
	data := make([]byte, 72)
	binary.LittleEndian.PutUint64(data[64:72], amount)
	return data
}

func TestVaultUpdateRecomputesLiquidity(t *testing.T) {
	tr, _, _ := newTestTracker()
	snap := ammSnapshot(testKey(1), testKey(2), types.DEXRaydiumCPMM)
	require.Len(t, tr.Observe(snap), 1)

	require.True(t, tr.IsVault(testKey(40)))
	require.True(t, tr.IsVault(testKey(41)))

	assert.Nil(t, tr.HandleVaultUpdate(testKey(40), tokenAccount(5_000_000_000), 200))
	assert.Nil(t, tr.HandleVaultUpdate(testKey(41), tokenAccount(7_000_000_000), 201),
		"untracked pools update reserves without emitting")
}

func TestPositionPriceThreshold(t *testing.T) {
	tr, subs, _ := newTestTracker()
	pool, token := testKey(1), testKey(2)
	snap := ammSnapshot(pool, token, types.DEXRaydiumCPMM)
	require.Len(t, tr.Observe(snap), 1)

	require.NoError(t, tr.AddPositionTracking(pool, token, types.DEXRaydiumCPMM))
	assert.Equal(t, 1, subs.positionCalls)
	require.True(t, tr.IsTracked(pool))

	// First price fix always emits.
	require.Nil(t, tr.HandleVaultUpdate(testKey(40), tokenAccount(5_000_000_000), 200))
	ev := tr.HandleVaultUpdate(testKey(41), tokenAccount(10_000_000_000), 201)
	require.NotNil(t, ev)
	assert.Equal(t, types.EventPriceUpdate, ev.Kind)
	assert.Equal(t, uint64(201), ev.Snapshot.Slot, "price events carry the triggering slot")
	firstPrice := ev.Snapshot.Enriched.PriceSOLPerToken

	// A move below 0.1% is suppressed.
	assert.Nil(t, tr.HandleVaultUpdate(testKey(41), tokenAccount(10_005_000_000), 202))

	// A move above 0.1% emits against the last emitted price.
	ev = tr.HandleVaultUpdate(testKey(41), tokenAccount(10_020_000_000), 203)
	require.NotNil(t, ev)
	assert.Greater(t, ev.Snapshot.Enriched.PriceSOLPerToken, firstPrice)
	assert.Equal(t, uint64(203), ev.Snapshot.Slot)
}

func TestTrackedPoolSnapshotBypassesDedup(t *testing.T) {
	tr, _, _ := newTestTracker()
	pool, token := testKey(1), testKey(2)
	snap := ammSnapshot(pool, token, types.DEXRaydiumCPMM)
	snap.Enriched.PriceSOLPerToken = 0.002
	require.Len(t, tr.Observe(snap), 1)

	require.NoError(t, tr.AddPositionTracking(pool, token, types.DEXRaydiumCPMM))

	snap.Enriched.PriceSOLPerToken = 0.004
	events := tr.Observe(snap)
	require.Len(t, events, 1)
	assert.Equal(t, types.EventPriceUpdate, events[0].Kind)

	tr.RemovePositionTracking(pool)
	assert.Empty(t, tr.Observe(snap), "untracked again, the dedup key already exists")
}

func TestSeenKeysEvictOldestHalf(t *testing.T) {
	m := newBoundedSet(10)
	for i := 0; i < 10; i++ {
		m.Add(fmt.Sprintf("key-%d", i))
	}
	require.Equal(t, 10, m.Len())

	m.Add("overflow")
	assert.Equal(t, 6, m.Len(), "oldest half evicted before insert")
	assert.False(t, m.Contains("key-0"))
	assert.True(t, m.Contains("key-9"))
	assert.True(t, m.Contains("overflow"))
}

func TestOrderedMapEvictBatch(t *testing.T) {
	m := newOrderedMap[int, string](5, 2)
	for i := 0; i < 5; i++ {
		m.Put(i, "v")
	}
	m.Put(99, "v")

	assert.Equal(t, 4, m.Len())
	_, ok := m.Get(0)
	assert.False(t, ok)
	_, ok = m.Get(1)
	assert.False(t, ok)
	_, ok = m.Get(99)
	assert.True(t, ok)
}

func TestOrderedMapDeleteWhere(t *testing.T) {
	m := newOrderedMap[int, int](10, 0)
	for i := 0; i < 6; i++ {
		m.Put(i, i)
	}
	removed := m.DeleteWhere(func(_ int, v int) bool { return v%2 == 0 })
	assert.Equal(t, 3, removed)
	assert.Equal(t, 3, m.Len())
}

func TestStats(t *testing.T) {
	tr, _, _ := newTestTracker()
	require.Len(t, tr.Observe(ammSnapshot(testKey(1), testKey(2), types.DEXRaydiumCPMM)), 1)

	stats := tr.Stats()
	assert.Equal(t, 1, stats["seen_keys"])
	assert.Equal(t, 2, stats["vaults"])
	assert.Equal(t, 0, stats["positions"])
}
