// ==============================================
// File: internal/correlator/correlator_test.go
// ==============================================
package correlator

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/solwatch/solwatch/internal/telemetry"
	"github.com/solwatch/solwatch/internal/types"
)

func testKey(b byte) solana.PublicKey {
	var key solana.PublicKey
	key[0] = b
	key[31] = b
	return key
}

type capture struct {
	events []types.PoolEvent
}

func (c *capture) forward(ev types.PoolEvent) {
	c.events = append(c.events, ev)
}

func newTestCorrelator(fallback *DASClient) (*Correlator, *capture, *fakeClock) {
	out := &capture{}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := New(NewMetadataCache(), fallback, out.forward, telemetry.NewUnregistered(), zap.NewNop())
	c.SetClock(clock.Now)
	return c, out, clock
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newPoolEvent(mint solana.PublicKey, dex types.DEXKind) types.PoolEvent {
	return types.PoolEvent{
		Kind: types.EventNewPool,
		Snapshot: types.PoolSnapshot{
			DEX:         dex,
			PoolAddress: testKey(99),
			BaseMint:    mint,
			QuoteMint:   types.WSOLMint,
		},
	}
}

func TestSubmitCacheHitForwardsAnnotated(t *testing.T) {
	c, out, _ := newTestCorrelator(nil)
	mint := testKey(1)

	c.OnMetadata(types.TokenMetadata{Mint: mint, Name: "Token One", Symbol: "ONE"})
	c.Submit(newPoolEvent(mint, types.DEXRaydiumCPMM))

	require.Len(t, out.events, 1)
	assert.Equal(t, "Token One", out.events[0].TokenName)
	assert.Equal(t, "ONE", out.events[0].TokenSymbol)
	assert.Equal(t, 1.0, c.HitRate())
}

func TestSubmitMissParksUntilMetadataArrives(t *testing.T) {
	c, out, _ := newTestCorrelator(nil)
	mint := testKey(1)

	c.Submit(newPoolEvent(mint, types.DEXRaydiumCPMM))
	assert.Empty(t, out.events, "event waits for metadata")
	assert.Equal(t, 1, c.PendingCount())

	c.OnMetadata(types.TokenMetadata{Mint: mint, Name: "Late", Symbol: "LT"})
	require.Len(t, out.events, 1)
	assert.Equal(t, "Late", out.events[0].TokenName)
	assert.Zero(t, c.PendingCount())
}

func TestPriceUpdateNeverParks(t *testing.T) {
	c, out, _ := newTestCorrelator(nil)

	ev := newPoolEvent(testKey(1), types.DEXRaydiumCPMM)
	ev.Kind = types.EventPriceUpdate
	c.Submit(ev)

	require.Len(t, out.events, 1)
	assert.Empty(t, out.events[0].TokenName)
	assert.Zero(t, c.PendingCount())
}

func TestRetryExhaustionForwardsWithoutMetadata(t *testing.T) {
	c, out, clock := newTestCorrelator(nil)
	mint := testKey(1)

	c.Submit(newPoolEvent(mint, types.DEXRaydiumCPMM))
	require.Equal(t, 1, c.PendingCount())

	for i := 0; i < maxRetries; i++ {
		clock.Advance(retryInterval)
		c.processDue()
	}

	require.Len(t, out.events, 1, "exhausted retries forward the bare event")
	assert.Empty(t, out.events[0].TokenName)
	assert.Zero(t, c.PendingCount())
	assert.Zero(t, c.HitRate())
}

func TestRetryPicksUpLateCacheEntry(t *testing.T) {
	c, out, clock := newTestCorrelator(nil)
	mint := testKey(1)

	c.Submit(newPoolEvent(mint, types.DEXRaydiumCPMM))
	clock.Advance(retryInterval)
	c.processDue()
	assert.Empty(t, out.events)

	// Metadata lands in the cache between retries without going
	// through OnMetadata completion.
	c.cache.Put(types.TokenMetadata{Mint: mint, Name: "Found", Symbol: "FND"})
	clock.Advance(retryInterval)
	c.processDue()

	require.Len(t, out.events, 1)
	assert.Equal(t, "Found", out.events[0].TokenName)
}

func TestMetadataDuringRetrySweepForwardsOnce(t *testing.T) {
	c, out, clock := newTestCorrelator(nil)
	mint := testKey(1)

	c.Submit(newPoolEvent(mint, types.DEXRaydiumCPMM))
	clock.Advance(retryInterval)

	// Replay the sweep interleaving: the entry is collected as due,
	// then metadata completes it before its step runs.
	c.mu.Lock()
	entry := c.pending[mint]
	c.mu.Unlock()
	require.NotNil(t, entry)

	c.OnMetadata(types.TokenMetadata{Mint: mint, Name: "Won", Symbol: "WON"})
	c.step(mint, entry)

	require.Len(t, out.events, 1, "completion and retry step must not both forward")
	assert.Equal(t, "Won", out.events[0].TokenName)
	assert.Zero(t, c.PendingCount())
}

func TestStepOnFinalRetrySkipsClaimedEntry(t *testing.T) {
	c, out, clock := newTestCorrelator(nil)
	mint := testKey(1)

	c.Submit(newPoolEvent(mint, types.DEXRaydiumCPMM))
	for i := 0; i < maxRetries-1; i++ {
		clock.Advance(retryInterval)
		c.processDue()
	}
	require.Empty(t, out.events)

	clock.Advance(retryInterval)
	c.mu.Lock()
	entry := c.pending[mint]
	c.mu.Unlock()
	require.NotNil(t, entry)

	c.OnMetadata(types.TokenMetadata{Mint: mint, Name: "Claimed", Symbol: "CLM"})
	c.step(mint, entry)

	require.Len(t, out.events, 1)
	assert.Equal(t, "Claimed", out.events[0].TokenName)
}

func TestOverflowForwardsWithEmptyMetadata(t *testing.T) {
	c, out, _ := newTestCorrelator(nil)

	for i := 0; i < pendingCap; i++ {
		var mint solana.PublicKey
		mint[0] = byte(i)
		mint[1] = byte(i >> 8)
		mint[31] = 1
		c.Submit(newPoolEvent(mint, types.DEXRaydiumCPMM))
	}
	require.Equal(t, pendingCap, c.PendingCount())
	assert.Empty(t, out.events)

	c.Submit(newPoolEvent(testKey(250), types.DEXRaydiumCPMM))
	require.Len(t, out.events, 1, "overflow forwards immediately")
	assert.Empty(t, out.events[0].TokenName)
	assert.Equal(t, pendingCap, c.PendingCount())
}

func TestLaunchpadFallbackOnFinalRetry(t *testing.T) {
	mint := testKey(1)
	var dasCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dasCalls++
		resp := map[string]interface{}{
			"result": map[string]interface{}{
				"content": map[string]interface{}{
					"metadata": map[string]string{"name": "Curve Token", "symbol": "CRV"},
				},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	c, out, clock := newTestCorrelator(NewDASClient(server.URL, zap.NewNop()))

	c.Submit(newPoolEvent(mint, types.DEXPumpFun))
	for i := 0; i < maxRetries; i++ {
		clock.Advance(retryInterval)
		c.processDue()
	}

	assert.Equal(t, 1, dasCalls, "exactly one DAS call on the final retry")
	require.Len(t, out.events, 1)
	assert.Equal(t, "Curve Token", out.events[0].TokenName)
	assert.Equal(t, "CRV", out.events[0].TokenSymbol)
}

func TestFallbackOnlyForLaunchpad(t *testing.T) {
	var dasCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dasCalls++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c, out, clock := newTestCorrelator(NewDASClient(server.URL, zap.NewNop()))

	c.Submit(newPoolEvent(testKey(1), types.DEXRaydiumCPMM))
	for i := 0; i < maxRetries; i++ {
		clock.Advance(retryInterval)
		c.processDue()
	}

	assert.Zero(t, dasCalls, "AMM pools never hit the fallback")
	require.Len(t, out.events, 1)
}

func TestHitRateMixes(t *testing.T) {
	c, _, clock := newTestCorrelator(nil)

	c.OnMetadata(types.TokenMetadata{Mint: testKey(1), Name: "A", Symbol: "A"})
	c.Submit(newPoolEvent(testKey(1), types.DEXRaydiumCPMM))

	c.Submit(newPoolEvent(testKey(2), types.DEXRaydiumCPMM))
	for i := 0; i < maxRetries; i++ {
		clock.Advance(retryInterval)
		c.processDue()
	}

	assert.InDelta(t, 0.5, c.HitRate(), 1e-9)
}

func TestMetadataCacheBounds(t *testing.T) {
	c := NewMetadataCache()

	var mint solana.PublicKey
	for i := 0; i < 100; i++ {
		mint[0] = byte(i)
		mint[31] = 7
		c.Put(types.TokenMetadata{Mint: mint, Name: fmt.Sprintf("t%d", i)})
	}
	assert.Equal(t, 100, c.Len())

	// Refreshing an existing entry must not duplicate it.
	mint[0] = 0
	c.Put(types.TokenMetadata{Mint: mint, Name: "refreshed"})
	assert.Equal(t, 100, c.Len())

	md, ok := c.Get(mint)
	require.True(t, ok)
	assert.Equal(t, "refreshed", md.Name)
}

func TestCacheAllowsWSOL(t *testing.T) {
	c := NewMetadataCache()
	c.Put(types.TokenMetadata{Mint: types.WSOLMint, Name: "Wrapped SOL", Symbol: "SOL"})

	md, ok := c.Get(types.WSOLMint)
	require.True(t, ok)
	assert.Equal(t, "SOL", md.Symbol)
}
