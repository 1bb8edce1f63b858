// =========================================
// File: internal/correlator/correlator.go
// =========================================
package correlator

import (
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/solwatch/solwatch/internal/telemetry"
	"github.com/solwatch/solwatch/internal/types"
)

const (
	pendingCap    = 1000
	retryInterval = 2 * time.Second
	maxRetries    = 5
	// scanInterval paces the retry sweep; the pending map is bounded
	// at 1000 entries so a periodic scan stays cheap.
	scanInterval = 500 * time.Millisecond
)

// pendingEvent is one event waiting for its metadata.
type pendingEvent struct {
	event   types.PoolEvent
	retries int
	nextDue time.Time
}

// Correlator pairs pool events with token metadata: cache hit
// annotates and forwards; a miss parks the event for bounded retries
// with an optional DAS fallback for launchpad tokens.
type Correlator struct {
	logger   *zap.Logger
	metrics  *telemetry.Metrics
	cache    *MetadataCache
	fallback *DASClient
	forward  func(types.PoolEvent)
	now      func() time.Time

	mu      sync.Mutex
	pending map[solana.PublicKey]*pendingEvent

	hits   uint64
	misses uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a correlator. fallback may be nil.
func New(cache *MetadataCache, fallback *DASClient, forward func(types.PoolEvent), metrics *telemetry.Metrics, logger *zap.Logger) *Correlator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Correlator{
		logger:   logger.Named("correlator"),
		metrics:  metrics,
		cache:    cache,
		fallback: fallback,
		forward:  forward,
		now:      time.Now,
		pending:  make(map[solana.PublicKey]*pendingEvent),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetClock replaces the time source for tests.
func (c *Correlator) SetClock(now func() time.Time) { c.now = now }

// Start launches the retry sweep loop.
func (c *Correlator) Start() {
	c.wg.Add(1)
	go c.retryLoop()
}

// Stop cancels all pending retry timers; parked events are dropped.
func (c *Correlator) Stop() {
	c.cancel()
	c.wg.Wait()
	c.mu.Lock()
	c.pending = make(map[solana.PublicKey]*pendingEvent)
	c.mu.Unlock()
}

// Submit runs one event through the state machine. Price updates are
// annotated from whatever the cache has and forwarded immediately;
// they never wait on metadata.
func (c *Correlator) Submit(event types.PoolEvent) {
	mint := event.Snapshot.BaseMint

	if md, ok := c.cache.Get(mint); ok {
		c.annotateAndForward(event, md)
		return
	}

	if event.Kind == types.EventPriceUpdate {
		c.forward(event)
		return
	}

	c.mu.Lock()
	if len(c.pending) >= pendingCap {
		c.mu.Unlock()
		c.logger.Warn("Pending metadata map full, forwarding without metadata",
			zap.String("mint", mint.String()))
		c.miss(event)
		return
	}
	c.pending[mint] = &pendingEvent{
		event:   event,
		nextDue: c.now().Add(retryInterval),
	}
	c.mu.Unlock()
}

// OnMetadata is the cache-arrival transition: store the entry and
// complete any event parked on that mint.
func (c *Correlator) OnMetadata(md types.TokenMetadata) {
	c.cache.Put(md)

	c.mu.Lock()
	entry, ok := c.pending[md.Mint]
	if ok {
		delete(c.pending, md.Mint)
	}
	c.mu.Unlock()

	if ok {
		c.annotateAndForward(entry.event, md)
	}
}

func (c *Correlator) retryLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.processDue()
		}
	}
}

// processDue advances every due pending entry by one retry step.
func (c *Correlator) processDue() {
	now := c.now()

	c.mu.Lock()
	var due []*pendingEvent
	var dueMints []solana.PublicKey
	for mint, entry := range c.pending {
		if !entry.nextDue.After(now) {
			due = append(due, entry)
			dueMints = append(dueMints, mint)
		}
	}
	c.mu.Unlock()

	for i, entry := range due {
		c.step(dueMints[i], entry)
	}
}

func (c *Correlator) step(mint solana.PublicKey, entry *pendingEvent) {
	// OnMetadata may complete this entry between the due snapshot and
	// now; whoever removes the pending entry owns the forward.
	if md, ok := c.cache.Get(mint); ok {
		if c.removePending(mint) {
			c.annotateAndForward(entry.event, md)
		}
		return
	}

	c.mu.Lock()
	if _, ok := c.pending[mint]; !ok {
		c.mu.Unlock()
		return
	}
	entry.retries++
	if entry.retries < maxRetries {
		entry.nextDue = c.now().Add(retryInterval)
		c.mu.Unlock()
		return
	}
	delete(c.pending, mint)
	c.mu.Unlock()

	// Last chance for launchpad tokens: a single DAS lookup.
	if entry.event.Snapshot.DEX == types.DEXPumpFun && c.fallback != nil {
		if md, ok := c.fallback.FetchAsset(c.ctx, mint); ok {
			c.cache.Put(md)
			c.annotateAndForward(entry.event, md)
			return
		}
	}

	c.miss(entry.event)
}

// removePending reports whether the entry was still parked; a false
// return means another path already claimed it.
func (c *Correlator) removePending(mint solana.PublicKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[mint]; !ok {
		return false
	}
	delete(c.pending, mint)
	return true
}

func (c *Correlator) annotateAndForward(event types.PoolEvent, md types.TokenMetadata) {
	event.TokenName = md.Name
	event.TokenSymbol = md.Symbol
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	c.metrics.MetadataHits.Inc()
	c.forward(event)
}

func (c *Correlator) miss(event types.PoolEvent) {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	c.metrics.MetadataMisses.Inc()
	c.forward(event)
}

// HitRate reports hits / (hits + misses); 0 before any resolution.
func (c *Correlator) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

// PendingCount reports the number of parked events.
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
