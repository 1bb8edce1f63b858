// ====================================
// File: internal/emitter/pipeline.go
// ====================================
package emitter

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/solwatch/solwatch/internal/telemetry"
	"github.com/solwatch/solwatch/internal/types"
)

const (
	queueCapacity    = 500
	dispatchInterval = 300 * time.Millisecond
	sinkInterval     = 2 * time.Second
)

// Pipeline is the single emission path: a bounded MPSC queue drained
// by one dispatcher that journals every event and rate-limits POSTs
// to the optional remote sink. A full queue drops, never blocks.
type Pipeline struct {
	logger  *zap.Logger
	metrics *telemetry.Metrics
	journal *Journal
	sink    *SinkClient

	queue       chan types.PoolEvent
	pace        *rate.Limiter
	sinkLimiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPipeline wires the journal and the (possibly nil) sink.
func NewPipeline(journal *Journal, sink *SinkClient, metrics *telemetry.Metrics, logger *zap.Logger) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		logger:      logger.Named("emitter"),
		metrics:     metrics,
		journal:     journal,
		sink:        sink,
		queue:       make(chan types.PoolEvent, queueCapacity),
		pace:        rate.NewLimiter(rate.Every(dispatchInterval), 1),
		sinkLimiter: rate.NewLimiter(rate.Every(sinkInterval), 1),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the dispatcher.
func (p *Pipeline) Start() {
	p.wg.Add(1)
	go p.dispatch()
}

// Stop drains nothing: in-flight dispatches finish, queued events are
// discarded.
func (p *Pipeline) Stop() {
	p.cancel()
	p.wg.Wait()
	if err := p.journal.Close(); err != nil {
		p.logger.Warn("Journal close failed", zap.Error(err))
	}
}

// Publish enqueues an event; when the queue is at capacity the event
// is dropped and counted.
func (p *Pipeline) Publish(event types.PoolEvent) bool {
	select {
	case p.queue <- event:
		p.metrics.EventsEmitted.WithLabelValues(string(event.Kind)).Inc()
		return true
	default:
		p.metrics.EventsDropped.Inc()
		p.logger.Warn("Emission queue full, dropping event",
			zap.String("kind", string(event.Kind)),
			zap.String("mint", event.Snapshot.BaseMint.String()))
		return false
	}
}

// QueueDepth reports current occupancy.
func (p *Pipeline) QueueDepth() int { return len(p.queue) }

func (p *Pipeline) dispatch() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case event := <-p.queue:
			if err := p.pace.Wait(p.ctx); err != nil {
				return
			}
			p.dispatchOne(event)
		}
	}
}

// dispatchOne journals the event and fires the sink POST. Journal
// writes are never rate-limited; the sink is capped at one POST per
// two seconds and failures are logged and dropped.
func (p *Pipeline) dispatchOne(event types.PoolEvent) {
	if err := p.journal.Append(event); err != nil {
		p.logger.Error("Journal append failed", zap.Error(err))
	}

	if p.sink == nil {
		return
	}
	if !p.sinkLimiter.Allow() {
		return
	}

	alert := alertFor(event)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sink.Post(p.ctx, alert); err != nil {
			p.metrics.SinkFailures.Inc()
			p.logger.Error("Sink post failed", zap.Error(err))
		}
	}()
}

// PublishBatch sends correlated alerts as a single atomic POST,
// bypassing the per-event sink limiter but honoring its pacing.
func (p *Pipeline) PublishBatch(ctx context.Context, alerts []MonitorAlert) error {
	if p.sink == nil || len(alerts) == 0 {
		return nil
	}
	if err := p.sinkLimiter.Wait(ctx); err != nil {
		return err
	}
	if err := p.sink.PostBatch(ctx, alerts); err != nil {
		p.metrics.SinkFailures.Inc()
		p.logger.Error("Sink batch post failed", zap.Error(err))
		return err
	}
	return nil
}
