package server

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	platformotel "github.com/louisbranch/broadcast.space/internal/platform/otel"
	"github.com/louisbranch/broadcast.space/internal/platform/timeouts"
	"github.com/louisbranch/broadcast.space/internal/services/gateway/metrics"
	"github.com/louisbranch/broadcast.space/internal/services/gateway/storage"
)

const defaultPersistQueueSize = 1024

// persister writes messages behind delivery. Failures are logged and
// counted, never returned to the sender.
type persister struct {
	store   storage.MessageStore
	log     *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	mu     sync.RWMutex
	closed bool
	queue  chan storage.Message
	done   chan struct{}
}

// newPersister starts the single writer. A nil store yields a nil persister
// whose methods do nothing.
func newPersister(store storage.MessageStore, size int, log *zap.Logger, m *metrics.Metrics) *persister {
	if store == nil {
		return nil
	}
	if size <= 0 {
		size = defaultPersistQueueSize
	}
	p := &persister{
		store:   store,
		log:     log,
		metrics: m,
		tracer:  platformotel.Tracer("gateway/persist"),
		queue:   make(chan storage.Message, size),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *persister) enqueue(msg storage.Message) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.queue <- msg:
		return true
	default:
		p.metrics.PersistenceFailures.Inc()
		p.log.Warn("persist queue full, dropping message", zap.String("tenant", msg.TenantID), zap.String("type", msg.Type))
		return false
	}
}

func (p *persister) run() {
	defer close(p.done)
	for msg := range p.queue {
		p.save(msg)
	}
}

func (p *persister) save(msg storage.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.StorageCall)
	defer cancel()
	ctx, span := p.tracer.Start(ctx, "gateway.persist.save_message", trace.WithAttributes(
		attribute.String("gateway.tenant", msg.TenantID),
		attribute.String("gateway.message_type", msg.Type),
	))
	defer span.End()

	if err := p.store.SaveMessage(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save message")
		p.metrics.PersistenceFailures.Inc()
		p.log.Warn("persist message", zap.String("tenant", msg.TenantID), zap.Error(err))
	}
}

// close stops intake and waits for queued messages to be written.
func (p *persister) close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.done
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	<-p.done
}
