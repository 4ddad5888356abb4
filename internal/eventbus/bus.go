// Package eventbus implements the in-memory, append-only audit event log:
// per-stream versioning, correlation-id deduplication, subscriber
// fan-out, and a micro-batching/backpressure-warning layer on top.
//
// The log is volatile by design (spec §4.6/§5): nothing here survives a
// process restart, and subscribers are always in-process.
package eventbus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/arcweave/dispatchd/pkg/dispatchmodel"
)

// Handler receives a stored event after it is appended to the in-memory
// log. A handler's error is logged and never fails the publish call.
type Handler func(dispatchmodel.StoredEvent) error

// Config tunes batching and backpressure behavior.
type Config struct {
	// BatchSize bounds the pending-batch ring. Default 64.
	BatchSize int
	// Capacity is the nominal in-flight capacity used to compute
	// backpressure occupancy. Default 2048 (mirrors performance.maxInflight).
	Capacity int
	// Watermark is the occupancy fraction above which events are marked
	// deferred (observationally — they are still published). Default 0.75.
	Watermark float64
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 64
	}
	if c.Capacity <= 0 {
		c.Capacity = 2048
	}
	if c.Watermark <= 0 {
		c.Watermark = 0.75
	}
	return c
}

// Bus is the process-singleton event log.
type Bus struct {
	cfg    Config
	logger *slog.Logger

	mu            sync.RWMutex
	log           []dispatchmodel.StoredEvent
	streamVersion map[string]uint64
	dedup         map[string]dispatchmodel.EventResponse
	handlers      map[string][]Handler

	batchMu sync.Mutex
	batch   []dispatchmodel.StoredEvent

	inFlight int64
}

// New creates an empty Bus.
func New(cfg Config, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		cfg:           cfg.withDefaults(),
		logger:        logger,
		streamVersion: make(map[string]uint64),
		dedup:         make(map[string]dispatchmodel.EventResponse),
		handlers:      make(map[string][]Handler),
	}
}

// Subscribe registers handler to be invoked for every event published
// with the given event type.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// CheckDuplicate reports the prior event_id for correlationID, if any.
func (b *Bus) CheckDuplicate(correlationID string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	resp, ok := b.dedup[correlationID]
	if !ok {
		return "", false
	}
	return resp.EventID, true
}

// QueueDepth returns the number of events currently sitting in the
// pending micro-batch, awaiting the next full-batch boundary.
func (b *Bus) QueueDepth() int {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()
	return len(b.batch)
}

// Publish appends event to the log (or returns the prior response when
// its correlation id has already been seen), notifies subscribers, and
// tracks it in the pending micro-batch. A full batch flushes the batch
// marker only — the event itself is published exactly once, here,
// regardless of whether its append happens to fill the batch.
func (b *Bus) Publish(event dispatchmodel.Event) (dispatchmodel.EventResponse, error) {
	if resp, ok := b.checkDuplicateResponse(event.Metadata.CorrelationID); ok {
		return resp, nil
	}

	if err := event.Context.Validate(); err != nil {
		return dispatchmodel.EventResponse{}, fmt.Errorf("%w: %v", ErrInvalidContext, err)
	}

	stored := b.append(event)
	b.dispatch(stored)

	deferred := b.markDeferredIfBackpressured(stored)
	resp := stored.Response(deferred)

	b.mu.Lock()
	if event.Metadata.CorrelationID != "" {
		b.dedup[event.Metadata.CorrelationID] = resp
	}
	b.mu.Unlock()

	b.enqueueBatch(stored)
	return resp, nil
}

// PublishBatch publishes every event in order with no barrier between
// them: each event's full publish semantics (dedup, validation, version
// assignment) apply independently, in input order.
func (b *Bus) PublishBatch(events []dispatchmodel.Event) []dispatchmodel.EventResponse {
	out := make([]dispatchmodel.EventResponse, len(events))
	for i, e := range events {
		resp, err := b.Publish(e)
		if err != nil {
			out[i] = dispatchmodel.EventResponse{}
			continue
		}
		out[i] = resp
	}
	return out
}

func (b *Bus) checkDuplicateResponse(correlationID string) (dispatchmodel.EventResponse, bool) {
	if correlationID == "" {
		return dispatchmodel.EventResponse{}, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	resp, ok := b.dedup[correlationID]
	return resp, ok
}

// append assigns identity and a gap-free per-stream version while
// holding the writer lock for the full compute-and-append, then returns
// the stored record.
func (b *Bus) append(event dispatchmodel.Event) dispatchmodel.StoredEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.streamVersion[event.StreamID]++
	stored := dispatchmodel.StoredEvent{
		Event:     event,
		EventID:   uuid.NewString(),
		Version:   b.streamVersion[event.StreamID],
		Timestamp: nowFunc(),
	}
	b.log = append(b.log, stored)
	return stored
}

func (b *Bus) dispatch(stored dispatchmodel.StoredEvent) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[stored.EventType]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	atomic.AddInt64(&b.inFlight, 1)
	defer atomic.AddInt64(&b.inFlight, -1)

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event subscriber panicked", "event_type", stored.EventType, "panic", r)
				}
			}()
			if err := h(stored); err != nil {
				b.logger.Warn("event subscriber failed", "event_type", stored.EventType, "error", err)
			}
		}()
	}
}

func (b *Bus) markDeferredIfBackpressured(stored dispatchmodel.StoredEvent) bool {
	inFlight := atomic.LoadInt64(&b.inFlight)
	usedPct := 1 - (float64(b.cfg.Capacity-int(inFlight)) / float64(b.cfg.Capacity))
	if usedPct <= b.cfg.Watermark {
		return false
	}
	b.logger.Warn("event bus backpressure watermark exceeded",
		"used_pct", usedPct, "watermark", b.cfg.Watermark, "stream_id", stored.StreamID)
	return true
}

func (b *Bus) enqueueBatch(stored dispatchmodel.StoredEvent) {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	b.batch = append(b.batch, stored)
	if len(b.batch) >= b.cfg.BatchSize {
		b.logger.Debug("event bus batch boundary reached", "size", len(b.batch))
		b.batch = b.batch[:0]
	}
}

// nowFunc is a seam for deterministic tests.
var nowFunc = time.Now

// MarshalEventData is a convenience for callers constructing Event.Data
// from a Go value instead of hand-rolling json.RawMessage.
func MarshalEventData(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
