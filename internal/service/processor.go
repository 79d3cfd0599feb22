package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"meli-stock-audit/internal/meli"
	"meli-stock-audit/internal/model"
	"meli-stock-audit/internal/repository"
)

// ResourceAPI is the slice of the marketplace client the processor
// uses for per-topic detail fetches.
type ResourceAPI interface {
	GetItem(ctx context.Context, itemID string) (*meli.Item, error)
	GetResource(ctx context.Context, resource string) ([]byte, error)
}

// Topics with dedicated record handling. Anything else lands in the
// raw-notifications records for forward compatibility.
var knownTopics = map[string]bool{
	"orders":    true,
	"orders_v2": true,
	"questions": true,
	"payments":  true,
	"messages":  true,
	"shipments": true,
}

// Processor drains the notification queue on a fixed timer and routes
// each notification to its topic handler. It also drives audit scan
// continuations while a suspended cursor is pending.
type Processor struct {
	queue     *QueueService
	reconcile *ReconcileService
	audit     *AuditService
	records   repository.RecordRepository
	api       ResourceAPI
	interval  time.Duration

	ticker   *time.Ticker
	stopCh   chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex
	running  bool
}

// NewProcessor creates the queue processor.
func NewProcessor(
	queue *QueueService,
	reconcile *ReconcileService,
	audit *AuditService,
	records repository.RecordRepository,
	api ResourceAPI,
	interval time.Duration,
) *Processor {
	if interval <= 0 {
		interval = 1 * time.Minute
	}
	return &Processor{
		queue:     queue,
		reconcile: reconcile,
		audit:     audit,
		records:   records,
		api:       api,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the timer-driven drain loop.
func (p *Processor) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.ticker = time.NewTicker(p.interval)
	p.mu.Unlock()

	log.Printf("[Processor] Started, drain interval %v", p.interval)
	go p.run()
}

func (p *Processor) run() {
	for {
		select {
		case <-p.ticker.C:
			p.tick()
		case <-p.stopCh:
			log.Printf("[Processor] Stopped")
			return
		}
	}
}

func (p *Processor) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), p.interval)
	defer cancel()

	if _, err := p.queue.Drain(ctx, p.HandleNotification); err != nil {
		log.Printf("[Processor] Drain failed: %v", err)
	}

	// Continue a suspended full-audit scan, one budget slice per tick.
	// The slice gets its own deadline sized to the scan budget; the
	// drain context is bounded by the tick interval, which may be
	// shorter than a full slice.
	if p.audit != nil && p.audit.Pending(ctx) {
		scanCtx, scanCancel := context.WithTimeout(context.Background(), p.audit.Budget()+30*time.Second)
		defer scanCancel()
		if result, err := p.audit.Run(scanCtx); err != nil {
			log.Printf("[Processor] Audit continuation failed: %v", err)
		} else if result.Status == model.ScanComplete {
			log.Printf("[Processor] Audit continuation finished: %d items", result.Processed)
		}
	}
}

// HandleNotification routes one notification by topic. Item changes go
// through the reconciliation engine; other known topics fetch the
// resource into its record table; unknown topics are preserved raw.
func (p *Processor) HandleNotification(ctx context.Context, n model.Notification) error {
	switch {
	case n.Topic == "items":
		return p.handleItem(ctx, n)
	case knownTopics[n.Topic]:
		return p.handleResource(ctx, n)
	default:
		return p.handleUnknown(ctx, n)
	}
}

func (p *Processor) handleItem(ctx context.Context, n model.Notification) error {
	itemID := resourceID(n.Resource)
	if itemID == "" {
		return fmt.Errorf("items notification with empty resource: %q", n.Resource)
	}
	item, err := p.api.GetItem(ctx, itemID)
	if err != nil {
		return fmt.Errorf("failed to fetch item %s: %w", itemID, err)
	}
	return p.reconcile.ProcessItem(ctx, *item)
}

func (p *Processor) handleResource(ctx context.Context, n model.Notification) error {
	payload, err := p.api.GetResource(ctx, n.Resource)
	if err != nil {
		return fmt.Errorf("failed to fetch %s resource %s: %w", n.Topic, n.Resource, err)
	}
	return p.records.AppendRecord(ctx, model.RecordEntry{
		Topic:    n.Topic,
		Resource: n.Resource,
		Payload:  payload,
	})
}

func (p *Processor) handleUnknown(ctx context.Context, n model.Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to serialize unknown notification: %w", err)
	}
	log.Printf("[Processor] Unknown topic %q preserved in raw records", n.Topic)
	return p.records.AppendRecord(ctx, model.RecordEntry{
		Topic:    "unknown",
		Resource: n.Resource,
		Payload:  raw,
	})
}

// Stop halts the drain loop.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.ticker != nil {
			p.ticker.Stop()
		}
		close(p.stopCh)
		p.running = false
	})
}

// resourceID extracts the trailing path segment of a resource path.
func resourceID(resource string) string {
	resource = strings.TrimSuffix(resource, "/")
	if idx := strings.LastIndex(resource, "/"); idx >= 0 {
		return resource[idx+1:]
	}
	return resource
}
