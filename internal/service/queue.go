package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"meli-stock-audit/internal/model"
	"meli-stock-audit/internal/repository"
)

// Property store keys for queue state.
const (
	PropPendingNotifications = "PENDING_NOTIFICATIONS"
	PropProcessedIDs         = "PROCESSED_NOTIFICATION_IDS"
)

// QueueConfig bounds the notification queue.
type QueueConfig struct {
	MaxSize          int
	MaxProcessedIDs  int
	ArchiveThreshold int
	Expiry           time.Duration
	MaxAttempts      int
}

// DefaultQueueConfig returns the standard queue limits.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxSize:          1000,
		MaxProcessedIDs:  5000,
		ArchiveThreshold: 500,
		Expiry:           30 * 24 * time.Hour,
		MaxAttempts:      3,
	}
}

// NotificationHandler processes one notification during a drain.
type NotificationHandler func(ctx context.Context, n model.Notification) error

// QueueService is the durable, size-bounded, idempotent staging area
// for inbound webhook notifications. Queue contents and the
// processed-id set live in the property store as JSON; both are
// persisted once per operation, never per item. A mutex serializes the
// load-modify-save cycles: webhook enqueues and processor drains run
// on different goroutines against the same keys.
type QueueService struct {
	props   repository.PropertyRepository
	records repository.RecordRepository
	cfg     QueueConfig
	mu      sync.Mutex
}

// NewQueueService creates a notification queue over the property store.
func NewQueueService(props repository.PropertyRepository, records repository.RecordRepository, cfg QueueConfig) *QueueService {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultQueueConfig().MaxSize
	}
	if cfg.MaxProcessedIDs <= 0 {
		cfg.MaxProcessedIDs = DefaultQueueConfig().MaxProcessedIDs
	}
	if cfg.ArchiveThreshold <= 0 {
		cfg.ArchiveThreshold = DefaultQueueConfig().ArchiveThreshold
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultQueueConfig().Expiry
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultQueueConfig().MaxAttempts
	}
	return &QueueService{props: props, records: records, cfg: cfg}
}

func (s *QueueService) loadQueue(ctx context.Context) ([]model.QueuedNotification, error) {
	raw, err := s.props.Get(ctx, PropPendingNotifications)
	if err != nil {
		return nil, fmt.Errorf("failed to load queue: %w", err)
	}
	if raw == "" {
		return nil, nil
	}
	var queue []model.QueuedNotification
	if err := json.Unmarshal([]byte(raw), &queue); err != nil {
		return nil, fmt.Errorf("failed to parse queue state: %w", err)
	}
	return queue, nil
}

func (s *QueueService) saveQueue(ctx context.Context, queue []model.QueuedNotification) error {
	if queue == nil {
		queue = []model.QueuedNotification{}
	}
	raw, err := json.Marshal(queue)
	if err != nil {
		return fmt.Errorf("failed to serialize queue: %w", err)
	}
	return s.props.Set(ctx, PropPendingNotifications, string(raw))
}

func (s *QueueService) loadProcessed(ctx context.Context) ([]string, error) {
	raw, err := s.props.Get(ctx, PropProcessedIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load processed ids: %w", err)
	}
	if raw == "" {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("failed to parse processed ids: %w", err)
	}
	return ids, nil
}

func (s *QueueService) saveProcessed(ctx context.Context, ids []string) error {
	// Trim oldest entries beyond the cap.
	if len(ids) > s.cfg.MaxProcessedIDs {
		ids = ids[len(ids)-s.cfg.MaxProcessedIDs:]
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to serialize processed ids: %w", err)
	}
	return s.props.Set(ctx, PropProcessedIDs, string(raw))
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Enqueue adds a notification with an idempotency check. Duplicates of
// already processed notifications are rejected; at capacity the oldest
// entries are archived first, and the enqueue is rejected only if the
// queue is still full afterwards.
func (s *QueueService) Enqueue(ctx context.Context, n model.Notification) (model.EnqueueResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := n.ID()

	processed, err := s.loadProcessed(ctx)
	if err != nil {
		return model.EnqueueResult{}, err
	}
	if contains(processed, id) {
		return model.EnqueueResult{Accepted: false, Reason: model.EnqueueDuplicate}, nil
	}

	queue, err := s.loadQueue(ctx)
	if err != nil {
		return model.EnqueueResult{}, err
	}

	if len(queue) >= s.cfg.MaxSize {
		log.Printf("[Queue] At capacity (%d), archiving old notifications", len(queue))
		queue, err = s.archiveOld(ctx, queue)
		if err != nil {
			return model.EnqueueResult{}, err
		}
		if len(queue) >= s.cfg.MaxSize {
			return model.EnqueueResult{Accepted: false, Reason: model.EnqueueQueueFull}, nil
		}
	}

	queue = append(queue, model.QueuedNotification{
		ID:           id,
		Notification: n,
		Received:     time.Now(),
		Attempts:     0,
	})
	if err := s.saveQueue(ctx, queue); err != nil {
		return model.EnqueueResult{}, err
	}
	return model.EnqueueResult{Accepted: true, Reason: model.EnqueueQueued}, nil
}

// archiveOld moves expired entries, then the oldest entries up to the
// archive threshold, into cold storage. Returns the surviving queue.
func (s *QueueService) archiveOld(ctx context.Context, queue []model.QueuedNotification) ([]model.QueuedNotification, error) {
	cutoff := time.Now().Add(-s.cfg.Expiry)

	var toArchive, toKeep []model.QueuedNotification
	for _, item := range queue {
		if item.Received.Before(cutoff) || len(toArchive) < s.cfg.ArchiveThreshold {
			toArchive = append(toArchive, item)
		} else {
			toKeep = append(toKeep, item)
		}
	}

	if len(toArchive) == 0 {
		return queue, nil
	}
	if err := s.records.ArchiveNotifications(ctx, toArchive); err != nil {
		// Archival failure must not lose live entries.
		log.Printf("[Queue] Failed to archive notifications: %v", err)
		return queue, nil
	}
	if err := s.saveQueue(ctx, toKeep); err != nil {
		return queue, err
	}
	log.Printf("[Queue] Archived %d old notifications", len(toArchive))
	return toKeep, nil
}

// Drain iterates the queue through the handler. Already-processed
// entries are skipped and removed; failures increment attempts and the
// entry survives until MaxAttempts. The queue is persisted exactly
// once per drain cycle.
func (s *QueueService) Drain(ctx context.Context, handler NotificationHandler) (model.DrainStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue, err := s.loadQueue(ctx)
	if err != nil {
		return model.DrainStats{}, err
	}
	if len(queue) == 0 {
		return model.DrainStats{}, nil
	}

	processed, err := s.loadProcessed(ctx)
	if err != nil {
		return model.DrainStats{}, err
	}

	var stats model.DrainStats
	var remaining []model.QueuedNotification

	for _, item := range queue {
		if contains(processed, item.ID) {
			stats.Skipped++
			continue
		}

		if err := handler(ctx, item.Notification); err != nil {
			stats.Failed++
			item.Attempts++
			if item.Attempts < s.cfg.MaxAttempts {
				remaining = append(remaining, item)
				log.Printf("[Queue] Failed processing %s (attempt %d): %v", item.ID, item.Attempts, err)
			} else {
				log.Printf("[Queue] Giving up on %s after %d attempts: %v", item.ID, item.Attempts, err)
			}
			continue
		}

		processed = append(processed, item.ID)
		stats.Processed++
	}

	if err := s.saveProcessed(ctx, processed); err != nil {
		return stats, err
	}
	if err := s.saveQueue(ctx, remaining); err != nil {
		return stats, err
	}

	log.Printf("[Queue] Drain complete: %d processed, %d failed, %d skipped, %d remaining",
		stats.Processed, stats.Failed, stats.Skipped, len(remaining))
	return stats, nil
}

// Stats returns the queue health snapshot.
func (s *QueueService) Stats(ctx context.Context) (model.QueueStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue, err := s.loadQueue(ctx)
	if err != nil {
		return model.QueueStats{}, err
	}
	processed, err := s.loadProcessed(ctx)
	if err != nil {
		return model.QueueStats{}, err
	}
	return model.QueueStats{
		Pending:         len(queue),
		ProcessedCount:  len(processed),
		MaxCapacity:     s.cfg.MaxSize,
		CapacityPercent: float64(len(queue)) / float64(s.cfg.MaxSize) * 100,
	}, nil
}
