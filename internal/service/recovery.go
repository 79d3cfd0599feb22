package service

import (
	"context"
	"fmt"
	"log"

	"meli-stock-audit/internal/meli"
	"meli-stock-audit/internal/model"
)

const (
	// FeedPageLimit is the /missed_feeds page size.
	FeedPageLimit = 50

	// MaxFeedsPerRun caps one recovery run; a truncated run reports
	// Truncated so the caller can trigger another.
	MaxFeedsPerRun = 500
)

// FeedAPI is the slice of the marketplace client recovery needs.
type FeedAPI interface {
	GetMissedFeeds(ctx context.Context, appID int64, topic string, offset, limit int) (*meli.FeedPage, error)
}

// RecoveryService re-ingests notifications the marketplace could not
// deliver to the webhook URL. Recovered feeds go through the regular
// queue, so the processed-id set rejects anything already handled and
// the processor routes the rest exactly like a live delivery.
type RecoveryService struct {
	feeds FeedAPI
	queue *QueueService
	appID int64
}

// NewRecoveryService creates the missed-feeds recovery service.
func NewRecoveryService(feeds FeedAPI, queue *QueueService, appID int64) *RecoveryService {
	return &RecoveryService{feeds: feeds, queue: queue, appID: appID}
}

// Run pages through the missed feeds for one topic and enqueues each
// recovered notification, deduplicating within the run. It stops on an
// empty page, at MaxFeedsPerRun, or when the queue fills up.
func (s *RecoveryService) Run(ctx context.Context, topic string) (model.RecoveryResult, error) {
	var result model.RecoveryResult

	if s.appID == 0 {
		return result, fmt.Errorf("missed feeds recovery requires an application id")
	}
	if topic == "" {
		topic = "items"
	}

	log.Printf("[Recovery] Checking missed feeds for topic %q", topic)

	seen := make(map[string]bool)
	offset := 0

	for {
		page, err := s.feeds.GetMissedFeeds(ctx, s.appID, topic, offset, FeedPageLimit)
		if err != nil {
			return result, fmt.Errorf("missed feeds page at offset %d failed: %w", offset, err)
		}
		if len(page.Messages) == 0 {
			break
		}

		for _, msg := range page.Messages {
			result.Fetched++

			n := model.Notification{Topic: topic, Resource: msg.Resource, ApplicationID: s.appID}
			if msg.Topic != "" {
				n.Topic = msg.Topic
			}

			id := n.ID()
			if seen[id] {
				result.Duplicates++
				continue
			}
			seen[id] = true

			res, err := s.queue.Enqueue(ctx, n)
			if err != nil {
				return result, err
			}
			switch {
			case res.Accepted:
				result.Enqueued++
			case res.Reason == model.EnqueueDuplicate:
				result.Duplicates++
			default:
				log.Printf("[Recovery] Queue full after %d recovered feeds, stopping", result.Enqueued)
				result.Truncated = true
				return result, nil
			}
		}

		offset += len(page.Messages)

		if result.Fetched >= MaxFeedsPerRun {
			log.Printf("[Recovery] Safety cap of %d feeds reached, run again to continue", MaxFeedsPerRun)
			result.Truncated = true
			break
		}
	}

	log.Printf("[Recovery] Done: %d fetched, %d enqueued, %d duplicates", result.Fetched, result.Enqueued, result.Duplicates)
	return result, nil
}
