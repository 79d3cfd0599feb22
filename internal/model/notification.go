package model

import (
	"fmt"
	"time"
)

// Notification is the webhook payload pushed by the marketplace.
type Notification struct {
	Topic         string `json:"topic"`
	Resource      string `json:"resource"`
	UserID        int64  `json:"user_id"`
	ApplicationID int64  `json:"application_id"`
	Sent          string `json:"sent"`
	Attempts      int    `json:"attempts,omitempty"`
}

// ID returns the deterministic idempotency key for the notification:
// a 32-bit string hash of topic, resource and sent timestamp. Two
// deliveries of the same logical event always map to the same ID.
func (n Notification) ID() string {
	topic := n.Topic
	if topic == "" {
		topic = "unknown"
	}
	str := fmt.Sprintf("%s:%s:%s", topic, n.Resource, n.Sent)

	var hash int32
	for _, c := range str {
		hash = (hash << 5) - hash + int32(c)
	}
	if hash < 0 {
		hash = -hash
	}
	return fmt.Sprintf("%s-%d", topic, hash)
}

// QueuedNotification is a notification staged for later processing.
type QueuedNotification struct {
	ID           string       `json:"id"`
	Notification Notification `json:"notification"`
	Received     time.Time    `json:"received"`
	Attempts     int          `json:"attempts"`
}

// EnqueueResult reports the outcome of adding a notification to the queue.
type EnqueueResult struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason"`
}

// Enqueue outcome reasons.
const (
	EnqueueQueued    = "queued"
	EnqueueDuplicate = "duplicate"
	EnqueueQueueFull = "queue_full"
)

// DrainStats summarizes one queue drain cycle.
type DrainStats struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// RecoveryResult summarizes one missed-feeds recovery run.
type RecoveryResult struct {
	Fetched    int  `json:"fetched"`
	Enqueued   int  `json:"enqueued"`
	Duplicates int  `json:"duplicates"`
	Truncated  bool `json:"truncated"`
}

// QueueStats is the queue health snapshot for the admin API.
type QueueStats struct {
	Pending         int     `json:"pending"`
	ProcessedCount  int     `json:"processed_count"`
	MaxCapacity     int     `json:"max_capacity"`
	CapacityPercent float64 `json:"capacity_percent"`
}
