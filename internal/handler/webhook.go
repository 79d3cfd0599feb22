package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"meli-stock-audit/internal/model"
	"meli-stock-audit/internal/service"
)

// WebhookHandler ingests marketplace notifications. The marketplace
// retries aggressively and disables endpoints that keep failing, so
// every outcome answers 200 and problems are only logged.
type WebhookHandler struct {
	queue *service.QueueService
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(queue *service.QueueService) *WebhookHandler {
	return &WebhookHandler{queue: queue}
}

// Receive handles POST /webhook. No marketplace calls happen inline;
// the notification is staged in the queue and the request returns
// immediately.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[Webhook] Panic while handling notification: %v", rec)
			writeAck(w, map[string]string{"status": "error", "message": "internal error"})
		}
	}()

	var n model.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		log.Printf("[Webhook] Malformed notification body: %v", err)
		writeAck(w, map[string]string{"status": "ok"})
		return
	}

	result, err := h.queue.Enqueue(r.Context(), n)
	switch {
	case err != nil:
		log.Printf("[Webhook] Failed to enqueue %s notification: %v", n.Topic, err)
	case !result.Accepted:
		log.Printf("[Webhook] Notification %s rejected: %s", n.ID(), result.Reason)
	default:
		log.Printf("[Webhook] Queued %s notification for %s", n.Topic, n.Resource)
	}

	writeAck(w, map[string]string{"status": "ok"})
}

func writeAck(w http.ResponseWriter, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}
