package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"meli-stock-audit/internal/meli"
	"meli-stock-audit/internal/repository"
	"meli-stock-audit/internal/service"
	"meli-stock-audit/pkg/apierror"
	"meli-stock-audit/pkg/response"
)

// MarketplaceAdminAPI covers the marketplace operations the admin
// surface drives directly: webhook registration, manual stock fixes
// and the active-listing count used for catalog diagnostics.
type MarketplaceAdminAPI interface {
	RegisterWebhook(ctx context.Context, appID int64, notificationURL string) error
	UpdateItemStock(ctx context.Context, itemID string, quantity int) error
	SearchActiveItems(ctx context.Context, userID int64, offset, limit int) (*meli.ScrollPage, error)
}

// AdminHandler exposes the operational surface: queue health, phantom
// alerts, audit scan control, webhook registration, missed-feed
// recovery and the daily movement report.
type AdminHandler struct {
	queue     *service.QueueService
	reconcile *service.ReconcileService
	audit     *service.AuditService
	report    *service.ReportService
	recovery  *service.RecoveryService
	snapshots repository.SnapshotRepository
	api       MarketplaceAdminAPI
	seller    service.SellerSource
	appID     int64

	scanRunning atomic.Bool
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(
	queue *service.QueueService,
	reconcile *service.ReconcileService,
	audit *service.AuditService,
	report *service.ReportService,
	recovery *service.RecoveryService,
	snapshots repository.SnapshotRepository,
	api MarketplaceAdminAPI,
	seller service.SellerSource,
	appID int64,
) *AdminHandler {
	return &AdminHandler{
		queue:     queue,
		reconcile: reconcile,
		audit:     audit,
		report:    report,
		recovery:  recovery,
		snapshots: snapshots,
		api:       api,
		seller:    seller,
		appID:     appID,
	}
}

// GetQueueStats handles GET /api/v1/admin/queue
func (h *AdminHandler) GetQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		response.Error(w, apierror.InternalError(err.Error()))
		return
	}
	response.OK(w, stats)
}

// GetAlerts handles GET /api/v1/admin/alerts
func (h *AdminHandler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.reconcile.Alerts())
}

// StartAudit handles POST /api/v1/admin/audit. The scan runs in the
// background because a full catalog pass can take minutes; the
// response reports whether a run was started or one is in flight.
func (h *AdminHandler) StartAudit(w http.ResponseWriter, r *http.Request) {
	if !h.scanRunning.CompareAndSwap(false, true) {
		response.Error(w, apierror.Conflict("an audit scan is already running"))
		return
	}

	go func() {
		defer h.scanRunning.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		result, err := h.audit.Run(ctx)
		if err != nil {
			log.Printf("[Admin] Audit scan failed: %v", err)
			return
		}
		log.Printf("[Admin] Audit scan slice done: status=%s pages=%d processed=%d",
			result.Status, result.Pages, result.Processed)
	}()

	response.Accepted(w, map[string]string{"status": "started"})
}

// GetAuditStatus handles GET /api/v1/admin/audit
func (h *AdminHandler) GetAuditStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.audit.Status(r.Context())
	if err != nil {
		response.Error(w, apierror.InternalError(err.Error()))
		return
	}
	response.OK(w, status)
}

type registerWebhookRequest struct {
	NotificationURL string `json:"notification_url"`
}

// RegisterWebhook handles POST /api/v1/admin/webhook
func (h *AdminHandler) RegisterWebhook(w http.ResponseWriter, r *http.Request) {
	var req registerWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NotificationURL == "" {
		response.Error(w, apierror.BadRequest("notification_url is required"))
		return
	}
	if h.appID == 0 {
		response.Error(w, apierror.BadRequest("application id is not configured"))
		return
	}

	if err := h.api.RegisterWebhook(r.Context(), h.appID, req.NotificationURL); err != nil {
		log.Printf("[Admin] Webhook registration failed: %v", err)
		response.Error(w, apierror.UpstreamError(err.Error()))
		return
	}

	log.Printf("[Admin] Webhook registered: %s", req.NotificationURL)
	response.OK(w, map[string]string{"notification_url": req.NotificationURL})
}

type updateStockRequest struct {
	Quantity *int `json:"quantity"`
}

// UpdateStock handles PUT /api/v1/admin/items/{item_id}/stock. It
// pushes a corrective quantity to the marketplace; the resulting items
// notification flows back through the normal reconciliation path.
func (h *AdminHandler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "item_id")
	if itemID == "" {
		response.Error(w, apierror.BadRequest("item id is required"))
		return
	}

	var req updateStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity == nil || *req.Quantity < 0 {
		response.Error(w, apierror.BadRequest("quantity must be a non-negative integer"))
		return
	}

	if err := h.api.UpdateItemStock(r.Context(), itemID, *req.Quantity); err != nil {
		log.Printf("[Admin] Stock update for %s failed: %v", itemID, err)
		response.Error(w, apierror.UpstreamError(err.Error()))
		return
	}

	log.Printf("[Admin] Stock for %s set to %d", itemID, *req.Quantity)
	response.OK(w, map[string]interface{}{"item_id": itemID, "quantity": *req.Quantity})
}

// CatalogDiagnostics compares local tracking against the marketplace.
// A tracked count well below the active-listing count means the full
// audit has not covered the catalog yet.
type CatalogDiagnostics struct {
	TrackedItems int64 `json:"tracked_items"`
	ActiveItems  int   `json:"active_items"`
}

// GetCatalog handles GET /api/v1/admin/catalog
func (h *AdminHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	tracked, err := h.snapshots.Count(r.Context())
	if err != nil {
		response.Error(w, apierror.InternalError(err.Error()))
		return
	}

	sellerID, err := h.seller.SellerID(r.Context())
	if err != nil {
		response.Error(w, apierror.UpstreamError(err.Error()))
		return
	}
	// Only the paging total is needed, so ask for a single result.
	page, err := h.api.SearchActiveItems(r.Context(), sellerID, 0, 1)
	if err != nil {
		log.Printf("[Admin] Active-items lookup failed: %v", err)
		response.Error(w, apierror.UpstreamError(err.Error()))
		return
	}

	response.OK(w, CatalogDiagnostics{
		TrackedItems: tracked,
		ActiveItems:  page.Paging.Total,
	})
}

// RecoverFeeds handles POST /api/v1/admin/feeds. It pulls undelivered
// notifications from the marketplace and re-queues them; a truncated
// result means another run is needed to finish.
func (h *AdminHandler) RecoverFeeds(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")

	result, err := h.recovery.Run(r.Context(), topic)
	if err != nil {
		log.Printf("[Admin] Missed feeds recovery failed: %v", err)
		response.Error(w, apierror.UpstreamError(err.Error()))
		return
	}
	response.OK(w, result)
}

// GetReport handles GET /api/v1/admin/report
func (h *AdminHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.report.Build(r.Context())
	if err != nil {
		response.Error(w, apierror.InternalError(err.Error()))
		return
	}
	response.OK(w, report)
}
