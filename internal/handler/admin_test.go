package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"meli-stock-audit/internal/meli"
	"meli-stock-audit/internal/model"
	"meli-stock-audit/internal/repository"
	"meli-stock-audit/internal/service"
)

func snapshotFor(itemID string) model.ItemSnapshot {
	return model.ItemSnapshot{
		ItemID:      itemID,
		SKU:         itemID,
		Title:       "Articulo",
		Stock:       3,
		LastUpdated: time.Now(),
	}
}

type fakeMarketplace struct {
	registeredURL string
	stockUpdates  map[string]int
	activeTotal   int
}

func (f *fakeMarketplace) RegisterWebhook(ctx context.Context, appID int64, notificationURL string) error {
	f.registeredURL = notificationURL
	return nil
}

func (f *fakeMarketplace) UpdateItemStock(ctx context.Context, itemID string, quantity int) error {
	if f.stockUpdates == nil {
		f.stockUpdates = make(map[string]int)
	}
	f.stockUpdates[itemID] = quantity
	return nil
}

func (f *fakeMarketplace) SearchActiveItems(ctx context.Context, userID int64, offset, limit int) (*meli.ScrollPage, error) {
	return &meli.ScrollPage{Paging: meli.Paging{Total: f.activeTotal}}, nil
}

type fakeSellerSource int64

func (f fakeSellerSource) SellerID(ctx context.Context) (int64, error) {
	return int64(f), nil
}

type noOrders struct{}

func (noOrders) SearchRecentOrders(ctx context.Context, sellerID int64, since time.Time) (*meli.OrderSearch, error) {
	return &meli.OrderSearch{}, nil
}

type fakeFeeds struct {
	messages []meli.FeedMessage
}

func (f *fakeFeeds) GetMissedFeeds(ctx context.Context, appID int64, topic string, offset, limit int) (*meli.FeedPage, error) {
	if offset >= len(f.messages) {
		return &meli.FeedPage{}, nil
	}
	return &meli.FeedPage{Messages: f.messages[offset:]}, nil
}

func newAdminTest(mkt *fakeMarketplace) (*AdminHandler, *repository.MemoryStore) {
	return newAdminTestWithFeeds(mkt, &fakeFeeds{})
}

func newAdminTestWithFeeds(mkt *fakeMarketplace, feeds *fakeFeeds) (*AdminHandler, *repository.MemoryStore) {
	store := repository.NewMemoryStore()
	queue := service.NewQueueService(store.Properties(), store, service.DefaultQueueConfig())
	reconcile := service.NewReconcileService(store, store, store, noOrders{}, fakeSellerSource(123), 0)
	audit := service.NewAuditService(nil, reconcile, store.Properties(), fakeSellerSource(123), service.AuditConfig{})
	report := service.NewReportService(store, 0)
	recovery := service.NewRecoveryService(feeds, queue, 4242)
	h := NewAdminHandler(queue, reconcile, audit, report, recovery, store, mkt, fakeSellerSource(123), 4242)
	return h, store
}

func adminRouter(h *AdminHandler) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Get("/queue", h.GetQueueStats)
		r.Get("/alerts", h.GetAlerts)
		r.Get("/audit", h.GetAuditStatus)
		r.Post("/webhook", h.RegisterWebhook)
		r.Post("/feeds", h.RecoverFeeds)
		r.Put("/items/{item_id}/stock", h.UpdateStock)
		r.Get("/catalog", h.GetCatalog)
		r.Get("/report", h.GetReport)
	})
	return r
}

func TestGetQueueStatsEmptyQueue(t *testing.T) {
	h, _ := newAdminTest(&fakeMarketplace{})
	rec := httptest.NewRecorder()
	adminRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/queue", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Pending     int `json:"pending"`
			MaxCapacity int `json:"max_capacity"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !body.Success || body.Data.Pending != 0 || body.Data.MaxCapacity != 1000 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestRegisterWebhookRequiresURL(t *testing.T) {
	h, _ := newAdminTest(&fakeMarketplace{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/webhook", strings.NewReader(`{}`))
	adminRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRegisterWebhookForwardsURL(t *testing.T) {
	mkt := &fakeMarketplace{}
	h, _ := newAdminTest(mkt)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/webhook",
		strings.NewReader(`{"notification_url":"https://example.com/webhook"}`))
	adminRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if mkt.registeredURL != "https://example.com/webhook" {
		t.Fatalf("expected URL forwarded, got %q", mkt.registeredURL)
	}
}

func TestUpdateStockRejectsNegativeQuantity(t *testing.T) {
	h, _ := newAdminTest(&fakeMarketplace{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/items/MLA1/stock",
		strings.NewReader(`{"quantity":-5}`))
	adminRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUpdateStockForwardsQuantity(t *testing.T) {
	mkt := &fakeMarketplace{}
	h, _ := newAdminTest(mkt)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/items/MLA1/stock",
		strings.NewReader(`{"quantity":12}`))
	adminRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if mkt.stockUpdates["MLA1"] != 12 {
		t.Fatalf("expected stock update forwarded, got %+v", mkt.stockUpdates)
	}
}

func TestRecoverFeedsEnqueuesMissedNotifications(t *testing.T) {
	feeds := &fakeFeeds{messages: []meli.FeedMessage{
		{Topic: "items", Resource: "/items/MLA1"},
		{Topic: "items", Resource: "/items/MLA2"},
	}}
	h, _ := newAdminTestWithFeeds(&fakeMarketplace{}, feeds)

	rec := httptest.NewRecorder()
	adminRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/feeds", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Data model.RecoveryResult `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Data.Enqueued != 2 {
		t.Fatalf("expected 2 enqueued, got %+v", body.Data)
	}

	stats, err := h.queue.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Pending != 2 {
		t.Fatalf("expected 2 pending after recovery, got %d", stats.Pending)
	}
}

func TestGetCatalogComparesTrackedAndActive(t *testing.T) {
	mkt := &fakeMarketplace{activeTotal: 42}
	h, store := newAdminTest(mkt)
	ctx := context.Background()
	if err := store.Upsert(ctx, snapshotFor("MLA1")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	rec := httptest.NewRecorder()
	adminRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/catalog", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Data CatalogDiagnostics `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Data.TrackedItems != 1 || body.Data.ActiveItems != 42 {
		t.Fatalf("unexpected diagnostics: %+v", body.Data)
	}
}
