package service

import (
	"context"
	"log"
	"sync"
	"time"

	"meli-stock-audit/internal/meli"
	"meli-stock-audit/internal/model"
	"meli-stock-audit/internal/repository"
)

// MaxAlerts caps the in-memory phantom-movement alert ring.
const MaxAlerts = 10

// DefaultOrderLookback is the recent-orders window used to decide
// whether a stock decrease was a sale.
const DefaultOrderLookback = 15 * time.Minute

// OrderAPI is the slice of the marketplace client the engine needs.
type OrderAPI interface {
	SearchRecentOrders(ctx context.Context, sellerID int64, since time.Time) (*meli.OrderSearch, error)
}

// SellerSource resolves the authenticated seller id.
type SellerSource interface {
	SellerID(ctx context.Context) (int64, error)
}

// ReconcileService compares freshly fetched item data against the
// stored snapshot, classifies every stock delta, and maintains the
// movement log. A decrease with no corroborating recent order is the
// phantom-movement signal this system exists to surface.
type ReconcileService struct {
	snapshots repository.SnapshotRepository
	movements repository.MovementRepository
	records   repository.RecordRepository
	orders    OrderAPI
	seller    SellerSource
	lookback  time.Duration

	mu     sync.Mutex
	alerts []model.Alert
}

// NewReconcileService creates the reconciliation engine.
func NewReconcileService(
	snapshots repository.SnapshotRepository,
	movements repository.MovementRepository,
	records repository.RecordRepository,
	orders OrderAPI,
	seller SellerSource,
	lookback time.Duration,
) *ReconcileService {
	if lookback <= 0 {
		lookback = DefaultOrderLookback
	}
	return &ReconcileService{
		snapshots: snapshots,
		movements: movements,
		records:   records,
		orders:    orders,
		seller:    seller,
		lookback:  lookback,
	}
}

// ProcessItem reconciles one fetched item against the snapshot.
// First sightings insert a snapshot without a log entry; unchanged
// stock only touches the timestamp.
func (s *ReconcileService) ProcessItem(ctx context.Context, item meli.Item) error {
	sku := item.SellerCustomField
	if sku == "" {
		sku = item.ID
	}
	title := item.Title
	if title == "" {
		title = "Sin título"
	}
	now := time.Now()

	snap, err := s.snapshots.Get(ctx, item.ID)
	if err != nil {
		return err
	}

	fresh := model.ItemSnapshot{
		ItemID:      item.ID,
		SKU:         sku,
		Title:       title,
		Stock:       item.AvailableQuantity,
		LastUpdated: now,
	}

	if snap == nil {
		// First sighting, not a change.
		return s.snapshots.Upsert(ctx, fresh)
	}

	if snap.Stock == item.AvailableQuantity {
		return s.snapshots.Upsert(ctx, fresh)
	}

	difference := item.AvailableQuantity - snap.Stock
	reason := model.ReasonChangeDetected
	orderStatus := model.OrderStatusNone

	switch {
	case difference > 0:
		reason = model.ReasonStockIncrease
	case difference < 0:
		found, status := s.checkRecentOrders(ctx, item.ID)
		if found {
			reason = model.ReasonSale
			orderStatus = status
		} else {
			reason = model.ReasonPhantomChange
			orderStatus = model.OrderStatusMissing
		}
	}

	entry := model.MovementEntry{
		Timestamp:   now,
		ItemID:      item.ID,
		SKU:         sku,
		OldStock:    snap.Stock,
		NewStock:    item.AvailableQuantity,
		Difference:  difference,
		Reason:      reason,
		OrderStatus: orderStatus,
	}
	if err := s.movements.Append(ctx, entry); err != nil {
		return err
	}

	if reason == model.ReasonPhantomChange {
		s.pushAlert(model.Alert{
			Timestamp:  now,
			ItemID:     item.ID,
			SKU:        sku,
			OldStock:   snap.Stock,
			NewStock:   item.AvailableQuantity,
			Difference: difference,
			Reason:     reason,
		})
		log.Printf("[Reconcile] Phantom movement on %s (%s): %d -> %d with no matching order",
			item.ID, sku, snap.Stock, item.AvailableQuantity)
	}

	return s.snapshots.Upsert(ctx, fresh)
}

// ProcessBatch reconciles a batch, isolating per-item failures so one
// bad item never aborts its siblings. Returns how many succeeded.
func (s *ReconcileService) ProcessBatch(ctx context.Context, items []meli.Item) int {
	processed := 0
	for _, item := range items {
		if item.ID == "" {
			continue
		}
		if err := s.ProcessItem(ctx, item); err != nil {
			log.Printf("[Reconcile] Failed to process item %s: %v", item.ID, err)
			s.logAPIError(ctx, "reconcile", 0, err.Error(), item.ID)
			continue
		}
		processed++
	}
	return processed
}

// checkRecentOrders looks for an order line referencing the item
// inside the lookback window. A failed lookup is treated as not-found
// so the movement is conservatively classified as phantom rather than
// silently dropped.
func (s *ReconcileService) checkRecentOrders(ctx context.Context, itemID string) (bool, string) {
	sellerID, err := s.seller.SellerID(ctx)
	if err != nil {
		s.logAPIError(ctx, "orders/search", 0, err.Error(), itemID)
		return false, ""
	}

	search, err := s.orders.SearchRecentOrders(ctx, sellerID, time.Now().Add(-s.lookback))
	if err != nil {
		s.logAPIError(ctx, "orders/search", statusOf(err), err.Error(), itemID)
		return false, ""
	}

	for _, order := range search.Results {
		for _, line := range order.OrderItems {
			if line.Item.ID == itemID {
				return true, order.Status
			}
		}
	}
	return false, ""
}

func (s *ReconcileService) pushAlert(alert model.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	if len(s.alerts) > MaxAlerts {
		s.alerts = s.alerts[len(s.alerts)-MaxAlerts:]
	}
}

// Alerts returns the most recent phantom-movement alerts, newest last.
func (s *ReconcileService) Alerts() []model.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

func (s *ReconcileService) logAPIError(ctx context.Context, endpoint string, status int, message, detail string) {
	err := s.records.AppendError(ctx, model.ErrorEntry{
		Endpoint: endpoint,
		Status:   status,
		Message:  message,
		Detail:   detail,
	})
	if err != nil {
		log.Printf("[Reconcile] Failed to write error table: %v", err)
	}
}

func statusOf(err error) int {
	if apiErr, ok := err.(*meli.Error); ok {
		return apiErr.Status
	}
	return 0
}
