package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"meli-stock-audit/internal/meli"
	"meli-stock-audit/internal/model"
	"meli-stock-audit/internal/repository"
)

type fakeOrders struct {
	orders []meli.Order
	err    error
	calls  int
}

func (f *fakeOrders) SearchRecentOrders(ctx context.Context, sellerID int64, since time.Time) (*meli.OrderSearch, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &meli.OrderSearch{Results: f.orders}, nil
}

type fakeSeller int64

func (f fakeSeller) SellerID(ctx context.Context) (int64, error) {
	return int64(f), nil
}

func newTestReconciler(store *repository.MemoryStore, orders *fakeOrders) *ReconcileService {
	return NewReconcileService(store, store, store, orders, fakeSeller(123), 15*time.Minute)
}

func item(id, sku string, stock int) meli.Item {
	return meli.Item{ID: id, Title: "Taza ceramica", SellerCustomField: sku, AvailableQuantity: stock}
}

func orderWith(itemID, status string) meli.Order {
	var line meli.OrderItem
	line.Item.ID = itemID
	line.Quantity = 1
	return meli.Order{ID: 555, Status: status, OrderItems: []meli.OrderItem{line}}
}

func TestProcessItemFirstSightingCreatesSnapshotOnly(t *testing.T) {
	store := repository.NewMemoryStore()
	s := newTestReconciler(store, &fakeOrders{})
	ctx := context.Background()

	if err := s.ProcessItem(ctx, item("MLA-X1", "X1", 10)); err != nil {
		t.Fatalf("ProcessItem failed: %v", err)
	}

	snap, _ := store.Get(ctx, "MLA-X1")
	if snap == nil || snap.Stock != 10 {
		t.Fatalf("expected snapshot with stock 10, got %+v", snap)
	}
	if got := store.Movements(); len(got) != 0 {
		t.Fatalf("first sighting must not log a movement, got %d", len(got))
	}
}

func TestProcessItemDecreaseWithoutOrderIsPhantom(t *testing.T) {
	store := repository.NewMemoryStore()
	s := newTestReconciler(store, &fakeOrders{})
	ctx := context.Background()

	if err := s.ProcessItem(ctx, item("MLA-X1", "X1", 10)); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := s.ProcessItem(ctx, item("MLA-X1", "X1", 7)); err != nil {
		t.Fatalf("ProcessItem failed: %v", err)
	}

	moves := store.Movements()
	if len(moves) != 1 {
		t.Fatalf("expected 1 movement, got %d", len(moves))
	}
	m := moves[0]
	if m.Reason != model.ReasonPhantomChange {
		t.Fatalf("expected %s, got %s", model.ReasonPhantomChange, m.Reason)
	}
	if m.OrderStatus != model.OrderStatusMissing {
		t.Fatalf("expected %s, got %s", model.OrderStatusMissing, m.OrderStatus)
	}
	if m.OldStock != 10 || m.NewStock != 7 || m.Difference != -3 {
		t.Fatalf("unexpected movement: %+v", m)
	}

	alerts := s.Alerts()
	if len(alerts) != 1 || alerts[0].ItemID != "MLA-X1" {
		t.Fatalf("expected 1 phantom alert, got %+v", alerts)
	}

	snap, _ := store.Get(ctx, "MLA-X1")
	if snap.Stock != 7 {
		t.Fatalf("snapshot must track the new stock, got %d", snap.Stock)
	}
}

func TestProcessItemDecreaseWithPaidOrderIsSale(t *testing.T) {
	store := repository.NewMemoryStore()
	orders := &fakeOrders{orders: []meli.Order{orderWith("MLA-X1", "paid")}}
	s := newTestReconciler(store, orders)
	ctx := context.Background()

	if err := s.ProcessItem(ctx, item("MLA-X1", "X1", 10)); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := s.ProcessItem(ctx, item("MLA-X1", "X1", 9)); err != nil {
		t.Fatalf("ProcessItem failed: %v", err)
	}

	moves := store.Movements()
	if len(moves) != 1 {
		t.Fatalf("expected 1 movement, got %d", len(moves))
	}
	if moves[0].Reason != model.ReasonSale {
		t.Fatalf("expected %s, got %s", model.ReasonSale, moves[0].Reason)
	}
	if moves[0].OrderStatus != "paid" {
		t.Fatalf("expected order status paid, got %s", moves[0].OrderStatus)
	}
	if len(s.Alerts()) != 0 {
		t.Fatalf("sales must not raise alerts")
	}
}

func TestProcessItemIncreaseIsRestock(t *testing.T) {
	store := repository.NewMemoryStore()
	orders := &fakeOrders{}
	s := newTestReconciler(store, orders)
	ctx := context.Background()

	if err := s.ProcessItem(ctx, item("MLA-X1", "X1", 5)); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := s.ProcessItem(ctx, item("MLA-X1", "X1", 20)); err != nil {
		t.Fatalf("ProcessItem failed: %v", err)
	}

	moves := store.Movements()
	if len(moves) != 1 {
		t.Fatalf("expected 1 movement, got %d", len(moves))
	}
	if moves[0].Reason != model.ReasonStockIncrease {
		t.Fatalf("expected %s, got %s", model.ReasonStockIncrease, moves[0].Reason)
	}
	if moves[0].OrderStatus != model.OrderStatusNone {
		t.Fatalf("expected %s, got %s", model.OrderStatusNone, moves[0].OrderStatus)
	}
	if orders.calls != 0 {
		t.Fatalf("restocks must not trigger order lookups, got %d", orders.calls)
	}
}

func TestProcessItemUnchangedStockLogsNothing(t *testing.T) {
	store := repository.NewMemoryStore()
	s := newTestReconciler(store, &fakeOrders{})
	ctx := context.Background()

	if err := s.ProcessItem(ctx, item("MLA-X1", "X1", 10)); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := s.ProcessItem(ctx, item("MLA-X1", "X1", 10)); err != nil {
		t.Fatalf("ProcessItem failed: %v", err)
	}

	if got := store.Movements(); len(got) != 0 {
		t.Fatalf("unchanged stock must not log movements, got %d", len(got))
	}
}

func TestOrderLookupFailureClassifiesAsPhantom(t *testing.T) {
	store := repository.NewMemoryStore()
	orders := &fakeOrders{err: errors.New("orders search unavailable")}
	s := newTestReconciler(store, orders)
	ctx := context.Background()

	if err := s.ProcessItem(ctx, item("MLA-X1", "X1", 10)); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := s.ProcessItem(ctx, item("MLA-X1", "X1", 8)); err != nil {
		t.Fatalf("ProcessItem failed: %v", err)
	}

	moves := store.Movements()
	if len(moves) != 1 || moves[0].Reason != model.ReasonPhantomChange {
		t.Fatalf("lookup failure must classify conservatively as phantom, got %+v", moves)
	}
}

func TestProcessBatchIsolatesFailures(t *testing.T) {
	store := repository.NewMemoryStore()
	s := newTestReconciler(store, &fakeOrders{})
	ctx := context.Background()

	items := []meli.Item{
		item("MLA-A", "A", 1),
		{}, // blank entry from a partial multiget
		item("MLA-B", "B", 2),
	}
	if got := s.ProcessBatch(ctx, items); got != 2 {
		t.Fatalf("expected 2 processed, got %d", got)
	}
	count, _ := store.Count(ctx)
	if count != 2 {
		t.Fatalf("expected 2 snapshots, got %d", count)
	}
}
