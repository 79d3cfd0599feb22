package service

import (
	"context"
	"testing"
	"time"

	"meli-stock-audit/internal/model"
	"meli-stock-audit/internal/repository"
)

func TestBuildAggregatesMovementsByReason(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	entries := []model.MovementEntry{
		{Timestamp: now.Add(-1 * time.Hour), ItemID: "MLA1", Reason: model.ReasonSale},
		{Timestamp: now.Add(-2 * time.Hour), ItemID: "MLA2", Reason: model.ReasonSale},
		{Timestamp: now.Add(-3 * time.Hour), ItemID: "MLA3", Reason: model.ReasonStockIncrease},
		{Timestamp: now.Add(-4 * time.Hour), ItemID: "MLA4", Reason: model.ReasonPhantomChange, Difference: -3},
		// Outside the 24h window, must not be counted.
		{Timestamp: now.Add(-30 * time.Hour), ItemID: "MLA5", Reason: model.ReasonSale},
	}
	for _, e := range entries {
		if err := store.Append(ctx, e); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	report, err := NewReportService(store, 24*time.Hour).Build(ctx)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if report.TotalMovements != 4 {
		t.Fatalf("expected 4 movements in window, got %d", report.TotalMovements)
	}
	if report.Sales != 2 || report.Restocks != 1 || report.Phantom != 1 {
		t.Fatalf("unexpected totals: %+v", report)
	}
	if len(report.PhantomDetails) != 1 || report.PhantomDetails[0].ItemID != "MLA4" {
		t.Fatalf("expected phantom detail for MLA4, got %+v", report.PhantomDetails)
	}
}

func TestBuildEmptyLogYieldsZeroReport(t *testing.T) {
	store := repository.NewMemoryStore()

	report, err := NewReportService(store, 0).Build(context.Background())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if report.TotalMovements != 0 || len(report.PhantomDetails) != 0 {
		t.Fatalf("expected empty report, got %+v", report)
	}
}
