package service

import (
	"context"
	"time"

	"meli-stock-audit/internal/model"
	"meli-stock-audit/internal/repository"
)

// DailyReport summarizes the last reporting window of stock movements.
type DailyReport struct {
	From           time.Time             `json:"from"`
	To             time.Time             `json:"to"`
	TotalMovements int                   `json:"total_movements"`
	Sales          int                   `json:"sales"`
	Restocks       int                   `json:"restocks"`
	Phantom        int                   `json:"phantom"`
	Other          int                   `json:"other"`
	PhantomDetails []model.MovementEntry `json:"phantom_details"`
}

// ReportService builds movement summaries from the movement log.
type ReportService struct {
	movements repository.MovementRepository
	window    time.Duration
}

// NewReportService creates a report service. A non-positive window
// defaults to 24 hours.
func NewReportService(movements repository.MovementRepository, window time.Duration) *ReportService {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &ReportService{movements: movements, window: window}
}

// Build aggregates the movement log over the reporting window. Phantom
// movements are itemized so the report surfaces exactly which items
// changed without a matching order.
func (s *ReportService) Build(ctx context.Context) (*DailyReport, error) {
	now := time.Now()
	from := now.Add(-s.window)

	entries, err := s.movements.Since(ctx, from)
	if err != nil {
		return nil, err
	}

	report := &DailyReport{
		From:           from,
		To:             now,
		TotalMovements: len(entries),
		PhantomDetails: []model.MovementEntry{},
	}

	for _, entry := range entries {
		switch entry.Reason {
		case model.ReasonSale:
			report.Sales++
		case model.ReasonStockIncrease:
			report.Restocks++
		case model.ReasonPhantomChange:
			report.Phantom++
			report.PhantomDetails = append(report.PhantomDetails, entry)
		default:
			report.Other++
		}
	}

	return report, nil
}
