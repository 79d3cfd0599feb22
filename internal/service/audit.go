package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"meli-stock-audit/internal/meli"
	"meli-stock-audit/internal/model"
	"meli-stock-audit/internal/repository"
)

// PropScanCursor is the property key for the persisted scan cursor.
const PropScanCursor = "AUDIT_SCAN_CURSOR"

// DefaultScanBudget bounds one scan slice so a run can checkpoint and
// hand control back instead of monopolizing the worker.
const DefaultScanBudget = 270 * time.Second

// CatalogAPI is the slice of the marketplace client the scanner needs.
type CatalogAPI interface {
	SearchUserItemsScroll(ctx context.Context, userID int64, scrollID string, limit int) (*meli.ScrollPage, error)
	GetItemsBatch(ctx context.Context, itemIDs []string) ([]meli.Item, error)
}

// AuditConfig tunes the full-audit scanner.
type AuditConfig struct {
	PageSize int
	Budget   time.Duration
}

// AuditService paginates the entire remote catalog with a scroll
// cursor, feeding batches through the reconciliation engine. Progress
// is persisted after every page so a bounded-time invocation can
// checkpoint and a later one resume where it left off.
type AuditService struct {
	catalog   CatalogAPI
	reconcile *ReconcileService
	props     repository.PropertyRepository
	seller    SellerSource
	cfg       AuditConfig

	now func() time.Time
}

// NewAuditService creates the full-audit scanner.
func NewAuditService(catalog CatalogAPI, reconcile *ReconcileService, props repository.PropertyRepository, seller SellerSource, cfg AuditConfig) *AuditService {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultScanBudget
	}
	return &AuditService{
		catalog:   catalog,
		reconcile: reconcile,
		props:     props,
		seller:    seller,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *AuditService) loadCursor(ctx context.Context) (*model.ScanCursor, error) {
	raw, err := s.props.Get(ctx, PropScanCursor)
	if err != nil {
		return nil, fmt.Errorf("failed to load scan cursor: %w", err)
	}
	if raw == "" {
		return nil, nil
	}
	var cursor model.ScanCursor
	if err := json.Unmarshal([]byte(raw), &cursor); err != nil {
		return nil, fmt.Errorf("failed to parse scan cursor: %w", err)
	}
	return &cursor, nil
}

func (s *AuditService) saveCursor(ctx context.Context, cursor model.ScanCursor) error {
	raw, err := json.Marshal(cursor)
	if err != nil {
		return fmt.Errorf("failed to serialize scan cursor: %w", err)
	}
	return s.props.Set(ctx, PropScanCursor, string(raw))
}

func (s *AuditService) clearCursor(ctx context.Context) error {
	return s.props.Delete(ctx, PropScanCursor)
}

// Run executes one bounded scan slice: resume from a saved cursor or
// start fresh, process pages until the catalog is exhausted or the
// wall-clock budget elapses, and persist the cursor after every page.
// An unrecoverable page failure clears the cursor so the next run
// starts over rather than retrying forever; timeouts keep the cursor
// and suspend instead.
func (s *AuditService) Run(ctx context.Context) (model.ScanResult, error) {
	start := s.now()

	sellerID, err := s.seller.SellerID(ctx)
	if err != nil {
		return model.ScanResult{Status: model.ScanIdle}, err
	}

	cursor, err := s.loadCursor(ctx)
	if err != nil {
		return model.ScanResult{Status: model.ScanIdle}, err
	}
	if cursor == nil {
		cursor = &model.ScanCursor{}
		log.Printf("[Audit] Starting full catalog scan")
	} else {
		log.Printf("[Audit] Resuming scan: %d/%d items fetched", cursor.Fetched, cursor.Total)
	}

	result := model.ScanResult{Status: model.ScanSuspended, Total: cursor.Total}

	for {
		page, err := s.catalog.SearchUserItemsScroll(ctx, sellerID, cursor.ScrollID, s.cfg.PageSize)
		if err != nil {
			// A cancelled context is an interruption, not a failure:
			// the cursor saved after the last page stays put so the
			// next run resumes instead of restarting.
			if meli.KindOf(err) == meli.KindTimeout || ctx.Err() != nil {
				log.Printf("[Audit] Interrupted, suspending at %d/%d items", cursor.Fetched, cursor.Total)
				return result, nil
			}
			// Unrecoverable: force a clean restart next time.
			if cerr := s.clearCursor(ctx); cerr != nil {
				log.Printf("[Audit] Failed to clear cursor after error: %v", cerr)
			}
			result.Status = model.ScanIdle
			return result, fmt.Errorf("scan page fetch failed: %w", err)
		}

		if cursor.Total == 0 {
			cursor.Total = page.Paging.Total
			result.Total = page.Paging.Total
		}

		if len(page.Results) == 0 {
			if err := s.clearCursor(ctx); err != nil {
				return result, err
			}
			result.Status = model.ScanComplete
			log.Printf("[Audit] Scan complete: %d items processed this run, %d fetched overall",
				result.Processed, cursor.Fetched)
			return result, nil
		}

		// Batch-fetch details and reconcile, isolating batch failures.
		for i := 0; i < len(page.Results); i += meli.BatchSize {
			end := i + meli.BatchSize
			if end > len(page.Results) {
				end = len(page.Results)
			}
			items, err := s.catalog.GetItemsBatch(ctx, page.Results[i:end])
			if err != nil {
				log.Printf("[Audit] Batch fetch failed at offset %d: %v", cursor.Fetched+i, err)
				continue
			}
			result.Processed += s.reconcile.ProcessBatch(ctx, items)
		}

		cursor.Fetched += len(page.Results)
		cursor.ScrollID = page.ScrollID
		result.Pages++

		if err := s.saveCursor(ctx, *cursor); err != nil {
			return result, err
		}

		if len(page.Results) < s.cfg.PageSize || page.ScrollID == "" {
			if err := s.clearCursor(ctx); err != nil {
				return result, err
			}
			result.Status = model.ScanComplete
			log.Printf("[Audit] Scan complete: %d items processed this run, %d fetched overall",
				result.Processed, cursor.Fetched)
			return result, nil
		}

		if s.now().Sub(start) >= s.cfg.Budget {
			log.Printf("[Audit] Budget elapsed after %d pages, suspending at %d/%d items",
				result.Pages, cursor.Fetched, cursor.Total)
			return result, nil
		}
	}
}

// Budget returns the wall-clock budget of one scan slice.
func (s *AuditService) Budget() time.Duration {
	return s.cfg.Budget
}

// Status reports the persisted scan state without running anything.
func (s *AuditService) Status(ctx context.Context) (model.ScanResult, error) {
	cursor, err := s.loadCursor(ctx)
	if err != nil {
		return model.ScanResult{}, err
	}
	if cursor == nil {
		return model.ScanResult{Status: model.ScanIdle}, nil
	}
	return model.ScanResult{
		Status:    model.ScanSuspended,
		Processed: cursor.Fetched,
		Total:     cursor.Total,
	}, nil
}

// Pending reports whether a suspended scan is waiting for continuation.
func (s *AuditService) Pending(ctx context.Context) bool {
	cursor, err := s.loadCursor(ctx)
	return err == nil && cursor != nil
}

// Reset discards the persisted cursor, forcing a fresh scan.
func (s *AuditService) Reset(ctx context.Context) error {
	return s.clearCursor(ctx)
}
