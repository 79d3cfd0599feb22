package service

import (
	"context"
	"log"
	"sync"
	"time"

	"meli-stock-audit/internal/repository"
)

// MaintenanceConfig holds configuration for the maintenance scheduler.
type MaintenanceConfig struct {
	// LogRetention is how long movement log entries stay in the hot
	// table before moving to the archive. Default: 90 days.
	LogRetention time.Duration

	// Interval is how often maintenance runs. Default: 24 hours.
	Interval time.Duration
}

// DefaultMaintenanceConfig returns default maintenance configuration.
func DefaultMaintenanceConfig() MaintenanceConfig {
	return MaintenanceConfig{
		LogRetention: 90 * 24 * time.Hour,
		Interval:     24 * time.Hour,
	}
}

// MaintenanceScheduler periodically archives old movement log entries
// so the hot table stays small enough to query cheaply.
type MaintenanceScheduler struct {
	movements repository.MovementRepository
	config    MaintenanceConfig
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
}

// NewMaintenanceScheduler creates a new maintenance scheduler.
func NewMaintenanceScheduler(movements repository.MovementRepository, config MaintenanceConfig) *MaintenanceScheduler {
	if config.LogRetention == 0 {
		config.LogRetention = 90 * 24 * time.Hour
	}
	if config.Interval == 0 {
		config.Interval = 24 * time.Hour
	}

	return &MaintenanceScheduler{
		movements: movements,
		config:    config,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the maintenance scheduler.
func (s *MaintenanceScheduler) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.Interval)
	s.mu.Unlock()

	log.Printf("[Maintenance] Started - Interval: %v, Retention: %v",
		s.config.Interval, s.config.LogRetention)

	go s.run()
}

func (s *MaintenanceScheduler) run() {
	for {
		select {
		case <-s.ticker.C:
			s.runMaintenance()
		case <-s.stopCh:
			log.Printf("[Maintenance] Stopped")
			return
		}
	}
}

func (s *MaintenanceScheduler) runMaintenance() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	archived, err := s.movements.Archive(ctx, s.config.LogRetention)
	if err != nil {
		log.Printf("[Maintenance] Error archiving movements: %v", err)
		return
	}

	if archived > 0 {
		log.Printf("[Maintenance] Archived %d movement entries older than %v", archived, s.config.LogRetention)
	} else {
		log.Printf("[Maintenance] No movement entries to archive")
	}
}

// Stop stops the maintenance scheduler.
func (s *MaintenanceScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
	})
}

// RunNow triggers an immediate maintenance run.
func (s *MaintenanceScheduler) RunNow(ctx context.Context) (int64, error) {
	return s.movements.Archive(ctx, s.config.LogRetention)
}
