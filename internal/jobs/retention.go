// Package jobs runs periodic maintenance against the database.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/dtroode/vault-protector/internal/logger"
	"github.com/dtroode/vault-protector/internal/model"
)

// AuditPurger deletes old audit entries in batches.
type AuditPurger interface {
	DeleteOlderThan(ctx context.Context, before time.Time, limit int) (int64, error)
}

// SessionPurger deletes sessions that expired or were revoked long ago.
type SessionPurger interface {
	DeleteStale(ctx context.Context, before time.Time, limit int) (int64, error)
}

// Config holds configuration for the retention job.
type Config struct {
	AuditRetention   time.Duration
	SessionRetention time.Duration
	Interval         time.Duration
	BatchSize        int
	BatchDelay       time.Duration
	Timeout          time.Duration
}

// DefaultConfig keeps audit entries for 90 days and dead sessions for 30,
// sweeping hourly.
func DefaultConfig() Config {
	return Config{
		AuditRetention:   model.AuditRetention,
		SessionRetention: 30 * 24 * time.Hour,
		Interval:         time.Hour,
		BatchSize:        1000,
		BatchDelay:       100 * time.Millisecond,
		Timeout:          10 * time.Minute,
	}
}

type purgeFunc func(ctx context.Context, before time.Time, limit int) (int64, error)

type task struct {
	name      string
	retention time.Duration
	purge     purgeFunc
}

// Retention periodically purges audit entries and stale sessions.
type Retention struct {
	cfg    Config
	tasks  []task
	logger *logger.Logger
	now    func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewRetention creates a new retention job. Zero config fields fall back to
// DefaultConfig.
func NewRetention(audits AuditPurger, sessions SessionPurger, cfg Config, logger *logger.Logger) *Retention {
	def := DefaultConfig()
	if cfg.AuditRetention <= 0 {
		cfg.AuditRetention = def.AuditRetention
	}
	if cfg.SessionRetention <= 0 {
		cfg.SessionRetention = def.SessionRetention
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	return &Retention{
		cfg: cfg,
		tasks: []task{
			{name: "audit_logs", retention: cfg.AuditRetention, purge: audits.DeleteOlderThan},
			{name: "sessions", retention: cfg.SessionRetention, purge: sessions.DeleteStale},
		},
		logger: logger,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
}

// Start runs a sweep immediately and then on every interval in the background.
func (r *Retention) Start() {
	r.logger.Info("Retention job: starting",
		"audit_retention", r.cfg.AuditRetention.String(),
		"session_retention", r.cfg.SessionRetention.String(),
		"interval", r.cfg.Interval.String())

	r.wg.Add(1)
	go r.loop()
}

// Stop ends the loop and waits for an in-flight sweep to return.
func (r *Retention) Stop() {
	r.once.Do(func() { close(r.stopCh) })
	r.wg.Wait()
	r.logger.Info("Retention job: stopped")
}

func (r *Retention) loop() {
	defer r.wg.Done()

	r.Sweep()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-r.stopCh:
			return
		}
	}
}

// Sweep runs every purge once and returns the number of rows removed per
// table.
func (r *Retention) Sweep() map[string]int64 {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
	defer cancel()

	go func() {
		select {
		case <-r.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	removed := make(map[string]int64, len(r.tasks))
	for _, t := range r.tasks {
		cutoff := r.now().Add(-t.retention)
		n, err := r.purge(ctx, t, cutoff)
		removed[t.name] = n
		if err != nil {
			r.logger.Error("Retention job: purge failed",
				"table", t.name,
				"deleted_count", n,
				"error", err.Error())
			continue
		}
		if n > 0 {
			r.logger.Info("Retention job: purge complete",
				"table", t.name,
				"deleted_count", n,
				"cutoff_time", cutoff.Format(time.RFC3339))
		}
	}
	return removed
}

// purge deletes in batches until a short batch signals the backlog is gone.
func (r *Retention) purge(ctx context.Context, t task, cutoff time.Time) (int64, error) {
	var total int64
	for {
		deleted, err := t.purge(ctx, cutoff, r.cfg.BatchSize)
		if err != nil {
			return total, err
		}
		total += deleted

		if deleted < int64(r.cfg.BatchSize) {
			return total, nil
		}

		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case <-time.After(r.cfg.BatchDelay):
		}
	}
}
