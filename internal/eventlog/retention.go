package eventlog

import (
	"context"
	"time"

	"github.com/tphakala/odeflow/internal/errors"
	"github.com/tphakala/odeflow/internal/logger"
)

// Pruner deletes occurrences older than the retention period.
type Pruner struct {
	repo      Repository
	retention time.Duration
	interval  time.Duration
	log       logger.Logger
	now       func() time.Time
}

// NewPruner creates a pruner. A non-positive retention disables pruning.
func NewPruner(repo Repository, retention, interval time.Duration, log logger.Logger) *Pruner {
	if log == nil {
		log = logger.Global()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Pruner{
		repo:      repo,
		retention: retention,
		interval:  interval,
		log:       log.Module(componentName),
		now:       time.Now,
	}
}

// Prune deletes expired rows once and returns how many were removed.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	if p.retention <= 0 {
		return 0, nil
	}
	cutoff := p.now().Add(-p.retention)
	n, err := p.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, errors.New(err).
			Component(componentName).
			Category(errors.CategoryDatabase).
			Context("operation", "prune").
			Build()
	}
	if n > 0 {
		p.log.Info("pruned occurrences",
			logger.Int64("deleted", n),
			logger.String("cutoff", cutoff.Format(time.RFC3339)))
	}
	return n, nil
}

// Run prunes immediately and then every interval until ctx ends. Prune
// failures are logged and retried on the next tick.
func (p *Pruner) Run(ctx context.Context) error {
	if p.retention <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		if _, err := p.Prune(ctx); err != nil && ctx.Err() == nil {
			p.log.Warn("prune failed", logger.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
