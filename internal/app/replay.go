package app

import (
	"context"
	"io"

	"golang.org/x/time/rate"

	"github.com/tphakala/odeflow/internal/detection"
	"github.com/tphakala/odeflow/internal/errors"
	"github.com/tphakala/odeflow/internal/logger"
)

// ReplayStats summarizes one replay run.
type ReplayStats struct {
	Batches int    `json:"batches"`
	Frames  int    `json:"frames"`
	Objects int    `json:"objects"`
	Events  uint64 `json:"events"`
}

// Replay feeds every batch decoded from r to the handler in order. A
// positive batchesPerSecond paces the input; zero replays as fast as the
// handler allows. Replay stops at EOF, at the first malformed line or when
// ctx ends.
func (a *App) Replay(ctx context.Context, r io.Reader, batchesPerSecond float64) (stats ReplayStats, err error) {
	var limiter *rate.Limiter
	if batchesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(batchesPerSecond), 1)
	}
	startEvents := a.Handler.EventCount()
	defer func() { stats.Events = a.Handler.EventCount() - startEvents }()

	br := detection.NewBatchReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		batch, nextErr := br.Next()
		if errors.Is(nextErr, io.EOF) {
			break
		}
		if nextErr != nil {
			return stats, errors.New(nextErr).
				Component(componentName).
				Category(errors.CategoryValidation).
				Context("line", br.Line()).
				Build()
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return stats, err
			}
		}

		a.Handler.ProcessBatch(nil, batch)
		stats.Batches++
		stats.Frames += len(batch.Frames)
		for _, f := range batch.Frames {
			if f == nil {
				continue
			}
			stats.Objects += len(f.Objects)
		}
	}

	a.Log.Info("replay finished",
		logger.Int("batches", stats.Batches),
		logger.Int("frames", stats.Frames),
		logger.Int("objects", stats.Objects),
		logger.Uint64("events", a.Handler.EventCount()-startEvents))
	return stats, nil
}
