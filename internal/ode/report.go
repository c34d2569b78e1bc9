package ode

import (
	"github.com/patrickmn/go-cache"

	"github.com/tphakala/odeflow/internal/errors"
	"github.com/tphakala/odeflow/internal/logger"
)

func newReportCache() *cache.Cache {
	return cache.New(cache.NoExpiration, 0)
}

// reportSkip records that action a skipped an occurrence. The skip is
// counted every time but logged and raised as an error only the first time
// for a given action, reason and target.
func reportSkip(occ *Occurrence, a Action, reason, target string) {
	env := occ.env
	env.metrics.ActionSkipped(a.Name(), reason)

	key := a.Name() + "\x00" + reason + "\x00" + target
	if env.reported.Add(key, struct{}{}, cache.NoExpiration) != nil {
		return
	}

	err := errors.Newf("action %q skipped, %s %q: %w", a.Name(), reason, target, ErrUnresolved).
		Component(componentName).
		Category(errors.CategoryRuntime).
		Context("action", a.Name()).
		Context("trigger", occ.TriggerName()).
		Context("target", target).
		Build()
	env.log.Warn("action skipped",
		logger.String("action", a.Name()),
		logger.String("trigger", occ.TriggerName()),
		logger.String("reason", reason),
		logger.String("target", target),
		logger.Error(err))
}
