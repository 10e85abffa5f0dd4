// Package fault keeps one failing component from taking the game loop down.
package fault

import (
	"fmt"

	"go.uber.org/zap"

	"quizlive/internal/domain"
)

// Safe runs fn, logging any returned error or recovered panic under site.
// fallback, when non-nil, is invoked with the failure. Safe never
// propagates; the returned error is for callers that want to branch on
// the kind.
func Safe(log *zap.Logger, site string, fn func() error, fallback func(error)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.E(domain.KindUnknown, site, fmt.Errorf("panic: %v", r))
			report(log, site, err, fallback)
		}
	}()
	if err = fn(); err != nil {
		report(log, site, err, fallback)
	}
	return err
}

func report(log *zap.Logger, site string, err error, fallback func(error)) {
	if log != nil {
		kind := domain.KindOf(err)
		fields := []zap.Field{zap.String("site", site), zap.Stringer("kind", kind), zap.Error(err)}
		if kind == domain.KindDuplicateSubmission {
			log.Debug("ignored", fields...)
		} else {
			log.Warn("recovered failure", fields...)
		}
	}
	if fallback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil && log != nil {
			log.Error("fallback panicked", zap.String("site", site), zap.Any("panic", r))
		}
	}()
	fallback(err)
}
