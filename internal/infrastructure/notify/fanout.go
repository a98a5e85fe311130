package notify

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/truthguard/pkg/browser"
	"go.uber.org/zap"
)

// Fanout delivers each notification to every sink. A failing sink does not
// stop the others; their errors are joined.
type Fanout struct {
	sinks  []browser.Notifier
	logger *zap.Logger
}

func NewFanout(logger *zap.Logger, sinks ...browser.Notifier) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{sinks: sinks, logger: logger}
}

func (f *Fanout) Notify(ctx context.Context, n browser.Notification) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Notify(ctx, n); err != nil {
			f.logger.Warn("notification sink failed", zap.String("id", n.ID), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len reports the number of sinks.
func (f *Fanout) Len() int { return len(f.sinks) }
