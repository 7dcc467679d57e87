// Package dispatch owns the handler subscription table, the fault-isolating
// dispatch boundary, and the response publisher.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"kitmsg/internal/domain"
	"kitmsg/internal/metrics"
)

// Guard wraps h so that an error or panic is logged with the message type
// and handler label and then swallowed. The wrapped handler always returns
// nil, so a failing handler never reaches the transport.
func Guard(label string, h domain.Handler, logger *slog.Logger, rec metrics.Recorder) domain.Handler {
	if rec == nil {
		rec = metrics.Noop{}
	}
	return func(ctx context.Context, ev domain.InboundEvent) (err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
			rec.ObserveDispatch(ev.Type, time.Since(start))
			if err != nil {
				rec.HandlerFailed(ev.Type)
				logger.Error("handler failed",
					"type", ev.Type,
					"id", ev.ID,
					"handler", label,
					"client", ev.ClientID,
					"err", err,
				)
			}
			err = nil
		}()
		return h(ctx, ev)
	}
}
