package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	outboxSize    = 256
	renderTimeout = 15 * time.Second
)

type job struct {
	name string
	fn   func(ctx context.Context) error
}

// outbox runs render jobs one at a time, in publish order. Events are raised
// while queue locks are held; Discord calls are done here instead.
type outbox struct {
	jobs chan job
	log  *zap.Logger
}

func newOutbox(log *zap.Logger) *outbox {
	return &outbox{jobs: make(chan job, outboxSize), log: log}
}

// push never blocks the publisher; a full outbox drops the job.
func (o *outbox) push(name string, fn func(ctx context.Context) error) {
	select {
	case o.jobs <- job{name: name, fn: fn}:
	default:
		o.log.Warn("outbox full, render dropped", zap.String("job", name))
	}
}

func (o *outbox) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-o.jobs:
			if err := safeCycle(ctx, renderTimeout, j.fn); err != nil {
				o.log.Warn("render failed", zap.String("job", j.name), zap.Error(err))
			}
		}
	}
}
