// internal/executor/wait.go
package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Condition reports whether an awaited page state has been reached.
type Condition func(ctx context.Context) (bool, error)

// WaitUntil polls cond at the executor's poll interval until it holds or
// timeout elapses, in which case the error wraps ErrTimeout.
func (e *Executor) WaitUntil(ctx context.Context, what string, timeout time.Duration, cond Condition) error {
	return e.Poll(ctx, what, timeout, e.opts.PollInterval, cond)
}

// Poll is WaitUntil with an explicit interval. Condition errors are logged
// and treated as "not yet".
func (e *Executor) Poll(ctx context.Context, what string, timeout, interval time.Duration, cond Condition) error {
	if interval <= 0 {
		interval = e.opts.PollInterval
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(interval), 1)
	for {
		if err := limiter.Wait(runCtx); err != nil {
			<-runCtx.Done()
			break
		}
		ok, err := cond(runCtx)
		if err != nil {
			e.logger.Debug("Condition check failed.", zap.String("waiting_for", what), zap.Error(err))
		}
		if ok {
			return nil
		}
		if runCtx.Err() != nil {
			break
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%s: %w after %s", what, ErrTimeout, timeout)
}
