package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultRetryDelay is the base backoff when Options.RetryDelay is zero.
const DefaultRetryDelay = 2 * time.Second

// ExecuteWithRetry runs Execute up to opts.MaxRetries+1 times. A failed or
// timed-out result and a launch error are retried; a ConfigError stops
// immediately, as does a user interrupt. The last attempt's outcome is
// always returned: its Result when it produced one, otherwise its error.
func (e *Executor) ExecuteWithRetry(ctx context.Context, name, prompt string, opts Options) (*Result, error) {
	attempts := opts.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	base := opts.RetryDelay
	if base <= 0 {
		base = DefaultRetryDelay
	}

	var (
		res *Result
		err error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		opts.attempt = attempt
		res, err = e.run(ctx, name, prompt, opts)
		if res != nil {
			res.Attempts = attempt
		}
		if IsConfigError(err) {
			return nil, err
		}
		if err == nil && res != nil && res.Succeeded {
			return res, nil
		}
		if res != nil && res.Interrupted {
			break
		}
		if attempt == attempts || ctx.Err() != nil {
			break
		}

		delay := base * time.Duration(attempt)
		reason := failureReason(res, err)
		e.log.Debug("retrying", zap.Int("attempt", attempt), zap.String("reason", reason), zap.Duration("delay", delay))
		e.activity.Retry(attempt, reason, delay)
		e.reporter.Warn("attempt %d/%d failed (%s); retrying in %s", attempt, attempts, reason, delay)
		if serr := e.sleep(ctx, delay); serr != nil {
			break
		}
	}
	if res != nil {
		return res, nil
	}
	return nil, err
}

func failureReason(res *Result, err error) string {
	var le *LaunchError
	switch {
	case errors.As(err, &le):
		return le.Err.Error()
	case err != nil:
		return err.Error()
	case res == nil:
		return "no result"
	case res.TimedOut:
		return "timed out"
	case res.IsError:
		return "result reported an error"
	default:
		return fmt.Sprintf("exit code %d", res.ExitCode)
	}
}
