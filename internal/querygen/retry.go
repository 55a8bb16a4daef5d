/*-------------------------------------------------------------------------
 *
 * exoquery - Model Call Retries
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package querygen

import (
	"context"
	"errors"
	"time"

	qerrors "exoquery/internal/errors"
	"exoquery/internal/logging"
)

// complete calls the model, repeating timed-out calls with exponential
// backoff. Other failures are returned at once.
func (g *Generator) complete(ctx context.Context, log *logging.Logger, step, prompt string) (string, error) {
	backoff := g.opts.RetryBackoff
	for attempt := 0; ; attempt++ {
		reply, err := g.model.Complete(ctx, prompt)
		if err == nil {
			return reply, nil
		}
		if !errors.Is(err, qerrors.ErrModelTimeout) || attempt >= g.opts.TimeoutRetries {
			return "", err
		}

		log.Warn("model_call_retry", "step", step, "attempt", attempt+1, "backoff_ms", backoff.Milliseconds(), "error", err)
		select {
		case <-ctx.Done():
			return "", qerrors.ModelTimeout("cancelled while waiting to retry", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// completeJSON calls the model and hands the reply to parse. A malformed
// reply is re-prompted up to MalformedRetries times.
func (g *Generator) completeJSON(ctx context.Context, log *logging.Logger, step, prompt string, parse func(reply string) error) error {
	for attempt := 0; ; attempt++ {
		reply, err := g.complete(ctx, log, step, prompt)
		if err != nil {
			return err
		}
		err = parse(reply)
		if err == nil {
			return nil
		}
		if !errors.Is(err, qerrors.ErrMalformedModelOutput) || attempt >= g.opts.MalformedRetries {
			return err
		}
		log.Warn("model_output_malformed_retry", "step", step, "attempt", attempt+1, "error", err)
	}
}
