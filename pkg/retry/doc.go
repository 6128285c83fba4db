// Package retry implements the per-call retry state machine used by the
// request gate.
//
// A Machine moves through Attempt, Backoff, Fail and Succeed. Each
// retryable error kind has its own Rule with an independent failure counter:
//
//   - network: 3 attempts, fixed 5s delay
//   - rate_limit: 5 minute cooldown, bounded by max_cooldowns
//   - server_error (502/503/504): 60s cooldown, 3 attempts
//
// Any other kind, including auth failures, moves straight to Fail.
//
//	runner := retry.NewRunner(retry.PolicyFromConfig(cfg.RateLimit), log)
//	err := runner.Run(ctx, "twitter.request", func(ctx context.Context, attempt int) error {
//		return doRequest(ctx)
//	})
package retry
