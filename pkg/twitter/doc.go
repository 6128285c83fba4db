// Package twitter is the client for the web GraphQL API.
//
// Every attempt passes through the shared request gate and the retry state
// machine in pkg/retry. Rate limits and transient server errors are waited
// out inside the client; authentication failures come back immediately and
// can be recognised with IsAuthFailure.
//
//	client := twitter.NewClient(cfg.Twitter, cfg.RateLimit,
//		twitter.WithGate(gate),
//		twitter.WithEntityStore(cache),
//	)
//	page, err := client.UserMediaPage(ctx, "783214", 100, "")
package twitter
