// Package ratelimit provides the request gate that spaces platform requests.
//
// The gate keeps one "next allowed" timestamp per platform in a
// TimestampStore. Before each request it reads the timestamp, computes
// wake = max(now, next), stores wake + interval and then sleeps until wake.
// Stores exist for process memory, Redis and PostgreSQL so several workers
// can share one spacing budget.
//
//	gate := ratelimit.NewGate(ratelimit.NewMemoryStore(), "twitter", time.Second)
//	if err := gate.Acquire(ctx); err != nil {
//	    return err
//	}
package ratelimit
