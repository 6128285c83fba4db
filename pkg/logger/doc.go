// Package logger provides the structured logging interface used across the
// crawler.
//
// It wraps zerolog with a field-map API, a colored console writer for
// interactive runs and optional file output. Components accept a Logger
// explicitly; the package-level GetLogger is the fallback when none is
// injected.
//
//	log, err := logger.New(&cfg.Logging)
//	log.WithField("job_id", jobID).Info("Crawl started")
//
// Tests use NewTestLogger to capture messages, or NewNopLogger to discard them.
package logger
