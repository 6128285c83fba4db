// Package checkpoint records crawl job progress so an interrupted crawl can
// be resumed.
//
// A job record carries its phase (media or search timeline), a stage, the
// label of the page being fetched, the final ids and the temp ids gathered
// so far. Changing phase discards earlier ids. Recovering a job drains the
// temp ids in one atomic step.
//
// Records are kept as JSON files in the platform data directory:
//   - Linux: $XDG_DATA_HOME/twscraper/jobs/ or ~/.local/share/twscraper/jobs/
//   - macOS: ~/Library/Application Support/twscraper/jobs/
//   - Windows: %APPDATA%/twscraper/jobs/
//
// or in the job_progress table when PostgreSQL is configured.
package checkpoint
