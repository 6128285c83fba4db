// Package storage holds the two persistence concerns that sit beside the
// crawler: the short-lived entity cache for raw API records and the asset
// Manager for retained media files.
//
// Entity stores exist in memory, Redis and PostgreSQL flavours behind the
// EntityStore interface. The Manager keeps assets in live, unlinked and
// archive areas and moves them as subscription elements change state; every
// move is idempotent.
package storage
