// Package timeline crawls cursor-paginated timelines.
//
// The Iterator fetches pages one after another, keeps the media tweets of
// the page (optionally only those of one author) and stops on the first of:
// an empty first page, reaching the floor id, or a page without a bottom
// cursor. Ids come back newest first by numeric value.
//
// The Crawler wraps the iterator into the media, search and recover entry
// points and ties crawls to job progress records.
package timeline
