// Package store provides the snapshot store: the durable mapping from
// snapshot ID to captured-page metadata, and the cross-reference pass that
// decides which discovered links point at captured pages.
//
// The Store keeps every record in memory and writes the whole index through
// an Index backend after each change. Two backends exist:
//   - JSONIndex: a single index.json file, rewritten atomically
//   - SQLiteIndex: a SQLite database (via modernc.org/sqlite)
//
// Raw page content is written separately through a ContentWriter.
//
// # Cross-references
//
// ResolveCaptured is a read-only query. LinksCaptured on each record is only
// changed by RecomputeAllCrossReferences, an explicit batch pass run by the
// caller after a crawl. Resolution is a linear scan over every record for
// every link, O(links x snapshots); the archive is meant for tens to low
// hundreds of pages.
//
// When several snapshots share a URL, the most recent capture wins. Records
// captured at the same instant are ordered by ID and the later one wins.
//
// # Concurrency
//
// Save and Persist perform a read-modify-write of the whole index with no
// merge logic. A Store must have a single writer; the internal lock only
// makes concurrent reads (for example from the HTTP server) safe.
package store
