// Package server serves an archive over HTTP.
//
// The archive directory is served as static files, so the index page and
// every wrapper page work exactly as they do from disk. A small JSON API
// under /api exposes the snapshot index and the archive statistics:
//
//	GET /api/snapshots            list snapshots, optionally ?domain=
//	GET /api/snapshots/{id}       one snapshot
//	GET /api/snapshots/{id}/content  stored page source as plain text
//	GET /api/stats                archive statistics
//	GET /healthz                  liveness probe
package server
