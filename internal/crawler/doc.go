// Package crawler archives a web site by walking its link graph.
//
// # Architecture
//
// Crawler runs a breadth-first traversal from a seed URL. Every page it
// fetches is handed to the extract package for link discovery and saved
// as a new snapshot in the archive. When the traversal stops, the
// archive's cross-references are rebuilt once and the optional Indexer
// regenerates the browsable index.
//
// The traversal is strictly sequential: one fetch at a time, with the
// configured delay before each one.
//
// # Components
//
//   - Crawler: the frontier, the visited set and the run loop
//   - Fetcher: retrieves a page; HTTPFetcher is the network implementation
//   - RobotsPolicy: cached robots.txt rules used by HTTPFetcher
//
// # Termination
//
// A run stops when the frontier is empty or when the number of captured
// pages reaches the page budget. URLs deeper than the depth limit are
// dequeued and dropped without a fetch. A URL whose fetch fails still
// counts as visited and is never retried within the run.
//
// # Usage
//
//	c := crawler.New(fetcher, archive, crawler.WithMaxDepth(2))
//	result, err := c.Run(ctx, "https://example.com/")
package crawler
