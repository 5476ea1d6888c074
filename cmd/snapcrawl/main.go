// Package main provides the entry point for the snapcrawl CLI.
//
// snapcrawl captures a website into a browsable offline archive. Starting
// from a seed URL it crawls breadth-first, stores every page as a
// timestamped snapshot and links the snapshots to each other so the
// archive can be navigated without the network.
//
// Usage:
//
//	snapcrawl crawl <url>
//	snapcrawl list
//	snapcrawl serve
//
// See --help for all available options.
package main

// main is the entry point for snapcrawl.
func main() {
	Execute()
}
