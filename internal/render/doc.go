// Package render writes the browsable side of an archive: one wrapper page
// per snapshot, which frames the captured content and lists the links that
// lead to other snapshots, and the archive index page.
//
// Rendering reads only what the store recorded. It must run after the
// cross-reference pass, otherwise wrapper pages show stale captured links.
package render
