// Package model defines the data structures shared by the crawler, the
// snapshot store and the renderers.
//
// The central type is Snapshot: one immutable captured copy of a page
// together with the links discovered on it. Snapshot identity is computed
// by GenerateID, a pure function of the source URL and an explicit capture
// time, so callers control the clock.
//
// LinksFound is recorded once at capture time. LinksCaptured is derived:
// it is rebuilt wholesale by the store's cross-reference pass and is never
// maintained incrementally.
package model
