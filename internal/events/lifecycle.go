package events

import "time"

// AppStarted is emitted once every feature module has registered its
// declarations. Subscribers finish composition in response.
type AppStarted struct {
	At time.Time
}

// SchemaMaterialized is emitted after the composed schema is built.
type SchemaMaterialized struct {
	Types    int
	Err      error
	Duration time.Duration
}

// IndexMirrorFailed is emitted when a document was stored but could not
// be written to the search index.
type IndexMirrorFailed struct {
	Index string
	ID    string
	Err   error
}
