package realtime

import "github.com/oklog/ulid/v2"

// NewConnID returns a ULID used as websocket connection id.
// ULID is preferable to random hex for tracing and ordering in logs.
func NewConnID() string {
	return ulid.Make().String()
}

// NewEnvelopeID returns a ULID used as outbound envelope id.
func NewEnvelopeID() string {
	return ulid.Make().String()
}
