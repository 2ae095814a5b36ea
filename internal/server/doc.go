// Package server exposes capture, session events and record queries over
// HTTP.
//
// A tracking page posts its capability snapshot to the access endpoint,
// which assembles and stores a record and opens a session tracker. The page
// then reports focus, visibility, download and unload events against the
// returned access id. Events are buffered per access and checkpointed by
// the session registry; the unload call flushes them immediately.
//
// Routes are registered on a chi router. Request bodies are validated with
// go-playground/validator and every request is counted in the Prometheus
// metrics served on /metrics.
package server
