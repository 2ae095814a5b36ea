// Package session tracks what happens on a page after the access was
// captured: focus changes, visibility changes and download completion.
//
// Events are buffered in a Tracker and written to the store as partial
// updates, so the rest of the record is never touched. A tracker flushes
// periodically while it runs and once more when it stops. The last flush
// is best effort: if the host goes away before it completes, the events
// since the previous checkpoint are lost.
package session
