// Package main provides the entry point for the linkforensics CLI.
//
// linkforensics captures the forensic identity of whoever opens a tracked
// link: the public IP and its network, a device fingerprint and the best
// location the device can offer. Records are stored per access and can be
// reviewed, compared and enriched with session events later.
//
// Usage:
//
//	linkforensics capture --link <id> --audit <id> [--snapshot file.json]
//	linkforensics serve --listen 127.0.0.1:8080
//	linkforensics show <access-id>
//
// See --help for all available options.
package main

// main is the entry point for linkforensics.
func main() {
	Execute()
}
