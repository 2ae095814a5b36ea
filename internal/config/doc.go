// Package config provides configuration structures and utilities for linkforensics.
//
// Config holds the runtime knobs (timeouts, rate limits, persistence and
// report options) populated from CLI flags. File holds data: the provider
// chains and the lookup tables for VPN networks, expected timezones and
// known beacons. It is loaded from a YAML file, validated with struct tags
// and can be watched for changes while the server runs.
package config
