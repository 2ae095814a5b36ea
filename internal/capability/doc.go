// Package capability describes the device facilities a capture can draw on.
//
// A capture never probes the environment ad hoc. It receives a Set whose
// members implement the capability interfaces (Geolocator, ICEGatherer,
// WiFiScanner, BeaconScanner, CellScanner, ConnectionInfo, Renderer,
// EnvironmentReader). A facility that does not exist is represented by the
// Unsupported variant, which returns ErrUnsupported from every method, so
// callers never need nil checks.
//
// Two sources of capabilities exist in this module:
//
//   - Snapshot capabilities (package snapshot) replay the signals collected by a
//     client-side agent.
//   - Local capabilities (Local) describe the host running the binary: the
//     operating environment, network interface addresses and an offscreen
//     raster renderer. Everything else on the host is Unsupported.
package capability
