// Package location estimates the physical position of a device.
//
// The Triangulator runs five independent strategies concurrently (gps,
// wifi, bluetooth, cell, ip), each under its own deadline, and keeps the
// most accurate answer. Every strategy that answers counts as a source;
// sources raise the confidence of the result but never change which
// coordinate is reported.
//
// Strategies that need an external service resolve through provider
// chains built from the configuration file:
//
//	wifi := location.NewWiFiChain(client, cfg.Providers.WiFi)
//	ip := location.NewIPChain(client, cfg.Providers.IPGeolocation)
//	t := location.NewTriangulator(location.WithWiFiChain(wifi), location.WithIPChain(ip))
//	best := t.Triangulate(ctx, caps, clientIP)
//
// A nil result means no strategy answered; it is not an error.
package location
