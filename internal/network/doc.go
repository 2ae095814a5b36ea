// Package network resolves the network identity of an access.
//
// A Probe combines three independent sources:
//   - ordered lookup provider chains that report the public IP and the
//     ISP, ASN and country behind it
//   - ICE candidate gathering, which can disclose local addresses and a
//     public address that bypasses a VPN tunnel
//   - connection metadata, whose round-trip time and bandwidth hint at
//     tunnelled connections
//
// Every source may fail. A failed source contributes nothing; only the
// public IP has a visible failure value (model.PublicIPUnknown).
package network
