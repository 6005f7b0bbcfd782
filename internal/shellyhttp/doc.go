// Package shellyhttp is the plain-HTTP device transport.
//
// It implements shelly.Device over request/response HTTP for both
// device generations: Gen1 REST (/status) and RPC JSON-RPC (/rpc,
// Shelly.GetStatus). The package deliberately stops at polling - push
// channels (WebSocket, CoAP) belong to a separate transport that can be
// swapped in behind the same interface.
//
// HTTP and RPC failures are wrapped in the shelly package sentinels so
// the coordinator's failure classification works unchanged across
// transports.
package shellyhttp
