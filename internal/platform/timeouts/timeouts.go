// Package timeouts defines shared timeout constants used by the gateway
// processes so HTTP, WebSocket and storage boundaries agree on durations.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// Keepalive is the default period between liveness sweeps of open sockets.
const Keepalive = 30 * time.Second

// WebSocketWrite bounds a single outbound frame or control write.
const WebSocketWrite = 10 * time.Second

// Handshake bounds the WebSocket upgrade handshake on the client side.
const Handshake = 10 * time.Second

// StorageCall caps one persistence or credential lookup round trip.
const StorageCall = 3 * time.Second
