// ABOUTME: Package documentation for the embedded pub/sub broker
// ABOUTME: Describes the publish and subscribe surfaces

// Package broker implements a small in-process pub/sub hub.
//
// Publishers POST JSON payloads to /api/publish guarded by an API key.
// Subscribers open a websocket at /connection/websocket with a bearer
// JWT, then send {"action":"subscribe","channel":...} commands. Every
// payload published to a channel is pushed to its current subscribers
// as {"channel":...,"data":...}; there is no replay or history.
package broker
