// ABOUTME: Package documentation for the chatrelay gateway
// ABOUTME: Describes the turn lifecycle from submission to broker delivery

// Package gateway hosts the chatrelay HTTP surface. POST /turn accepts
// a conversation's message history, responds immediately with the
// broker channel and message id for the new turn, and drives generation
// in the background: each engine delta is published to the channel in
// order, followed by exactly one done or error event.
//
// GET /credential mints the short-lived JWT a client presents when
// dialing the broker websocket. With broker.embedded set, the broker's
// publish and connect endpoints are mounted on the gateway's own
// listener; otherwise events are POSTed to the configured external
// publish URL.
package gateway
