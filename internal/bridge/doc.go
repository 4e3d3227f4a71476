// ABOUTME: Package documentation for the engine-to-broker bridge
// ABOUTME: Explains ordering and terminal event guarantees

// Package bridge relays one generation turn from an engine stream to a
// broker channel. Each text delta is published and awaited before the
// next one is read, so subscribers observe chunks in generation order.
// Every turn ends with exactly one terminal event: done on success, or
// error carrying the failure detail. Terminal state is mirrored into
// the turn store when one is configured.
package bridge
