// ABOUTME: Package documentation for the generation engine
// ABOUTME: Explains the provider abstraction and streaming model

// Package engine abstracts the model backends that generate assistant
// responses. A Provider turns a Request into a Stream of ordered events:
// zero or more text deltas followed by exactly one done or error event.
//
// Providers exist for Anthropic (Messages API), OpenAI (Responses API),
// and a scripted backend that replays canned turns for tests and demos.
// All providers share the same channel-backed Stream implementation, so
// cancellation and buffering behave identically across backends.
package engine
