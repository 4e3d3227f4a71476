// Package publish implements the server-side path onto the broker: a thin
// HTTP client for the broker's publish API, authorized by API key.
//
// Each Publish call is synchronous and acknowledged; the bridge relies on
// that to guarantee per-channel delta ordering. There are no retries;
// failures surface to the caller, which decides whether to abandon the
// turn.
package publish
