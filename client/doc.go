// ABOUTME: Package documentation for the chatrelay client library
// ABOUTME: Explains the connection, subscription, and stream ownership model

// Package client consumes streamed chat turns from a chatrelay gateway
// through its pub/sub broker.
//
// A Client holds one broker websocket for the whole session,
// established lazily with a credential fetched from the gateway. Each
// conversation gets one cached Subscription; each in-flight turn gets
// one MessageStream, a listener on that subscription filtered to the
// turn's message id. The Transport ties it together: SendMessages
// subscribes, POSTs the turn, and returns the turn's reconstructed
// chunk stream (start, deltas, end) to the caller.
//
// There is no reconnect and no retry. A lost connection fails the
// session; an abandoned turn (terminal event never delivered) stalls
// its stream rather than timing out here.
package client
