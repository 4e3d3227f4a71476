// Package auth issues and verifies the short-lived connection credentials
// used by clients to authenticate against the broker.
//
// A credential is an HS256 signed JWT (header, payload, and HMAC-SHA256
// signature, base64url encoded and joined by "."). The gateway mints one
// per connecting identity via GET /credential; the broker verifies it on
// every websocket connection. Publish authorization uses a static API key
// instead and is handled by the publisher and broker directly.
package auth
