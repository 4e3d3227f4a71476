// Package wire defines the streaming delivery protocol shared by the
// gateway, the bridge, and the client library.
//
// It covers three concerns:
//
//   - channel naming: one conversation maps to one broker channel
//     ("chat:" + conversation id)
//   - turn identity: unique per-turn message ids (timestamp + random suffix)
//   - the stream event codec: the broker payload collapses delta and done
//     into a single "text" envelope with a done flag; Decode resolves that
//     flag into the explicit Kind model so flag checks never spread into
//     business logic
package wire
