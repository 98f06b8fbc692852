// Package dialogws carries binary dialog frames over a websocket.
//
// A Client dials the realtime endpoint with the caller's handshake headers,
// encodes outbound messages with a [dialogproto.Codec], and decodes inbound
// binary frames for a single [Listener]. Malformed frames are reported and
// skipped. A connection that drops without a close handshake is redialed
// once before the listener is told it is closed.
package dialogws
