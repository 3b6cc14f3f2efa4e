// Package protocol contains the wire envelopes exchanged over a toolwire
// connection. Every frame is a single JSON object discriminated by its
// "type" member.
//
// The package is free of transport logic. The wsserver package handles
// framing and connection lifecycle; sessions, dispatch and fanout build
// outbound values with the constructors declared here and hand them to the
// session manager for serialization.
//
// # Inbound frames
//
// Parse decodes a raw frame into an Envelope and Classify splits the result
// into control messages (handled inline by the server), tool invocations
// (handed to the dispatcher) and unknown types (answered with an error
// envelope). A frame that cannot be parsed yields a *ParseError; when the
// frame was JSON but unusable, any type and request_id that could be
// recovered are carried on the error so the reply can still be correlated.
//
// # Correlation
//
// RequestID keeps the literal the client sent (string or number) and writes
// it back unchanged.
// ToolResponse always echoes the RequestID it was given; pushed events never
// carry one.
package protocol
