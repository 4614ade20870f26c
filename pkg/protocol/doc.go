// ABOUTME: Vocalis wire protocol package
// ABOUTME: Defines protocol messages and the session transports
// Package protocol implements the Vocalis wire protocol.
//
// A session exchanges JSON control messages (session/start, session/ready,
// speech/interrupt, session/end, session/error) and binary audio frames
// with a speech service. Two transports ship: a direct WebSocket
// connection and a NATS relay. Dial picks one from the endpoint URL
// scheme.
//
// Example:
//
//	transport, err := protocol.Dial("ws://localhost:8931/vocalis", protocol.Options{
//		Name: "kitchen",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := transport.Connect(ctx); err != nil {
//		log.Fatal(err)
//	}
//	for ev := range transport.Events() {
//		// handle ev.Type
//	}
package protocol
