// ABOUTME: Package documentation for the vocalis session package
// ABOUTME: Explains the session lifecycle and how to observe it

// Package vocalis runs live speech sessions: microphone audio streams to
// a speech service while synthesized replies stream back and play
// gaplessly, with barge-in interruptions cutting playback mid-word.
//
// A Session is single-use. Start acquires the microphone, dials the
// transport and performs the handshake; from then on a single goroutine
// moves chunks in both directions until Stop, a remote session/end or a
// failure. Every state transition arrives on Updates with a stats
// snapshot, and the channel closes after the terminal event.
//
// Basic usage:
//
//	session, err := vocalis.New(vocalis.Config{
//		Endpoint: "ws://localhost:8931/vocalis",
//		Name:     "kitchen",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := session.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer session.Stop()
//
//	for ev := range session.Updates() {
//		fmt.Printf("%s sent=%d received=%d\n",
//			ev.State, ev.Stats.ChunksSent, ev.Stats.ChunksReceived)
//	}
package vocalis
