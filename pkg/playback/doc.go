// ABOUTME: Package documentation for the playback package
// ABOUTME: Explains the timeline scheduler and the audio engine

// Package playback renders synthesized speech chunks as one continuous
// stream.
//
// The Scheduler keeps an absolute frame timeline. Each incoming chunk is
// decoded and becomes a unit whose start frame is the maximum of the
// timeline cursor and the current render position, so back-to-back chunks
// play gaplessly and late chunks start immediately instead of in the past.
// Interrupt stops everything at once and pulls the cursor back to the
// render position, ready for the next utterance.
//
// The Scheduler is also the shared pass-through node: an Engine pulls
// rendered PCM through its Read method, and a visualizer samples the same
// composite signal through Tap.
//
// Basic usage:
//
//	sched, err := playback.NewScheduler(playback.Config{
//		Format: audio.Format{Codec: "pcm16", SampleRate: 24000, Channels: 1},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	engine, err := playback.NewOtoEngine(sched.Format())
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := engine.Start(sched); err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Close()
//
//	// Feed chunks as they arrive from the speech service.
//	if _, err := sched.Schedule(payload, seq); err != nil {
//		log.Printf("chunk dropped: %v", err)
//	}
//
//	// The user started talking over the response.
//	sched.Interrupt()
package playback
