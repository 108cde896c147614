// Package aisen captures application errors and diagnostic events and sends
// them to a remote event-collection service over HTTP.
//
// # Core Components
//
//   - Event: the in-process capture request (message, exception, level, tags, extra)
//   - Client: merges default tags, attaches breadcrumbs, builds and enriches the
//     Packet, and hands it to a Transport
//   - Transport: delivers packets (HTTP by default; stderr, multi, noop, cxdb)
//   - Scrubber: transforms the serialized packet text before it leaves the process
//   - EndpointIdentity: the store URI and keys parsed from a DSN
//
// # Quick Start
//
//	client, err := aisen.NewClient(dsn,
//	    aisen.WithRelease("1.2.3"),
//	    aisen.WithEnvironment("prod"),
//	    aisen.WithDefaultScrubbing(),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.AddTrail(aisen.NewBreadcrumb("db", "query users"))
//	id, _ := client.CaptureException(ctx, err, aisen.LevelError)
//
// For panics:
//
//	defer aisen.Recover(ctx, client)
//
// # Design Principles
//
//   - Capture never fails the caller: the only error it returns is ErrNilEvent;
//     transport failures go to the error hook or the logger
//   - One synchronous attempt per capture, bounded by the timeout; no buffering,
//     batching or retry
//   - Breadcrumbs are consumed by exactly one capture
package aisen
