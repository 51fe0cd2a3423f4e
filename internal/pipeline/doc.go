// Package pipeline turns crawl visit events into written pages.
//
// A Pipeline subscribes to a crawl engine, runs the producer (a crawl) in
// its own goroutine and spawns one work unit per received VisitEvent. A
// work unit looks the page up in the page cache under a short timeout,
// converts the HTML body to Markdown and writes the result.
//
// Termination is a race between two signals:
//   - the producer returns, unsubscribes from the engine, and the consumer
//     drains what is still buffered
//   - the engine closes the event channel on its own, and the producer
//     context is cancelled
//
// Either way every spawned work unit runs to completion before the run
// summary is written. Work units are never cancelled.
//
// RunDirect skips the engine and fetches a fixed URL list with bounded
// concurrency using errgroup.
package pipeline
