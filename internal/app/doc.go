// Package app is the composition root for feedline.
//
// # Overview
//
// A session wires configuration, logging, metrics, the page fetcher, the
// optional first-page cache, the snapshot store and the timeline
// orchestrator. The viewer and the headless watcher both sit on top of the
// same session.
//
// # Data Flow
//
//	┌──────────────┐
//	│   open()     │ Initialize everything
//	└──────┬───────┘
//	       │
//	       ├─────> config.Load()      Read config.toml, apply flag overrides
//	       ├─────> logging.New()      zerolog to file or stderr
//	       ├─────> metrics.New()      Private Prometheus registry
//	       ├─────> feed.NewClient()   HTTP page fetcher
//	       ├─────> cache.Open()       SQLite first-page cache (optional)
//	       ├─────> state.NewStore()   Snapshot producer
//	       ├─────> timeline.New()     Diff + derived state
//	       └─────> store.Start()      Cache seed, first refresh, poller
//
//	Store ──snapshots──> Orchestrator ──states──> ui.Model or watch()
//	  ^                        │
//	  └──Refresh/LoadMore──────┘ (retry actions carried by snapshots)
//
// # Error Handling
//
// Fatal errors (returned from Run, Watch, ClearCache):
//   - Configuration file invalid
//   - Log file cannot be opened
//   - API base cannot be parsed
//
// Recoverable errors (logged, the session continues):
//   - Cache cannot be opened; the session runs without it
//   - Fetch failures; surfaced as states and notices
//   - Metrics server failures
//
// Watch additionally fails when the first page or a requested next page
// cannot be loaded, since nothing else would retry it.
//
// # Shutdown
//
// close disposes the orchestrator, cancels the session context, waits for
// in-flight fetches, then closes the cache and the log file in that order.
package app
