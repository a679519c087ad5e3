// Package state produces the paginated timeline snapshots the rest of feedline
// consumes.
//
// # Overview
//
// A Store owns the loaded items, the "more" cursor and the status of both
// roles. Every transition publishes a new immutable
// resource.Paginated[feed.Item]; nothing outside the store mutates it.
//
//	Refresh()                      LoadMore()
//	   │                              │
//	   ├─ page → Loading (+items)     ├─ more → Loading
//	   ├─ FetchPage(cursor="")        ├─ FetchPage(cursor)
//	   └─ page → Loaded | Error       └─ more → Idle | Exhausted | Error
//
// # Commands
//
// Refresh is ignored while the page is loading and cancels an in-flight
// load-more. LoadMore is ignored while either role is loading, once the cursor
// is exhausted, and before the first page has produced a cursor. Both are safe
// to call from any goroutine, and published snapshots carry them as retry
// actions.
//
// # Observers
//
// Observe returns a single-slot channel. The current snapshot is delivered
// immediately; when an observer falls behind, an unread snapshot is replaced
// by the newer one, so observers always converge on the latest state.
//
// # Polling and cache
//
// Start seeds the list from the optional Cache, so the first Loading snapshot
// already carries stale content, then refreshes. With a PollInterval it keeps
// refreshing, doubling the wait after each consecutive failure up to 30s.
// A completed refresh is written to the cache even if ctx ends meanwhile.
//
// Cancel the Start context and call Wait before closing the cache.
package state
