// Package timeline turns a stream of paginated snapshots into ordered,
// incrementally diffed presentation states.
//
// # Overview
//
// An Orchestrator consumes a Source on a single goroutine. For every
// snapshot it computes the edit script from the previously published list to
// the snapshot's list, derives the status flags, and publishes a State to all
// subscribers:
//
//	Source ──snapshot──▶ consumer loop ──(old, new)──▶ diff worker
//	                         ▲    │                         │
//	                         │    └◀────── edit script ─────┘
//	   Refresh/LoadMore ─────┘    │
//	                              ▼
//	                  State{Items, Diff, flags, Seq} ──▶ subscribers
//	                  Notice (errors only)          ──▶ Notices()
//
// # Ordering
//
// Snapshot n+1 is not read until snapshot n has been published, so Diff in
// consecutive states always chains: applying each state's Diff to the
// previous Items yields the new Items. The diff runs on its own goroutine so
// commands and subscriptions keep being serviced while it is in flight.
//
// # Derived flags
//
// Items come from the snapshot's page value, or stay as previously published
// when the page carries none.
//
//	Empty      = len(Items) == 0
//	Loading    = page loading && Empty
//	Refreshing = page loading && !Empty
//	Error      = Describe(page error)
//
// MoreAvailable, MoreLoading and MoreError mirror the "more" resource.
//
// # Commands
//
// Refresh and LoadMore never block. They are queued into the consumer loop
// and invoke the latest snapshot's page or more retry action, or do nothing
// when that resource has none (an exhausted cursor, a load in progress).
//
// # Notices
//
// When a role enters the error state, or its cause changes, a Notice is sent
// on the Notices channel. Channel semantics make it one-shot: every notice is
// received by exactly one reader and nothing is replayed.
//
// # Defects
//
// A differ failure, such as duplicate identity keys, is a programming error.
// The snapshot is dropped, the error is logged and handed to OnDefect.
package timeline
