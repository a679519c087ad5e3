package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/five82/feedline/internal/feed"
	"github.com/five82/feedline/internal/resource"
)

const waitTimeout = 2 * time.Second

type fetchResult struct {
	page feed.Page
	err  error
}

type fetchCall struct {
	ctx   context.Context
	query feed.PageQuery
	reply chan fetchResult
}

func (c *fetchCall) respond(page feed.Page, err error) {
	c.reply <- fetchResult{page: page, err: err}
}

// scriptedFetcher hands every request to the test, which answers it explicitly.
type scriptedFetcher struct {
	calls chan *fetchCall
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{calls: make(chan *fetchCall)}
}

func (f *scriptedFetcher) FetchPage(ctx context.Context, query feed.PageQuery) (feed.Page, error) {
	call := &fetchCall{ctx: ctx, query: query, reply: make(chan fetchResult, 1)}
	select {
	case f.calls <- call:
	case <-ctx.Done():
		return feed.Page{}, ctx.Err()
	}
	select {
	case r := <-call.reply:
		return r.page, r.err
	case <-ctx.Done():
		return feed.Page{}, ctx.Err()
	}
}

func (f *scriptedFetcher) next(t *testing.T) *fetchCall {
	t.Helper()
	select {
	case call := <-f.calls:
		return call
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for a fetch")
		return nil
	}
}

func (f *scriptedFetcher) expectIdle(t *testing.T) {
	t.Helper()
	select {
	case call := <-f.calls:
		t.Fatalf("unexpected fetch %+v", call.query)
	case <-time.After(50 * time.Millisecond):
	}
}

type memoryCache struct {
	mu    sync.Mutex
	pages map[string]feed.Page
	saved chan feed.Page
}

func newMemoryCache() *memoryCache {
	return &memoryCache{pages: make(map[string]feed.Page), saved: make(chan feed.Page, 4)}
}

func (c *memoryCache) Load(_ context.Context, timeline string) (feed.Page, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	page, ok := c.pages[timeline]
	return page, ok, nil
}

func (c *memoryCache) Save(_ context.Context, timeline string, page feed.Page) error {
	c.mu.Lock()
	c.pages[timeline] = page
	c.mu.Unlock()
	c.saved <- page
	return nil
}

type recordedFetch struct {
	role string
	err  error
}

type fetchRecorder struct {
	mu      sync.Mutex
	fetches []recordedFetch
}

func (r *fetchRecorder) FetchCompleted(role string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches = append(r.fetches, recordedFetch{role: role, err: err})
}

func (r *fetchRecorder) snapshot() []recordedFetch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedFetch(nil), r.fetches...)
}

func newTestStore(t *testing.T, opts Options) (*Store, *scriptedFetcher, context.Context) {
	t.Helper()
	fetcher := newScriptedFetcher()
	opts.Fetcher = fetcher
	if opts.Timeline == "" {
		opts.Timeline = "home"
	}
	opts.Logger = zerolog.Nop()
	s, err := NewStore(opts)
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return s, fetcher, ctx
}

func waitSnapshot(t *testing.T, ch <-chan Snapshot, pred func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				t.Fatalf("observer channel closed")
			}
			if pred(snap) {
				return snap
			}
		case <-deadline:
			t.Fatalf("timed out waiting for snapshot")
		}
	}
}

func pageLoaded(snap Snapshot) bool { return snap.Page.Status() == resource.StatusLoaded }

func ids(snap Snapshot) []string {
	items, _ := snap.Items()
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}

func equalIDs(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func items(idList ...string) []feed.Item {
	out := make([]feed.Item, len(idList))
	for i, id := range idList {
		out[i] = feed.Item{ID: id, Text: "post " + id}
	}
	return out
}

func TestNewStore_RequiresFetcherAndTimeline(t *testing.T) {
	if _, err := NewStore(Options{Timeline: "home"}); err == nil {
		t.Fatalf("NewStore without fetcher returned nil error")
	}
	if _, err := NewStore(Options{Fetcher: newScriptedFetcher()}); err == nil {
		t.Fatalf("NewStore without timeline returned nil error")
	}
}

func TestStore_CommandsIgnoredBeforeStart(t *testing.T) {
	s, fetcher, _ := newTestStore(t, Options{})

	s.Refresh()
	s.LoadMore()
	fetcher.expectIdle(t)

	if got := s.Snapshot().Page.Status(); got != resource.StatusIdle {
		t.Fatalf("page status = %v, want idle", got)
	}
}

func TestStore_RefreshPublishesLoadingThenLoaded(t *testing.T) {
	rec := &fetchRecorder{}
	s, fetcher, ctx := newTestStore(t, Options{PageSize: 2, Metrics: rec})
	ch := s.Observe(ctx)

	s.Start(ctx)
	call := fetcher.next(t)
	if call.query.Timeline != "home" || call.query.Cursor != "" || call.query.Limit != 2 {
		t.Fatalf("query = %+v, want first page of home with limit 2", call.query)
	}

	loading := waitSnapshot(t, ch, func(s Snapshot) bool { return s.Page.IsLoading() })
	if _, ok := loading.Items(); ok {
		t.Fatalf("first loading snapshot carries a value, want none")
	}

	call.respond(feed.Page{Items: items("a", "b"), NextCursor: "c1"}, nil)
	loaded := waitSnapshot(t, ch, pageLoaded)
	if got := ids(loaded); !equalIDs(got, []string{"a", "b"}) {
		t.Fatalf("items = %v, want [a b]", got)
	}
	if !loaded.MoreAvailable() || loaded.MoreLoading() {
		t.Fatalf("more = %v, want idle and available", loaded.More)
	}
	if loaded.Page.Retry() == nil || loaded.More.Retry() == nil {
		t.Fatalf("loaded snapshot is missing retry actions")
	}

	fetches := rec.snapshot()
	if len(fetches) != 1 || fetches[0].role != RolePage || fetches[0].err != nil {
		t.Fatalf("recorded fetches = %+v, want one ok page fetch", fetches)
	}
}

func TestStore_RefreshIgnoredWhileLoading(t *testing.T) {
	s, fetcher, ctx := newTestStore(t, Options{})
	s.Start(ctx)
	call := fetcher.next(t)

	s.Refresh()
	s.LoadMore()
	fetcher.expectIdle(t)

	call.respond(feed.Page{Items: items("a")}, nil)
	ch := s.Observe(ctx)
	waitSnapshot(t, ch, pageLoaded)
	fetcher.expectIdle(t)
}

func TestStore_RefreshFailureKeepsItems(t *testing.T) {
	s, fetcher, ctx := newTestStore(t, Options{})
	ch := s.Observe(ctx)
	s.Start(ctx)
	fetcher.next(t).respond(feed.Page{Items: items("a", "b"), NextCursor: "c1"}, nil)
	waitSnapshot(t, ch, pageLoaded)

	s.Refresh()
	reloading := waitSnapshot(t, ch, func(s Snapshot) bool { return s.Page.IsLoading() })
	if got := ids(reloading); !equalIDs(got, []string{"a", "b"}) {
		t.Fatalf("reloading items = %v, want previous [a b]", got)
	}

	boom := errors.New("boom")
	fetcher.next(t).respond(feed.Page{}, boom)
	failed := waitSnapshot(t, ch, func(s Snapshot) bool { return s.Page.IsError() })
	if !errors.Is(failed.Page.Err(), boom) {
		t.Fatalf("page error = %v, want boom", failed.Page.Err())
	}
	if got := ids(failed); !equalIDs(got, []string{"a", "b"}) {
		t.Fatalf("failed items = %v, want previous [a b]", got)
	}
	if failed.Page.Retry() == nil {
		t.Fatalf("failed page has no retry")
	}
	if got := s.ConsecutiveFailures(); got != 1 {
		t.Fatalf("ConsecutiveFailures = %d, want 1", got)
	}

	failed.Page.Retry()()
	fetcher.next(t).respond(feed.Page{Items: items("c")}, nil)
	recovered := waitSnapshot(t, ch, pageLoaded)
	if got := ids(recovered); !equalIDs(got, []string{"c"}) {
		t.Fatalf("recovered items = %v, want [c]", got)
	}
	if got := s.ConsecutiveFailures(); got != 0 {
		t.Fatalf("ConsecutiveFailures = %d, want 0 after success", got)
	}
}

func TestStore_LoadMoreAppendsAndExhausts(t *testing.T) {
	s, fetcher, ctx := newTestStore(t, Options{})
	ch := s.Observe(ctx)
	s.Start(ctx)
	fetcher.next(t).respond(feed.Page{Items: items("a", "b"), NextCursor: "c1"}, nil)
	waitSnapshot(t, ch, pageLoaded)
	if got := s.Pages(); got != 1 {
		t.Fatalf("Pages() = %d after refresh, want 1", got)
	}

	s.LoadMore()
	if !s.Snapshot().MoreLoading() {
		t.Fatalf("more is not loading right after LoadMore")
	}
	call := fetcher.next(t)
	if call.query.Cursor != "c1" {
		t.Fatalf("cursor = %q, want c1", call.query.Cursor)
	}
	call.respond(feed.Page{Items: items("b", "c")}, nil)

	done := waitSnapshot(t, ch, func(s Snapshot) bool { return s.More.IsExhausted() })
	if got := ids(done); !equalIDs(got, []string{"a", "b", "c"}) {
		t.Fatalf("items = %v, want [a b c] with duplicate dropped", got)
	}
	if done.Page.Status() != resource.StatusLoaded {
		t.Fatalf("page status = %v, want loaded", done.Page.Status())
	}
	if done.More.Retry() != nil {
		t.Fatalf("exhausted more carries a retry")
	}
	if got := s.Pages(); got != 2 {
		t.Fatalf("Pages() = %d after load more, want 2", got)
	}

	s.LoadMore()
	fetcher.expectIdle(t)
	if !s.Snapshot().More.IsExhausted() {
		t.Fatalf("LoadMore left the exhausted state")
	}
}

func TestStore_LoadMoreFailureHasRetry(t *testing.T) {
	s, fetcher, ctx := newTestStore(t, Options{})
	ch := s.Observe(ctx)
	s.Start(ctx)
	fetcher.next(t).respond(feed.Page{Items: items("a"), NextCursor: "c1"}, nil)
	waitSnapshot(t, ch, pageLoaded)

	s.LoadMore()
	fetcher.next(t).respond(feed.Page{}, errors.New("offline"))
	failed := waitSnapshot(t, ch, func(s Snapshot) bool { return s.MoreErr() != nil })
	if failed.Page.Status() != resource.StatusLoaded {
		t.Fatalf("page status = %v, want loaded", failed.Page.Status())
	}

	failed.More.Retry()()
	call := fetcher.next(t)
	if call.query.Cursor != "c1" {
		t.Fatalf("retry cursor = %q, want c1", call.query.Cursor)
	}
	call.respond(feed.Page{Items: items("b"), NextCursor: "c2"}, nil)
	more := waitSnapshot(t, ch, func(s Snapshot) bool { return s.More.Status() == resource.StatusIdle })
	if got := ids(more); !equalIDs(got, []string{"a", "b"}) {
		t.Fatalf("items = %v, want [a b]", got)
	}
}

func TestStore_RefreshCancelsLoadMore(t *testing.T) {
	rec := &fetchRecorder{}
	s, fetcher, ctx := newTestStore(t, Options{Metrics: rec})
	ch := s.Observe(ctx)
	s.Start(ctx)
	fetcher.next(t).respond(feed.Page{Items: items("a"), NextCursor: "c1"}, nil)
	waitSnapshot(t, ch, pageLoaded)

	s.LoadMore()
	moreCall := fetcher.next(t)

	s.Refresh()
	snap := s.Snapshot()
	if !snap.Page.IsLoading() || snap.MoreLoading() {
		t.Fatalf("snapshot after refresh = %v, want page loading and more idle", snap)
	}
	select {
	case <-moreCall.ctx.Done():
	case <-time.After(waitTimeout):
		t.Fatalf("load-more context was not cancelled")
	}

	fetcher.next(t).respond(feed.Page{Items: items("z")}, nil)
	final := waitSnapshot(t, ch, pageLoaded)
	if got := ids(final); !equalIDs(got, []string{"z"}) {
		t.Fatalf("items = %v, want [z]", got)
	}
	if !final.More.IsExhausted() {
		t.Fatalf("more = %v, want exhausted for a single-page timeline", final.More)
	}
}

func TestStore_StartSeedsFromCacheAndSaves(t *testing.T) {
	cache := newMemoryCache()
	cache.pages["home"] = feed.Page{Items: items("old"), NextCursor: "c0"}
	s, fetcher, ctx := newTestStore(t, Options{Cache: cache})
	ch := s.Observe(ctx)

	s.Start(ctx)
	seeded := waitSnapshot(t, ch, func(s Snapshot) bool { return s.Page.IsLoading() })
	if got := ids(seeded); !equalIDs(got, []string{"old"}) {
		t.Fatalf("seeded items = %v, want [old]", got)
	}

	fresh := feed.Page{Items: items("new"), NextCursor: "c1"}
	fetcher.next(t).respond(fresh, nil)
	waitSnapshot(t, ch, pageLoaded)

	select {
	case saved := <-cache.saved:
		if len(saved.Items) != 1 || saved.Items[0].ID != "new" || saved.NextCursor != "c1" {
			t.Fatalf("saved page = %+v, want fresh page", saved)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("page was not saved to the cache")
	}
}

func TestStore_ObserveCoalescesUnreadSnapshots(t *testing.T) {
	s, fetcher, ctx := newTestStore(t, Options{})
	ch := s.Observe(ctx)

	// Idle is buffered; Start replaces it with Loading before anyone reads.
	s.Start(ctx)
	fetcher.next(t)

	select {
	case snap := <-ch:
		if !snap.Page.IsLoading() {
			t.Fatalf("first read = %v, want the newer loading snapshot", snap)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("no snapshot delivered")
	}
}

func TestStore_ObserveClosesOnCancel(t *testing.T) {
	s, _, _ := newTestStore(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Observe(ctx)
	<-ch
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("received snapshot after cancel, want closed channel")
		}
	case <-time.After(waitTimeout):
		t.Fatalf("observer channel not closed")
	}
}

func TestStore_SnapshotsAreIndependent(t *testing.T) {
	s, fetcher, ctx := newTestStore(t, Options{})
	ch := s.Observe(ctx)
	s.Start(ctx)
	fetcher.next(t).respond(feed.Page{Items: items("a")}, nil)
	snap := waitSnapshot(t, ch, pageLoaded)

	list, _ := snap.Items()
	list[0].ID = "mutated"

	s.Refresh()
	again, _ := s.Snapshot().Items()
	if again[0].ID != "a" {
		t.Fatalf("snapshot shares backing array with the store; got %q", again[0].ID)
	}
}

func TestCalculateBackoff(t *testing.T) {
	baseInterval := 2 * time.Second

	tests := []struct {
		name     string
		failures int
		want     time.Duration
	}{
		{"zero failures", 0, 2 * time.Second},
		{"negative failures", -1, 2 * time.Second},
		{"one failure", 1, 4 * time.Second},
		{"two failures", 2, 8 * time.Second},
		{"three failures", 3, 16 * time.Second},
		{"four failures capped", 4, 30 * time.Second},
		{"many failures capped", 10, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calculateBackoff(tt.failures, baseInterval)
			if got != tt.want {
				t.Errorf("calculateBackoff(%d, %v) = %v, want %v", tt.failures, baseInterval, got, tt.want)
			}
		})
	}
}

func TestCalculateBackoff_MaxCap(t *testing.T) {
	baseInterval := 2 * time.Second
	for failures := 0; failures <= 64; failures++ {
		got := calculateBackoff(failures, baseInterval)
		if got > maxBackoff {
			t.Errorf("calculateBackoff(%d, %v) = %v, exceeds maxBackoff %v", failures, baseInterval, got, maxBackoff)
		}
	}
}

func TestStore_WaitReturnsAfterCancel(t *testing.T) {
	fetcher := newScriptedFetcher()
	s, err := NewStore(Options{Fetcher: fetcher, Timeline: "home", PollInterval: time.Hour, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	fetcher.next(t) // left unanswered

	cancel()
	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatalf("Wait did not return after cancel")
	}

	s.Refresh()
	fetcher.expectIdle(t)
}
