package state

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/five82/feedline/internal/feed"
	"github.com/five82/feedline/internal/resource"
)

// Fetch roles reported to the FetchRecorder.
const (
	RolePage = "page"
	RoleMore = "more"
)

const (
	defaultPageSize = 20
	maxBackoff      = 30 * time.Second
	cacheTimeout    = 2 * time.Second
)

// Snapshot is what the store publishes after every transition.
type Snapshot = resource.Paginated[feed.Item]

// FetchRecorder observes completed page fetches.
type FetchRecorder interface {
	FetchCompleted(role string, elapsed time.Duration, err error)
}

// Cache persists the first page of a timeline between runs.
type Cache interface {
	Load(ctx context.Context, timeline string) (feed.Page, bool, error)
	Save(ctx context.Context, timeline string, page feed.Page) error
}

// Options configures a Store. Fetcher and Timeline are required.
type Options struct {
	Fetcher      feed.PageFetcher
	Cache        Cache
	Timeline     string
	PageSize     int
	PollInterval time.Duration
	Logger       zerolog.Logger
	Metrics      FetchRecorder
}

// Store owns the paginated timeline list and publishes an immutable snapshot
// on every change.
type Store struct {
	opts Options
	log  zerolog.Logger

	mu         sync.Mutex
	wg         sync.WaitGroup
	ctx        context.Context
	current    Snapshot
	items      []feed.Item
	hasItems   bool
	cursor     string
	generation uint64
	moreCancel context.CancelFunc
	failures   int
	pages      int
	observers  map[chan Snapshot]struct{}
}

// NewStore builds an idle store. Nothing is fetched until Start.
func NewStore(opts Options) (*Store, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("state: fetcher is required")
	}
	if opts.Timeline == "" {
		return nil, errors.New("state: timeline is required")
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	s := &Store{
		opts:      opts,
		log:       opts.Logger.With().Str("component", "state").Str("timeline", opts.Timeline).Logger(),
		observers: make(map[chan Snapshot]struct{}),
	}
	s.current = newSnapshot(
		resource.Idle[[]feed.Item]().WithRetry(s.Refresh),
		resource.Idle[struct{}](),
	)
	return s, nil
}

// Start seeds the store from the cache, kicks off the first refresh and, when
// a poll interval is configured, keeps refreshing until ctx is done.
// Later calls are ignored.
func (s *Store) Start(ctx context.Context) {
	s.mu.Lock()
	if s.ctx != nil {
		s.mu.Unlock()
		return
	}
	s.ctx = ctx
	s.mu.Unlock()

	if cached, ok := s.loadCache(ctx); ok {
		s.mu.Lock()
		s.items = dedupe(cached.Items)
		s.hasItems = true
		s.cursor = cached.NextCursor
		s.mu.Unlock()
		s.log.Debug().Int("items", len(cached.Items)).Msg("seeded from cache")
	}

	s.Refresh()

	if s.opts.PollInterval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.poll(ctx)
		}()
	}
}

// Snapshot returns the latest published snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Observe streams snapshots until ctx is done. The current snapshot is sent
// first. A slow observer only ever sees the newest unread snapshot.
func (s *Store) Observe(ctx context.Context) <-chan Snapshot {
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	s.observers[ch] = struct{}{}
	ch <- s.current
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.observers, ch)
		close(ch)
		s.mu.Unlock()
	}()
	return ch
}

// Refresh reloads the first page. It is ignored before Start and while a
// refresh is already running, and it cancels an in-flight load-more.
func (s *Store) Refresh() {
	s.mu.Lock()
	if s.ctx == nil || s.ctx.Err() != nil || s.current.Page.IsLoading() {
		s.mu.Unlock()
		return
	}
	s.generation++
	gen := s.generation
	if s.moreCancel != nil {
		s.moreCancel()
		s.moreCancel = nil
	}

	page := resource.Loading[[]feed.Item]()
	if s.hasItems {
		page = page.WithValue(cloneItems(s.items))
	}
	more := s.current.More
	if more.IsLoading() {
		more = resource.Idle[struct{}]().WithRetry(s.LoadMore)
	}
	s.publishLocked(newSnapshot(page, more))
	ctx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.refresh(ctx, gen)
	}()
}

func (s *Store) refresh(ctx context.Context, gen uint64) {
	start := time.Now()
	page, err := s.opts.Fetcher.FetchPage(ctx, feed.PageQuery{
		Timeline: s.opts.Timeline,
		Limit:    s.opts.PageSize,
	})
	s.recordFetch(RolePage, start, err)

	s.mu.Lock()
	if gen != s.generation || ctx.Err() != nil {
		s.mu.Unlock()
		return
	}

	if err != nil {
		s.failures++
		failed := resource.Failed[[]feed.Item](err).WithRetry(s.Refresh)
		if s.hasItems {
			failed = failed.WithValue(cloneItems(s.items))
		}
		s.publishLocked(newSnapshot(failed, s.current.More))
		failures := s.failures
		s.mu.Unlock()
		s.log.Warn().Err(err).Int("failures", failures).Msg("refresh failed")
		return
	}

	s.failures = 0
	s.pages = 1
	s.items = dedupe(page.Items)
	s.hasItems = true
	s.cursor = page.NextCursor
	s.publishLocked(newSnapshot(
		resource.Loaded(cloneItems(s.items)).WithRetry(s.Refresh),
		s.moreAfter(page),
	))
	s.mu.Unlock()

	s.log.Debug().Int("items", len(page.Items)).Bool("last", page.Last()).Msg("refreshed")
	s.saveCache(ctx, page)
}

// LoadMore appends the next page. It is ignored before Start, while either
// role is loading, once the cursor is exhausted, and when no cursor exists.
func (s *Store) LoadMore() {
	s.mu.Lock()
	if s.ctx == nil || s.ctx.Err() != nil || s.current.Page.IsLoading() || s.current.More.IsLoading() ||
		s.current.More.IsExhausted() || s.cursor == "" {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.moreCancel = cancel
	gen := s.generation
	cursor := s.cursor
	s.publishLocked(newSnapshot(s.current.Page, resource.Loading[struct{}]()))
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.loadMore(ctx, gen, cursor)
	}()
}

func (s *Store) loadMore(ctx context.Context, gen uint64, cursor string) {
	start := time.Now()
	page, err := s.opts.Fetcher.FetchPage(ctx, feed.PageQuery{
		Timeline: s.opts.Timeline,
		Cursor:   cursor,
		Limit:    s.opts.PageSize,
	})
	s.recordFetch(RoleMore, start, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || ctx.Err() != nil {
		return
	}
	s.moreCancel = nil

	if err != nil {
		s.publishLocked(newSnapshot(
			s.current.Page,
			resource.Failed[struct{}](err).WithRetry(s.LoadMore),
		))
		s.log.Warn().Err(err).Str("cursor", cursor).Msg("load more failed")
		return
	}

	before := len(s.items)
	s.items = appendUnique(s.items, page.Items)
	s.hasItems = true
	s.pages++
	s.cursor = page.NextCursor
	s.publishLocked(newSnapshot(
		s.current.Page.WithValue(cloneItems(s.items)),
		s.moreAfter(page),
	))
	s.log.Debug().Int("added", len(s.items)-before).Bool("last", page.Last()).Msg("loaded more")
}

// Wait blocks until every fetch and poll goroutine has returned. Cancel the
// Start context first.
func (s *Store) Wait() {
	s.wg.Wait()
}

// ConsecutiveFailures reports how many refreshes in a row have failed.
func (s *Store) ConsecutiveFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// Pages reports how many pages of the current cursor chain have loaded since
// the last successful refresh. Cached items do not count.
func (s *Store) Pages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages
}

func (s *Store) moreAfter(page feed.Page) resource.Resource[struct{}] {
	if page.Last() {
		return resource.Exhausted[struct{}]()
	}
	return resource.Idle[struct{}]().WithRetry(s.LoadMore)
}

func (s *Store) publishLocked(snap Snapshot) {
	s.current = snap
	for ch := range s.observers {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

func (s *Store) poll(ctx context.Context) {
	for {
		timer := time.NewTimer(calculateBackoff(s.ConsecutiveFailures(), s.opts.PollInterval))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		s.Refresh()
	}
}

// calculateBackoff doubles the poll interval per consecutive failure, capped
// at maxBackoff.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	backoff := base
	for i := 0; i < failures; i++ {
		backoff *= 2
		if backoff >= maxBackoff {
			return maxBackoff
		}
	}
	return backoff
}

func (s *Store) recordFetch(role string, start time.Time, err error) {
	if s.opts.Metrics == nil {
		return
	}
	s.opts.Metrics.FetchCompleted(role, time.Since(start), err)
}

func (s *Store) loadCache(ctx context.Context) (feed.Page, bool) {
	if s.opts.Cache == nil {
		return feed.Page{}, false
	}
	ctx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	page, ok, err := s.opts.Cache.Load(ctx, s.opts.Timeline)
	if err != nil {
		s.log.Warn().Err(err).Msg("cache load failed")
		return feed.Page{}, false
	}
	return page, ok
}

func (s *Store) saveCache(ctx context.Context, page feed.Page) {
	if s.opts.Cache == nil {
		return
	}
	// A refresh that completed is worth keeping even if the session is ending.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheTimeout)
	defer cancel()
	if err := s.opts.Cache.Save(ctx, s.opts.Timeline, page); err != nil {
		s.log.Warn().Err(err).Msg("cache save failed")
	}
}

func cloneItems(items []feed.Item) []feed.Item {
	if len(items) == 0 {
		return []feed.Item{}
	}
	dup := make([]feed.Item, len(items))
	copy(dup, items)
	return dup
}

// dedupe drops repeated IDs, keeping the first occurrence.
func dedupe(items []feed.Item) []feed.Item {
	return appendUnique(make([]feed.Item, 0, len(items)), items)
}

func appendUnique(dst, extra []feed.Item) []feed.Item {
	seen := make(map[string]struct{}, len(dst)+len(extra))
	for _, item := range dst {
		seen[feed.Key(item)] = struct{}{}
	}
	for _, item := range extra {
		key := feed.Key(item)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		dst = append(dst, item)
	}
	return dst
}

func newSnapshot(page resource.Resource[[]feed.Item], more resource.Resource[struct{}]) Snapshot {
	return Snapshot{Page: page, More: more}
}
