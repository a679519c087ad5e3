package timeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/five82/feedline/internal/diff"
	"github.com/five82/feedline/internal/resource"
)

const (
	tracerName          = "github.com/five82/feedline/internal/timeline"
	defaultNoticeBuffer = 8
)

// Config wires an Orchestrator's collaborators. Source, Describe and a
// complete Matcher are required.
type Config[T any] struct {
	Source   Source[T]
	Describe Describer
	Matcher  diff.Matcher[T]

	// Differ defaults to diff.Compute.
	Differ   Differ[T]
	Logger   zerolog.Logger
	Recorder Recorder
	// OnDefect receives programming errors such as duplicate identity keys.
	// It runs on the consumer goroutine and defaults to panicking.
	OnDefect     func(error)
	NoticeBuffer int
	Tracer       trace.Tracer
}

// Orchestrator turns a snapshot stream into ordered, diffed presentation
// states. All of its methods are safe for concurrent use.
type Orchestrator[T any] struct {
	source   Source[T]
	describe Describer
	matcher  diff.Matcher[T]
	differ   Differ[T]
	log      zerolog.Logger
	recorder Recorder
	onDefect func(error)
	tracer   trace.Tracer

	refreshCh   chan struct{}
	moreCh      chan struct{}
	subscribeCh chan *subscriber[T]
	notices     chan Notice

	cancel      context.CancelFunc
	done        chan struct{}
	disposeOnce sync.Once
}

// New validates cfg and starts consuming the source until ctx is done or
// Dispose is called.
func New[T any](ctx context.Context, cfg Config[T]) (*Orchestrator[T], error) {
	if cfg.Source == nil {
		return nil, errors.New("timeline: source is required")
	}
	if cfg.Describe == nil {
		return nil, errors.New("timeline: describer is required")
	}
	if cfg.Matcher.Key == nil || cfg.Matcher.Equal == nil {
		return nil, errors.New("timeline: matcher needs Key and Equal")
	}
	if cfg.Differ == nil {
		cfg.Differ = diff.Compute[T]
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.OnDefect == nil {
		cfg.OnDefect = func(err error) { panic(err) }
	}
	if cfg.NoticeBuffer <= 0 {
		cfg.NoticeBuffer = defaultNoticeBuffer
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(tracerName)
	}

	ctx, cancel := context.WithCancel(ctx)
	o := &Orchestrator[T]{
		source:      cfg.Source,
		describe:    cfg.Describe,
		matcher:     cfg.Matcher,
		differ:      cfg.Differ,
		log:         cfg.Logger.With().Str("component", "timeline").Logger(),
		recorder:    cfg.Recorder,
		onDefect:    cfg.OnDefect,
		tracer:      cfg.Tracer,
		refreshCh:   make(chan struct{}, 1),
		moreCh:      make(chan struct{}, 1),
		subscribeCh: make(chan *subscriber[T]),
		notices:     make(chan Notice, cfg.NoticeBuffer),
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	snapshots := o.source.Observe(ctx)
	go o.run(ctx, snapshots)
	return o, nil
}

// Subscribe returns a channel of published states and a function that stops
// delivery. The first state received is the latest published one, with a
// diff from the empty list; later states follow in publication order.
// The channel is closed after unsubscribe or Dispose.
func (o *Orchestrator[T]) Subscribe() (<-chan State[T], func()) {
	sub := newSubscriber[T]()
	select {
	case o.subscribeCh <- sub:
	case <-o.done:
		sub.close()
	}
	return sub.out, sub.close
}

// Refresh asks the producer to reload the first page. Calls made while an
// earlier request is still queued are coalesced.
func (o *Orchestrator[T]) Refresh() {
	select {
	case o.refreshCh <- struct{}{}:
	default:
	}
}

// LoadMore asks the producer for the next page. Calls made while an earlier
// request is still queued are coalesced.
func (o *Orchestrator[T]) LoadMore() {
	select {
	case o.moreCh <- struct{}{}:
	default:
	}
}

// Notices returns the one-shot notice channel. Each notice is received by
// exactly one reader. The channel is closed after Dispose.
func (o *Orchestrator[T]) Notices() <-chan Notice {
	return o.notices
}

// Dispose stops consumption and waits for the consumer to exit. An in-flight
// diff is abandoned without publishing. Safe to call more than once, but not
// from OnDefect.
func (o *Orchestrator[T]) Dispose() {
	o.disposeOnce.Do(o.cancel)
	<-o.done
}

// Done is closed once the consumer has exited.
func (o *Orchestrator[T]) Done() <-chan struct{} {
	return o.done
}

type diffOutcome[T any] struct {
	snap    resource.Paginated[T]
	items   []T
	result  diff.Result[T]
	err     error
	elapsed time.Duration
}

// loop state, owned by the consumer goroutine.
type consumer[T any] struct {
	latest     resource.Paginated[T]
	haveLatest bool
	current    State[T]
	published  bool
	seq        uint64
	subs       []*subscriber[T]
	pageErr    error
	moreErr    error
}

func (o *Orchestrator[T]) run(ctx context.Context, snapshots <-chan resource.Paginated[T]) {
	var c consumer[T]
	defer close(o.done)
	defer close(o.notices)
	defer func() {
		for _, sub := range c.subs {
			sub.close()
		}
	}()

	var pending chan diffOutcome[T]
	for {
		// Snapshot n+1 is not read until snapshot n has been published.
		in := snapshots
		if pending != nil {
			in = nil
		}

		select {
		case <-ctx.Done():
			if pending != nil {
				o.log.Debug().Msg("disposed with diff in flight")
			}
			return

		case snap, ok := <-in:
			if !ok {
				o.log.Debug().Msg("source completed")
				snapshots = nil
				continue
			}
			o.recorder.SnapshotReceived()
			c.latest = snap
			c.haveLatest = true
			pending = o.startDiff(ctx, snap, c.current.Items)

		case out := <-pending:
			pending = nil
			if out.err != nil {
				o.log.Error().Err(out.err).Str("snapshot", out.snap.String()).Msg("diff defect, snapshot dropped")
				o.onDefect(out.err)
				continue
			}
			o.publish(&c, out)

		case <-o.refreshCh:
			if c.haveLatest {
				invoke(c.latest.Page.Retry())
			}

		case <-o.moreCh:
			if c.haveLatest {
				invoke(c.latest.More.Retry())
			}

		case sub := <-o.subscribeCh:
			c.subs = append(c.subs, sub)
			if c.published {
				replay := c.current
				replay.Diff = diff.Inserts(c.current.Items)
				sub.push(replay)
			}
		}
	}
}

// startDiff computes the edit script off the consumer goroutine. The result
// channel is buffered so an abandoned worker never blocks.
func (o *Orchestrator[T]) startDiff(ctx context.Context, snap resource.Paginated[T], old []T) chan diffOutcome[T] {
	next := old
	if value, ok := snap.Items(); ok {
		next = value
	}
	out := make(chan diffOutcome[T], 1)
	go func() {
		_, span := o.tracer.Start(ctx, "timeline.diff", trace.WithAttributes(
			attribute.Int("items.old", len(old)),
			attribute.Int("items.new", len(next)),
			attribute.String("page.status", snap.Page.Status().String()),
		))

		start := time.Now()
		result, err := o.computeSafely(old, next)
		elapsed := time.Since(start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("diff.ops", len(result.Ops)))
		}
		span.End()
		out <- diffOutcome[T]{snap: snap, items: next, result: result, err: err, elapsed: elapsed}
	}()
	return out
}

// computeSafely turns a panicking differ into a defect on the consumer.
func (o *Orchestrator[T]) computeSafely(old, next []T) (result diff.Result[T], err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("timeline: differ panicked: %v", r)
		}
	}()
	return o.differ(old, next, o.matcher)
}

func (o *Orchestrator[T]) publish(c *consumer[T], out diffOutcome[T]) {
	inserts, removes, updates := out.result.Counts()
	o.recorder.DiffComputed(out.elapsed, inserts, removes, updates)

	c.seq++
	st := derive(out.snap, out.items, o.describe)
	st.Diff = out.result
	st.Seq = c.seq
	c.current = st
	c.published = true

	live := c.subs[:0]
	for _, sub := range c.subs {
		if sub.isClosed() {
			continue
		}
		sub.push(st)
		live = append(live, sub)
	}
	for i := len(live); i < len(c.subs); i++ {
		c.subs[i] = nil
	}
	c.subs = live
	o.recorder.StatePublished()

	o.log.Debug().
		Uint64("seq", st.Seq).
		Int("items", len(st.Items)).
		Int("inserts", inserts).
		Int("removes", removes).
		Int("updates", updates).
		Str("snapshot", out.snap.String()).
		Msg("state published")

	c.pageErr = o.noticeOnTransition(RolePage, c.pageErr, pageErr(out.snap))
	c.moreErr = o.noticeOnTransition(RoleMore, c.moreErr, out.snap.MoreErr())
}

// noticeOnTransition emits a notice when role enters an error or its cause
// changes, and returns the error to remember.
func (o *Orchestrator[T]) noticeOnTransition(role Role, prev, cur error) error {
	if cur == nil {
		return nil
	}
	if prev != nil && errors.Is(cur, prev) {
		return prev
	}
	n := Notice{
		ID:      uuid.New(),
		Role:    role,
		Message: o.describe(cur),
		Err:     cur,
		At:      time.Now(),
	}
	select {
	case o.notices <- n:
		o.recorder.NoticeEmitted(string(role))
	default:
		o.log.Warn().Str("role", string(role)).Str("message", n.Message).Msg("notice buffer full, notice dropped")
	}
	return cur
}

// derive computes the presentation flags for one snapshot.
func derive[T any](snap resource.Paginated[T], items []T, describe Describer) State[T] {
	empty := len(items) == 0
	pageLoading := snap.Page.IsLoading()
	st := State[T]{
		Items:         items,
		Empty:         empty,
		Loading:       pageLoading && empty,
		Refreshing:    pageLoading && !empty,
		MoreAvailable: snap.MoreAvailable(),
		MoreLoading:   snap.MoreLoading(),
	}
	if err := pageErr(snap); err != nil {
		st.Error = describe(err)
	}
	if err := snap.MoreErr(); err != nil {
		st.MoreError = describe(err)
	}
	return st
}

func pageErr[T any](snap resource.Paginated[T]) error {
	if snap.Page.IsError() {
		return snap.Page.Err()
	}
	return nil
}

func invoke(fn func()) {
	if fn != nil {
		fn()
	}
}
