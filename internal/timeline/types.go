package timeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/five82/feedline/internal/diff"
	"github.com/five82/feedline/internal/resource"
)

// Source produces paginated snapshots. The channel is read by a single
// consumer and closed when the source completes or ctx is done. Retry actions
// carried by snapshots are invoked from the consumer goroutine and must not
// block.
type Source[T any] interface {
	Observe(ctx context.Context) <-chan resource.Paginated[T]
}

// Describer turns a failure cause into a user-facing message.
type Describer func(error) string

// Differ computes the edit script between two lists.
type Differ[T any] func(old, next []T, m diff.Matcher[T]) (diff.Result[T], error)

// Recorder observes pipeline activity. *metrics.Metrics implements it.
type Recorder interface {
	SnapshotReceived()
	DiffComputed(elapsed time.Duration, inserts, removes, updates int)
	StatePublished()
	NoticeEmitted(role string)
}

// Role names which half of a snapshot a notice is about.
type Role string

const (
	RolePage Role = "page"
	RoleMore Role = "more"
)

// State is the presentation state published after each snapshot.
//
// Items is shared by every subscriber and must be treated as read-only.
// Diff transforms the previously published Items into these Items.
type State[T any] struct {
	Items []T
	Diff  diff.Result[T]

	Refreshing bool
	Loading    bool
	Empty      bool
	Error      string

	MoreAvailable bool
	MoreLoading   bool
	MoreError     string

	// Seq increases by one per published state.
	Seq uint64
}

// Notice is a one-shot error notification.
type Notice struct {
	ID      uuid.UUID
	Role    Role
	Message string
	Err     error
	At      time.Time
}

type nopRecorder struct{}

func (nopRecorder) SnapshotReceived()                         {}
func (nopRecorder) DiffComputed(time.Duration, int, int, int) {}
func (nopRecorder) StatePublished()                           {}
func (nopRecorder) NoticeEmitted(string)                      {}
