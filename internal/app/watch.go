package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/five82/feedline/internal/feed"
	"github.com/five82/feedline/internal/timeline"
	"github.com/five82/feedline/internal/ui"
)

// watch logs states and notices from ctrl. loaded reports how many pages of
// the current cursor chain the producer has; states can lag it, which only
// means an extra LoadMore the producer ignores.
func watch(ctx context.Context, ctrl ui.Controller, loaded func() int, pages int, log zerolog.Logger) error {
	states, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()
	notices := ctrl.Notices()

	for {
		select {
		case <-ctx.Done():
			return nil

		case n, ok := <-notices:
			if !ok {
				notices = nil
				continue
			}
			log.Warn().
				Str("notice_id", n.ID.String()).
				Str("role", string(n.Role)).
				Err(n.Err).
				Msg(n.Message)

		case st, ok := <-states:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("timeline stream closed")
			}
			logState(log, st)
			if pages <= 0 {
				continue
			}

			n := loaded()
			switch {
			case n == 0 && st.Error != "":
				return fmt.Errorf("load timeline: %s", st.Error)
			case n == 0:
			case n >= pages || !st.MoreAvailable:
				log.Info().Int("pages", n).Int("items", len(st.Items)).Msg("watch complete")
				return nil
			case st.MoreError != "":
				return fmt.Errorf("load more: %s", st.MoreError)
			case !st.Loading && !st.Refreshing && !st.MoreLoading:
				ctrl.LoadMore()
			}
		}
	}
}

func logState(log zerolog.Logger, st timeline.State[feed.Item]) {
	inserts, removes, updates := st.Diff.Counts()
	ev := log.Info().
		Uint64("seq", st.Seq).
		Int("items", len(st.Items)).
		Int("inserts", inserts).
		Int("removes", removes).
		Int("updates", updates).
		Bool("loading", st.Loading).
		Bool("refreshing", st.Refreshing).
		Bool("more_available", st.MoreAvailable).
		Bool("more_loading", st.MoreLoading)
	if st.Error != "" {
		ev = ev.Str("error", st.Error)
	}
	if st.MoreError != "" {
		ev = ev.Str("more_error", st.MoreError)
	}
	ev.Msg("state")
}
