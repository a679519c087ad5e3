package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/five82/feedline/internal/cache"
	"github.com/five82/feedline/internal/config"
	"github.com/five82/feedline/internal/diff"
	"github.com/five82/feedline/internal/feed"
	"github.com/five82/feedline/internal/logging"
	"github.com/five82/feedline/internal/metrics"
	"github.com/five82/feedline/internal/state"
	"github.com/five82/feedline/internal/timeline"
	"github.com/five82/feedline/internal/ui"
)

// Options configure a feedline session. Zero values defer to config.toml.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses ~/.config/feedline/prefs.toml
	Timeline   string
	PollEvery  time.Duration
	LogPath    string
}

// Run boots the viewer until the user quits or ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	sess, err := open(ctx, opts)
	if err != nil {
		return err
	}
	defer sess.close()

	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = config.DefaultPrefsPath()
	}
	return ui.Run(ui.Options{
		Controller: sess.timeline,
		Timeline:   sess.cfg.Timeline,
		Prefs:      config.LoadPrefs(prefsPath),
		PrefsPath:  prefsPath,
		Logger:     sess.log,
	})
}

// Watch runs without a terminal UI, logging every published state and
// notice. With pages > 0 it keeps loading until that many pages are in or the
// timeline is exhausted; otherwise it follows the timeline until ctx is done.
func Watch(ctx context.Context, opts Options, pages int) error {
	if opts.LogPath == "" {
		opts.LogPath = "stderr"
	}
	sess, err := open(ctx, opts)
	if err != nil {
		return err
	}
	defer sess.close()

	return watch(ctx, sess.timeline, sess.store.Pages, pages, sess.log)
}

// ClearCache drops the cached first page of the configured timeline.
func ClearCache(ctx context.Context, opts Options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if !cfg.CacheEnabled() {
		return errors.New("cache is disabled in config")
	}
	store, err := cache.Open(ctx, cfg.CachePath)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Clear(ctx, cfg.Timeline); err != nil {
		return fmt.Errorf("clear cache for %s: %w", cfg.Timeline, err)
	}
	return nil
}

// session owns every long-lived component behind one timeline.
type session struct {
	cfg      config.Config
	log      zerolog.Logger
	metrics  *metrics.Metrics
	store    *state.Store
	timeline *timeline.Orchestrator[feed.Item]

	cancel  context.CancelFunc
	closers []func() error
}

func open(ctx context.Context, opts Options) (*session, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(logging.Options{
		Path:   cfg.LogPath,
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	sess := &session{
		cfg:     cfg,
		log:     logger,
		metrics: metrics.New(),
		cancel:  cancel,
		closers: []func() error{closeLog},
	}
	if err := sess.start(ctx); err != nil {
		sess.close()
		return nil, err
	}
	return sess, nil
}

func (s *session) start(ctx context.Context) error {
	if addr := s.cfg.MetricsAddr; addr != "" {
		go func() {
			if err := s.metrics.Serve(ctx, addr); err != nil {
				s.log.Warn().Err(err).Str("addr", addr).Msg("metrics server stopped")
			}
		}()
	}

	client, err := feed.NewClient(s.cfg.APIBase)
	if err != nil {
		return fmt.Errorf("init feed client: %w", err)
	}

	storeOpts := state.Options{
		Fetcher:      client,
		Timeline:     s.cfg.Timeline,
		PageSize:     s.cfg.PageSize,
		PollInterval: s.cfg.PollInterval,
		Logger:       s.log,
		Metrics:      s.metrics,
	}
	if s.cfg.CacheEnabled() {
		// A broken cache only costs the instant first paint.
		store, err := cache.Open(ctx, s.cfg.CachePath)
		if err != nil {
			s.log.Warn().Err(err).Str("path", s.cfg.CachePath).Msg("cache unavailable")
		} else {
			storeOpts.Cache = store
			s.closers = append(s.closers, store.Close)
		}
	}

	s.store, err = state.NewStore(storeOpts)
	if err != nil {
		return err
	}

	s.timeline, err = timeline.New(ctx, timeline.Config[feed.Item]{
		Source:   s.store,
		Describe: feed.ErrorMessage,
		Matcher:  diff.Comparable(feed.Key),
		Logger:   s.log,
		Recorder: s.metrics,
		OnDefect: func(err error) {
			s.log.Error().Err(err).Msg("diff defect, snapshot dropped")
		},
	})
	if err != nil {
		return fmt.Errorf("init timeline: %w", err)
	}

	s.store.Start(ctx)
	s.log.Info().
		Str("api_base", s.cfg.APIBase).
		Int("page_size", s.cfg.PageSize).
		Dur("poll_interval", s.cfg.PollInterval).
		Bool("cache", storeOpts.Cache != nil).
		Str("timeline", s.cfg.Timeline).
		Msg("session started")
	return nil
}

func (s *session) close() {
	if s.timeline != nil {
		s.timeline.Dispose()
	}
	s.cancel()
	if s.store != nil {
		s.store.Wait()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

func loadConfig(opts Options) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if opts.Timeline != "" {
		cfg.Timeline = opts.Timeline
	}
	if opts.PollEvery > 0 {
		cfg.PollInterval = opts.PollEvery
	}
	if opts.LogPath != "" {
		cfg.LogPath = opts.LogPath
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
