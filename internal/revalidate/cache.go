// Package revalidate keeps the built episode feed and rebuilds it on a fixed
// interval. Readers get the last good feed while a rebuild runs in the
// background.
package revalidate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"podcaster/internal/feed"
	"podcaster/internal/metrics"
	"podcaster/internal/models"
)

// DefaultInterval matches an hourly page regeneration.
const DefaultInterval = time.Hour

const (
	flightKey      = "feed"
	rebuildTimeout = 30 * time.Second
)

// ErrClosed is returned by Revalidate after Close.
var ErrClosed = errors.New("revalidation cache closed")

// Source returns raw episodes already sorted and limited according to q.
type Source interface {
	FetchEpisodes(ctx context.Context, q models.EpisodeQuery) ([]models.RawEpisode, error)
}

// Options configures a Cache.
type Options struct {
	Query      models.EpisodeQuery
	SplitIndex int
	Interval   time.Duration
	Now        func() time.Time
}

// Cache holds the current feed snapshot.
type Cache struct {
	source   Source
	builder  *feed.Builder
	query    models.EpisodeQuery
	split    int
	interval time.Duration
	now      func() time.Time
	logger   zerolog.Logger

	group singleflight.Group

	mu         sync.RWMutex
	current    *feed.Feed
	stale      bool
	closed     bool
	refreshing bool

	wg sync.WaitGroup
}

// New creates an empty cache. Nothing is fetched until the first Current or
// Revalidate call.
func New(source Source, builder *feed.Builder, opts Options, logger zerolog.Logger) *Cache {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SplitIndex < 0 {
		opts.SplitIndex = feed.DefaultSplitIndex
	}
	return &Cache{
		source:   source,
		builder:  builder,
		query:    opts.Query,
		split:    opts.SplitIndex,
		interval: opts.Interval,
		now:      opts.Now,
		logger:   logger,
	}
}

// Current returns the feed, building it synchronously on first use. A stale
// feed is returned as is and a background rebuild is started.
func (c *Cache) Current(ctx context.Context) (feed.Feed, error) {
	c.mu.RLock()
	current := c.current
	stale := c.stale
	c.mu.RUnlock()

	if current == nil {
		return c.Revalidate(ctx)
	}

	if stale || c.now().Sub(current.BuiltAt) >= c.interval {
		c.revalidateInBackground()
	}
	return *current, nil
}

// Revalidate rebuilds the feed now. Concurrent callers share one rebuild. On
// failure the previous feed, if any, stays in place.
func (c *Cache) Revalidate(ctx context.Context) (feed.Feed, error) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return feed.Feed{}, ErrClosed
	}

	ch := c.group.DoChan(flightKey, func() (interface{}, error) {
		// Registered under mu so Close either sees this flight or it never runs.
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return feed.Feed{}, ErrClosed
		}
		c.wg.Add(1)
		c.mu.Unlock()
		defer c.wg.Done()

		// Shared by every waiter, so one caller going away must not cancel it.
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rebuildTimeout)
		defer cancel()
		return c.rebuild(flightCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return feed.Feed{}, res.Err
		}
		return res.Val.(feed.Feed), nil
	case <-ctx.Done():
		return feed.Feed{}, ctx.Err()
	}
}

// MarkStale makes the next Current call trigger a rebuild.
func (c *Cache) MarkStale() {
	c.mu.Lock()
	c.stale = true
	c.mu.Unlock()
}

// BuiltAt reports when the current feed was built.
func (c *Cache) BuiltAt() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return time.Time{}, false
	}
	return c.current.BuiltAt, true
}

// Close stops new rebuilds and waits for running ones, including those whose
// callers stopped waiting.
func (c *Cache) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Cache) revalidateInBackground() {
	c.mu.Lock()
	if c.closed || c.refreshing {
		c.mu.Unlock()
		return
	}
	c.refreshing = true
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			c.refreshing = false
			c.mu.Unlock()
		}()
		ctx, cancel := context.WithTimeout(context.Background(), rebuildTimeout)
		defer cancel()
		if _, err := c.Revalidate(ctx); err != nil && !errors.Is(err, ErrClosed) {
			c.logger.Warn().Err(err).Msg("background revalidation failed; serving previous feed")
		}
	}()
}

func (c *Cache) rebuild(ctx context.Context) (feed.Feed, error) {
	start := c.now()
	defer func() {
		metrics.RevalidationDuration.Observe(c.now().Sub(start).Seconds())
	}()

	raw, err := c.source.FetchEpisodes(ctx, c.query)
	if err != nil {
		metrics.RevalidationsTotal.WithLabelValues(metrics.ResultSourceError).Inc()
		c.logger.Error().Err(err).Msg("fetch episodes")
		return feed.Feed{}, fmt.Errorf("fetch episodes: %w", err)
	}

	latest, rest, err := c.builder.Build(raw, c.split)
	if err != nil {
		metrics.RevalidationsTotal.WithLabelValues(metrics.ResultBuildError).Inc()
		c.logger.Error().Err(err).Int("episodes", len(raw)).Msg("build feed")
		return feed.Feed{}, fmt.Errorf("build feed: %w", err)
	}

	built := feed.Feed{Latest: latest, All: rest, BuiltAt: c.now()}

	c.mu.Lock()
	c.current = &built
	c.stale = false
	c.mu.Unlock()

	metrics.RevalidationsTotal.WithLabelValues(metrics.ResultOK).Inc()
	metrics.FeedEpisodes.WithLabelValues("latest").Set(float64(len(latest)))
	metrics.FeedEpisodes.WithLabelValues("all").Set(float64(len(rest)))
	metrics.FeedBuiltTimestamp.Set(float64(built.BuiltAt.Unix()))

	c.logger.Info().
		Int("latest", len(latest)).
		Int("all", len(rest)).
		Msg("feed revalidated")
	return built, nil
}
