package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"podcaster/internal/metadata"
	"podcaster/internal/metrics"
	"podcaster/internal/models"
)

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
}

// Library monitors a media directory and serves its audio files as raw
// episodes, the same shape the episodes API returns.
type Library struct {
	root    string
	allowed map[string]struct{}
	watcher *fsnotify.Watcher
	logger  zerolog.Logger

	mu        sync.RWMutex
	episodes  []models.RawEpisode
	onRefresh func()

	refreshMu    sync.Mutex
	refreshTimer *time.Timer
	refreshDelay time.Duration

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewLibrary creates a new Library and starts watching the provided root path.
func NewLibrary(root string, allowed []string, debounce time.Duration, logger zerolog.Logger) (*Library, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	lib := &Library{
		root:         root,
		allowed:      make(map[string]struct{}, len(allowed)),
		watcher:      watcher,
		logger:       logger,
		refreshDelay: debounce,
		done:         make(chan struct{}),
	}

	for _, ext := range allowed {
		lib.allowed[strings.ToLower(ext)] = struct{}{}
	}

	lib.addWatchRecursive(root)

	if err := lib.refresh(); err != nil {
		watcher.Close()
		return nil, err
	}

	lib.wg.Add(1)
	go lib.run()

	return lib, nil
}

// Root returns the watched directory.
func (l *Library) Root() string {
	return l.root
}

// SetOnRefresh registers fn to run after every rescan triggered by a
// file-system change.
func (l *Library) SetOnRefresh(fn func()) {
	l.mu.Lock()
	l.onRefresh = fn
	l.mu.Unlock()
}

// Close stops the watcher and cleans up resources.
func (l *Library) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)

		l.refreshMu.Lock()
		if l.refreshTimer != nil {
			l.refreshTimer.Stop()
			l.refreshTimer = nil
		}
		l.refreshMu.Unlock()

		l.closeErr = l.watcher.Close()
		l.wg.Wait()
	})
	return l.closeErr
}

// ListEpisodes returns a snapshot of the scanned episodes in path order.
func (l *Library) ListEpisodes() []models.RawEpisode {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]models.RawEpisode, len(l.episodes))
	copy(result, l.episodes)
	return result
}

// FetchEpisodes sorts and limits the scanned episodes the way the episodes
// API does for its _sort, _order and _limit parameters.
func (l *Library) FetchEpisodes(ctx context.Context, q models.EpisodeQuery) ([]models.RawEpisode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	less, err := lessFunc(q.Sort)
	if err != nil {
		metrics.SourceRequestsTotal.WithLabelValues("library", "error").Inc()
		return nil, err
	}

	episodes := l.ListEpisodes()
	desc := !strings.EqualFold(q.Order, models.OrderAsc)
	sort.SliceStable(episodes, func(i, j int) bool {
		if desc {
			return less(episodes[j], episodes[i])
		}
		return less(episodes[i], episodes[j])
	})

	if q.Limit > 0 && len(episodes) > q.Limit {
		episodes = episodes[:q.Limit]
	}
	metrics.SourceRequestsTotal.WithLabelValues("library", "ok").Inc()
	return episodes, nil
}

func lessFunc(field string) (func(a, b models.RawEpisode) bool, error) {
	switch field {
	case "", models.SortPublishedAt:
		// RFC 3339 UTC timestamps sort lexically.
		return func(a, b models.RawEpisode) bool {
			if a.PublishedAt == b.PublishedAt {
				return a.ID < b.ID
			}
			return a.PublishedAt < b.PublishedAt
		}, nil
	case models.SortTitle:
		return func(a, b models.RawEpisode) bool {
			at, bt := strings.ToLower(a.Title), strings.ToLower(b.Title)
			if at == bt {
				return a.ID < b.ID
			}
			return at < bt
		}, nil
	default:
		return nil, fmt.Errorf("unsupported sort field %q", field)
	}
}

func (l *Library) run() {
	defer l.wg.Done()

	for {
		select {
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			l.handleEvent(event)
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Warn().Err(err).Msg("watcher error")
		case <-l.done:
			return
		}
	}
}

func (l *Library) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			l.addWatchRecursive(event.Name)
		}
	}

	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
		if l.isRelevant(event.Name) || event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			l.scheduleRefresh()
		}
	}
}

func (l *Library) refresh() error {
	var episodes []models.RawEpisode

	err := filepath.WalkDir(l.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("walk error")
			return nil
		}

		if d.IsDir() {
			return nil
		}

		if !l.isAllowed(path) {
			return nil
		}

		episode, err := metadata.BuildRawEpisode(path, l.root)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("metadata error")
			return nil
		}

		episodes = append(episodes, episode)
		return nil
	})
	if err != nil {
		return err
	}

	sort.SliceStable(episodes, func(i, j int) bool {
		return episodes[i].File.URL < episodes[j].File.URL
	})

	l.mu.Lock()
	l.episodes = episodes
	l.mu.Unlock()

	l.logger.Info().Int("episodes", len(episodes)).Msg("library refreshed")
	return nil
}

func (l *Library) scheduleRefresh() {
	select {
	case <-l.done:
		return
	default:
	}

	l.refreshMu.Lock()
	defer l.refreshMu.Unlock()

	if l.refreshTimer != nil {
		l.refreshTimer.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(l.refreshDelay, func() {
		if err := l.refresh(); err != nil {
			l.logger.Error().Err(err).Msg("refresh error")
		} else {
			l.mu.RLock()
			notify := l.onRefresh
			l.mu.RUnlock()
			if notify != nil {
				notify()
			}
		}

		l.refreshMu.Lock()
		if l.refreshTimer == timer {
			l.refreshTimer = nil
		}
		l.refreshMu.Unlock()
	})

	l.refreshTimer = timer
}

func (l *Library) addWatchRecursive(path string) {
	filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			l.logger.Warn().Err(err).Str("path", p).Msg("walk error")
			return nil
		}

		if d.IsDir() {
			if err := l.watcher.Add(p); err != nil {
				l.logger.Warn().Err(err).Str("path", p).Msg("watcher add failure")
			}
		}
		return nil
	})
}

func (l *Library) isAllowed(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	_, ok := l.allowed[ext]
	return ok
}

func (l *Library) isRelevant(path string) bool {
	if l.isAllowed(path) {
		return true
	}
	_, ok := imageExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}
