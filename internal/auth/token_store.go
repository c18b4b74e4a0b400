// Package auth holds the tokens allowed to trigger an on-demand feed
// revalidation.
package auth

import (
	"crypto/subtle"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// TokenStore is a set of tokens read from a file, one per line. Blank lines
// and lines starting with '#' are ignored. The file is re-read when it
// changes.
type TokenStore struct {
	file         string
	logger       zerolog.Logger
	watcher      *fsnotify.Watcher
	refreshDelay time.Duration

	mu     sync.RWMutex
	tokens [][]byte

	refreshMu    sync.Mutex
	refreshTimer *time.Timer
	done         chan struct{}
	wg           sync.WaitGroup
	closeOnce    sync.Once
	closeErr     error
}

// NewTokenStore loads filePath and starts watching it.
func NewTokenStore(filePath string, debounce time.Duration, logger zerolog.Logger) (*TokenStore, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	s := &TokenStore{
		file:         filepath.Clean(filePath),
		logger:       logger,
		watcher:      watcher,
		refreshDelay: debounce,
		done:         make(chan struct{}),
	}

	if err := s.refresh(); err != nil {
		watcher.Close()
		return nil, err
	}

	// Editors replace files on save, so watch the directory as well.
	if err := watcher.Add(filepath.Dir(s.file)); err != nil {
		watcher.Close()
		return nil, err
	}
	if err := watcher.Add(s.file); err != nil {
		s.logger.Debug().Err(err).Msg("token watcher could not watch file directly")
	}

	s.wg.Add(1)
	go s.run()

	return s, nil
}

// Close stops the file watcher and releases resources.
func (s *TokenStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)

		s.refreshMu.Lock()
		if s.refreshTimer != nil {
			s.refreshTimer.Stop()
			s.refreshTimer = nil
		}
		s.refreshMu.Unlock()

		s.closeErr = s.watcher.Close()
		s.wg.Wait()
	})
	return s.closeErr
}

// IsValidToken reports whether token is in the set. Every stored token is
// compared in constant time.
func (s *TokenStore) IsValidToken(token string) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}

	candidate := []byte(token)
	s.mu.RLock()
	defer s.mu.RUnlock()

	match := 0
	for _, known := range s.tokens {
		match |= subtle.ConstantTimeCompare(known, candidate)
	}
	return match == 1
}

// Len returns the number of loaded tokens.
func (s *TokenStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

func (s *TokenStore) run() {
	defer s.wg.Done()

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn().Err(err).Msg("token watcher error")
		case <-s.done:
			return
		}
	}
}

func (s *TokenStore) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != s.file {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
		s.scheduleRefresh()
	}
}

func (s *TokenStore) scheduleRefresh() {
	select {
	case <-s.done:
		return
	default:
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
	}

	s.refreshTimer = time.AfterFunc(s.refreshDelay, func() {
		if err := s.refresh(); err != nil {
			s.logger.Error().Err(err).Msg("token refresh error")
		}
	})
}

func (s *TokenStore) refresh() error {
	data, err := os.ReadFile(s.file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.mu.Lock()
			s.tokens = nil
			s.mu.Unlock()
			s.logger.Warn().Str("file", s.file).Msg("token file missing; revalidation disabled until it returns")
			return nil
		}
		return err
	}

	tokens := parseTokens(string(data))

	s.mu.Lock()
	s.tokens = tokens
	s.mu.Unlock()

	s.logger.Info().Int("tokens", len(tokens)).Msg("loaded revalidation tokens")
	return nil
}

func parseTokens(content string) [][]byte {
	seen := make(map[string]struct{})
	var tokens [][]byte
	for _, line := range strings.Split(content, "\n") {
		token := strings.TrimSpace(line)
		if token == "" || strings.HasPrefix(token, "#") {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		tokens = append(tokens, []byte(token))
	}
	return tokens
}
