// Package server exposes the episode listing over HTTP: the HTML pages, a
// JSON API, the RSS feed and, for a local library, the media files.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	pathpkg "path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"podcaster/internal/feed"
	"podcaster/internal/metadata"
)

const (
	defaultRevalidateLimit  = 10
	defaultRevalidateWindow = time.Minute
)

// FeedProvider returns the current feed and rebuilds it on demand.
type FeedProvider interface {
	Current(ctx context.Context) (feed.Feed, error)
	Revalidate(ctx context.Context) (feed.Feed, error)
}

// TokenValidator determines whether a supplied token is authorized.
type TokenValidator interface {
	IsValidToken(token string) bool
}

// FeedMetadata describes the static information used by the pages and the
// RSS channel.
type FeedMetadata struct {
	Title       string
	Description string
	Language    string
	Author      string
}

// Options configures the handler. An empty MediaRoot disables the media
// routes and a nil Tokens disables on-demand revalidation.
type Options struct {
	Feed             FeedMetadata
	MediaRoot        string
	Tokens           TokenValidator
	RevalidateLimit  int
	RevalidateWindow time.Duration
	Logger           zerolog.Logger
}

type serverHandler struct {
	provider  FeedProvider
	validator TokenValidator
	mediaRoot string
	feed      FeedMetadata
	logger    zerolog.Logger
}

// New creates the HTTP handler for provider.
func New(provider FeedProvider, opts Options) http.Handler {
	logger := opts.Logger

	mediaRoot := ""
	if strings.TrimSpace(opts.MediaRoot) != "" {
		cleanRoot := filepath.Clean(opts.MediaRoot)
		absRoot, err := filepath.Abs(cleanRoot)
		if err != nil {
			logger.Warn().Err(err).Str("root", opts.MediaRoot).Msg("unable to resolve absolute media root")
			absRoot = cleanRoot
		}
		mediaRoot = absRoot
	}

	meta := opts.Feed
	if meta.Title == "" {
		meta.Title = "Podcaster"
	}
	if meta.Description == "" {
		meta.Description = meta.Title
	}

	h := &serverHandler{
		provider:  provider,
		validator: opts.Tokens,
		mediaRoot: mediaRoot,
		feed:      meta,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(logRequests(logger))

	r.Get("/", h.handleHome)
	r.Get("/episodes/*", h.handleEpisode)

	r.Get("/health", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/episodes", h.handleAPIEpisodes)
		r.Get("/playlist", h.handlePlaylist)
		if h.validator != nil {
			limit := opts.RevalidateLimit
			if limit <= 0 {
				limit = defaultRevalidateLimit
			}
			window := opts.RevalidateWindow
			if window <= 0 {
				window = defaultRevalidateWindow
			}
			r.With(revalidateRateLimit(limit, window)).Post("/revalidate", h.handleRevalidate)
		}
	})

	r.Get("/feed", h.handleFeed)
	r.Get("/feed.xml", h.handleFeed)
	r.Get("/rss", h.handleFeed)

	if h.mediaRoot != "" {
		r.Get("/audio/*", h.handleMedia)
		r.Head("/audio/*", h.handleMedia)
		r.Get("/media/*", h.handleMedia)
		r.Head("/media/*", h.handleMedia)
	}

	return r
}

func (h *serverHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok"}
	if built, ok := h.provider.(interface{ BuiltAt() (time.Time, bool) }); ok {
		if at, ok := built.BuiltAt(); ok {
			body["builtAt"] = at.UTC().Format(time.RFC3339)
		}
	}
	writeJSON(w, http.StatusOK, body, h.logger)
}

func (h *serverHandler) handleAPIEpisodes(w http.ResponseWriter, r *http.Request) {
	f, ok := h.currentFeed(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, f, h.logger)
}

// handlePlaylist starts at ?id= in the current snapshot when given, else at
// ?index=.
func (h *serverHandler) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	id := strings.TrimSpace(query.Get("id"))

	index := -1
	if id == "" {
		parsed, err := strconv.Atoi(strings.TrimSpace(query.Get("index")))
		if err != nil {
			writeError(w, http.StatusBadRequest, "index must be an integer", h.logger)
			return
		}
		index = parsed
	}

	f, ok := h.currentFeed(w, r)
	if !ok {
		return
	}

	if id != "" {
		_, found, ok := f.Lookup(id)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown episode", h.logger)
			return
		}
		index = found
	}

	playlist, err := f.Play(index)
	if err != nil {
		if errors.Is(err, feed.ErrIndexOutOfRange) {
			writeError(w, http.StatusNotFound, err.Error(), h.logger)
			return
		}
		writeError(w, http.StatusInternalServerError, "unable to build playlist", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, playlist, h.logger)
}

func (h *serverHandler) handleRevalidate(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r)
	if token == "" || !h.validator.IsValidToken(token) {
		writeError(w, http.StatusUnauthorized, "invalid token", h.logger)
		return
	}

	f, err := h.provider.Revalidate(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("on-demand revalidation failed")
		writeError(w, http.StatusBadGateway, "revalidation failed", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"revalidated": true,
		"builtAt":     f.BuiltAt.UTC().Format(time.RFC3339),
		"latest":      len(f.Latest),
		"all":         len(f.All),
	}, h.logger)
}

func (h *serverHandler) handleMedia(w http.ResponseWriter, r *http.Request) {
	rel := chi.URLParam(r, "*")
	rel = pathpkg.Clean("/" + rel)
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" || rel == "." {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	target := filepath.Join(h.mediaRoot, filepath.FromSlash(rel))
	resolved, err := filepath.Abs(target)
	if err != nil {
		h.logger.Error().Err(err).Str("path", target).Msg("failed to resolve media path")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if !pathWithinRoot(h.mediaRoot, resolved) {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("path", resolved).Msg("failed to stat media file")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if info.IsDir() {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", metadata.MIMETypeForFilename(resolved))
	http.ServeFile(w, r, resolved)
}

// currentFeed writes a 502 when no feed can be produced.
func (h *serverHandler) currentFeed(w http.ResponseWriter, r *http.Request) (feed.Feed, bool) {
	f, err := h.provider.Current(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("feed unavailable")
		writeError(w, http.StatusBadGateway, "episodes are unavailable", h.logger)
		return feed.Feed{}, false
	}
	return f, true
}

func writeJSON(w http.ResponseWriter, status int, v any, logger zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string, logger zerolog.Logger) {
	writeJSON(w, status, map[string]string{"error": message}, logger)
}

func extractToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}

	if header := strings.TrimSpace(r.Header.Get("X-Podcast-Token")); header != "" {
		return header
	}

	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if authz == "" {
		return ""
	}

	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[7:])
	}

	return ""
}

func pathWithinRoot(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	return rel != ".." && !strings.HasPrefix(rel, "../")
}
