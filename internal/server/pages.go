package server

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"podcaster/internal/feed"
	"podcaster/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

const episodePrefix = "/episodes/"

var pages = template.Must(template.New("pages").Funcs(template.FuncMap{
	"episodePath": episodePath,
}).ParseFS(templateFS, "templates/*.html"))

// episodePath is the escaped page path for id. Slashes in id are escaped
// too, so the id is one path segment.
func episodePath(id string) string {
	return episodePrefix + url.PathEscape(id)
}

// episodeID recovers the id from an episodePath request. The escaped path
// is decoded exactly once.
func episodeID(r *http.Request) (string, bool) {
	escaped, ok := strings.CutPrefix(r.URL.EscapedPath(), episodePrefix)
	if !ok || escaped == "" {
		return "", false
	}
	id, err := url.PathUnescape(escaped)
	if err != nil || id == "" {
		return "", false
	}
	return id, true
}

// episodeView is an episode plus its position in the play list.
type episodeView struct {
	models.Episode
	Index int
}

type homePage struct {
	Meta    FeedMetadata
	Latest  []episodeView
	All     []episodeView
	BuiltAt time.Time
}

type episodePage struct {
	Meta    FeedMetadata
	Episode episodeView
}

func sectionViews(f feed.Feed, section feed.Section, episodes []models.Episode) []episodeView {
	views := make([]episodeView, len(episodes))
	for i, ep := range episodes {
		views[i] = episodeView{Episode: ep, Index: f.GlobalIndex(section, i)}
	}
	return views
}

func (h *serverHandler) handleHome(w http.ResponseWriter, r *http.Request) {
	f, err := h.provider.Current(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("home page without feed")
		http.Error(w, "episodes are unavailable", http.StatusBadGateway)
		return
	}

	h.render(w, "home.html", homePage{
		Meta:    h.feed,
		Latest:  sectionViews(f, feed.SectionLatest, f.Latest),
		All:     sectionViews(f, feed.SectionAll, f.All),
		BuiltAt: f.BuiltAt,
	})
}

func (h *serverHandler) handleEpisode(w http.ResponseWriter, r *http.Request) {
	id, ok := episodeID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	f, err := h.provider.Current(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("episode page without feed")
		http.Error(w, "episodes are unavailable", http.StatusBadGateway)
		return
	}

	ep, index, ok := f.Lookup(id)
	if !ok {
		http.NotFound(w, r)
		return
	}

	h.render(w, "episode.html", episodePage{
		Meta:    h.feed,
		Episode: episodeView{Episode: ep, Index: index},
	})
}

func (h *serverHandler) render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		h.logger.Error().Err(err).Str("template", name).Msg("failed to render page")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn().Err(err).Str("template", name).Msg("failed to write page")
	}
}
