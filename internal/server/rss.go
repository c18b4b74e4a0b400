package server

import (
	"encoding/xml"
	"net/http"
	"net/url"
	"strings"
	"time"

	"podcaster/internal/feed"
	"podcaster/internal/metadata"
	"podcaster/internal/models"
)

func (h *serverHandler) handleFeed(w http.ResponseWriter, r *http.Request) {
	base := requestBaseURL(r)
	if base == nil {
		h.logger.Error().Msg("unable to determine request base URL")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	f, ok := h.currentFeed(w, r)
	if !ok {
		return
	}

	data, err := h.buildRSSFeed(base, r.URL.Path, r.URL.RawQuery, f)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to build RSS feed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	if _, err := w.Write(data); err != nil {
		h.logger.Warn().Err(err).Msg("failed to write RSS feed")
	}
}

func requestBaseURL(r *http.Request) *url.URL {
	scheme := "http"
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if candidate := strings.TrimSpace(parts[0]); candidate != "" {
			scheme = candidate
		}
	} else if r.TLS != nil {
		scheme = "https"
	}

	host := strings.TrimSpace(r.Host)
	if host == "" {
		return nil
	}

	return &url.URL{Scheme: scheme, Host: host}
}

// absoluteURL resolves ref against base. Absolute references are kept.
func absoluteURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}

func (h *serverHandler) buildRSSFeed(base *url.URL, requestPath, rawQuery string, f feed.Feed) ([]byte, error) {
	feedURL := *base
	feedURL.Path = requestPath
	feedURL.RawQuery = rawQuery

	channelLink := *base
	channelLink.Path = "/"

	lastBuild := f.BuiltAt.UTC()
	if f.BuiltAt.IsZero() {
		lastBuild = time.Now().UTC()
	}

	rss := rssFeed{
		Version:  "2.0",
		AtomNS:   "http://www.w3.org/2005/Atom",
		ITunesNS: "http://www.itunes.com/dtds/podcast-1.0.dtd",
		Channel: rssChannel{
			Title:         h.feed.Title,
			Link:          channelLink.String(),
			Description:   h.feed.Description,
			Language:      h.feed.Language,
			LastBuildDate: lastBuild.Format(time.RFC1123Z),
			Generator:     "podcaster",
			AtomLink: rssAtomLink{
				Href: feedURL.String(),
				Rel:  "self",
				Type: "application/rss+xml",
			},
			ITunesAuthor: h.feed.Author,
		},
	}

	for _, ep := range f.Episodes() {
		enclosure := absoluteURL(base, ep.URL)

		item := rssItem{
			Title:       ep.Title,
			Link:        base.String() + episodePath(ep.ID),
			GUID:        rssGUID{IsPermaLink: "false", Value: ep.ID},
			Description: episodeDescription(ep),
			Enclosure: rssEnclosure{
				URL:  enclosure,
				Type: metadata.MIMETypeForFilename(enclosurePath(enclosure)),
			},
			ITunesDuration: ep.DurationAsString,
			ITunesAuthor:   ep.Members,
		}
		if item.ITunesAuthor == "" {
			item.ITunesAuthor = h.feed.Author
		}
		if thumb := absoluteURL(base, ep.Thumbnail); thumb != "" {
			item.ITunesImage = &rssImage{Href: thumb}
		}

		rss.Channel.Items = append(rss.Channel.Items, item)
	}

	output, err := xml.MarshalIndent(rss, "", "  ")
	if err != nil {
		return nil, err
	}

	return append([]byte(xml.Header), output...), nil
}

func enclosurePath(raw string) string {
	if parsed, err := url.Parse(raw); err == nil {
		return parsed.Path
	}
	return raw
}

func episodeDescription(ep models.Episode) string {
	if ep.Description != "" {
		return ep.Description
	}
	parts := make([]string, 0, 3)
	if ep.Members != "" {
		parts = append(parts, ep.Members)
	}
	parts = append(parts, ep.PublishedAt, ep.DurationAsString)
	return strings.Join(parts, " | ")
}

type rssFeed struct {
	XMLName  xml.Name   `xml:"rss"`
	Version  string     `xml:"version,attr"`
	AtomNS   string     `xml:"xmlns:atom,attr"`
	ITunesNS string     `xml:"xmlns:itunes,attr"`
	Channel  rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string      `xml:"title"`
	Link          string      `xml:"link"`
	Description   string      `xml:"description"`
	Language      string      `xml:"language,omitempty"`
	LastBuildDate string      `xml:"lastBuildDate"`
	Generator     string      `xml:"generator"`
	AtomLink      rssAtomLink `xml:"atom:link"`
	ITunesAuthor  string      `xml:"itunes:author,omitempty"`
	Items         []rssItem   `xml:"item"`
}

type rssAtomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type rssItem struct {
	Title          string       `xml:"title"`
	Link           string       `xml:"link"`
	GUID           rssGUID      `xml:"guid"`
	Description    string       `xml:"description"`
	Enclosure      rssEnclosure `xml:"enclosure"`
	ITunesDuration string       `xml:"itunes:duration,omitempty"`
	ITunesAuthor   string       `xml:"itunes:author,omitempty"`
	ITunesImage    *rssImage    `xml:"itunes:image,omitempty"`
}

type rssGUID struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

type rssImage struct {
	Href string `xml:"href,attr"`
}
