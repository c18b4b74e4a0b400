package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RawEpisode is the episode record as returned by the episodes API.
type RawEpisode struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Members     string  `json:"members"`
	PublishedAt string  `json:"published_at"`
	Thumbnail   string  `json:"thumbnail"`
	Description string  `json:"description,omitempty"`
	File        RawFile `json:"file"`
}

// RawFile describes the media attached to a raw episode.
type RawFile struct {
	URL      string      `json:"url"`
	Type     string      `json:"type,omitempty"`
	Duration RawDuration `json:"duration"`
}

// RawDuration holds the duration text exactly as sent by the API. Upstream
// sends either a JSON number or a numeric string.
type RawDuration string

// UnmarshalJSON accepts a JSON number, a JSON string or null.
func (d *RawDuration) UnmarshalJSON(data []byte) error {
	text, err := scalarText(data)
	if err != nil {
		return err
	}
	*d = RawDuration(text)
	return nil
}

// UnmarshalJSON decodes the API shape. A numeric id, as json-server assigns
// to created records, is kept as its decimal text.
func (e *RawEpisode) UnmarshalJSON(data []byte) error {
	type plain RawEpisode
	aux := struct {
		*plain
		ID json.RawMessage `json:"id"`
	}{plain: (*plain)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	id, err := scalarText(aux.ID)
	if err != nil {
		return fmt.Errorf("episode id: %w", err)
	}
	e.ID = id
	return nil
}

// scalarText returns the text of a JSON string or number. Null and absent
// values are empty.
func scalarText(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

// Episode is the display-ready view of a podcast episode.
type Episode struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Members          string `json:"members"`
	PublishedAt      string `json:"publishedAt"`
	Thumbnail        string `json:"thumbnail"`
	URL              string `json:"url"`
	Duration         int    `json:"duration"`
	DurationAsString string `json:"durationAsString"`
	Description      string `json:"description,omitempty"`
}

// EpisodeQuery carries the listing parameters sent to an episode source.
type EpisodeQuery struct {
	Limit int
	Sort  string
	Order string
}

const (
	SortPublishedAt = "published_at"
	SortTitle       = "title"

	OrderAsc  = "asc"
	OrderDesc = "desc"
)
