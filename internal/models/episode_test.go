package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawDurationAcceptsNumbersAndStrings(t *testing.T) {
	cases := map[string]RawDuration{
		`{"url":"a.mp3","duration":5400}`:           "5400",
		`{"url":"a.mp3","duration":"5400"}`:         "5400",
		`{"url":"a.mp3","duration":12.5}`:           "12.5",
		`{"url":"a.mp3","duration":"not-a-number"}`: "not-a-number",
		`{"url":"a.mp3","duration":null}`:           "",
		`{"url":"a.mp3"}`:                           "",
	}

	for payload, want := range cases {
		var file RawFile
		require.NoError(t, json.Unmarshal([]byte(payload), &file), payload)
		assert.Equal(t, want, file.Duration, payload)
		assert.Equal(t, "a.mp3", file.URL)
	}
}

func TestRawDurationRejectsObjects(t *testing.T) {
	var file RawFile
	err := json.Unmarshal([]byte(`{"duration":{"seconds":1}}`), &file)
	require.Error(t, err)
}

func TestRawEpisodeDecodesAPIShape(t *testing.T) {
	payload := `{
		"id": "a-importancia-da-contribuicao-em-open-source",
		"title": "Faladev #30",
		"members": "Diego e Richard",
		"published_at": "2021-01-22 13:37:25",
		"thumbnail": "https://example.com/opensource.jpg",
		"description": "<p>Neste episódio</p>",
		"file": {"url": "https://example.com/opensource.m4a", "type": "audio/x-m4a", "duration": 3981}
	}`

	var raw RawEpisode
	require.NoError(t, json.Unmarshal([]byte(payload), &raw))
	assert.Equal(t, "Faladev #30", raw.Title)
	assert.Equal(t, "2021-01-22 13:37:25", raw.PublishedAt)
	assert.Equal(t, RawDuration("3981"), raw.File.Duration)
	assert.Equal(t, "audio/x-m4a", raw.File.Type)
}

func TestRawEpisodeAcceptsNumericID(t *testing.T) {
	cases := map[string]string{
		`{"id": 7, "title": "Created", "file": {"url": "a.mp3", "duration": 60}}`:       "7",
		`{"id": "seven", "title": "Created", "file": {"url": "a.mp3", "duration": 60}}`: "seven",
		`{"id": null, "title": "Created", "file": {"url": "a.mp3", "duration": 60}}`:    "",
		`{"title": "Created", "file": {"url": "a.mp3", "duration": 60}}`:                "",
	}

	for payload, want := range cases {
		var raw RawEpisode
		require.NoError(t, json.Unmarshal([]byte(payload), &raw), payload)
		assert.Equal(t, want, raw.ID, payload)
		assert.Equal(t, "Created", raw.Title, payload)
		assert.Equal(t, RawDuration("60"), raw.File.Duration, payload)
	}
}

func TestRawEpisodeListWithMixedIDs(t *testing.T) {
	payload := `[{"id": "a", "title": "A"}, {"id": 12, "title": "B"}]`

	var raws []RawEpisode
	require.NoError(t, json.Unmarshal([]byte(payload), &raws))
	require.Len(t, raws, 2)
	assert.Equal(t, "a", raws[0].ID)
	assert.Equal(t, "12", raws[1].ID)
}

func TestRawEpisodeRejectsObjectID(t *testing.T) {
	var raw RawEpisode
	err := json.Unmarshal([]byte(`{"id": {"n": 1}}`), &raw)
	require.Error(t, err)
}
