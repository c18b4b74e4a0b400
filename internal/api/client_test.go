package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podcaster/internal/models"
)

func defaultQuery() models.EpisodeQuery {
	return models.EpisodeQuery{Limit: 12, Sort: models.SortPublishedAt, Order: models.OrderDesc}
}

func TestFetchEpisodesSendsQueryAndDecodes(t *testing.T) {
	var gotPath string
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = map[string]string{
			"_limit": r.URL.Query().Get("_limit"),
			"_sort":  r.URL.Query().Get("_sort"),
			"_order": r.URL.Query().Get("_order"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"b","title":"B","members":"M","published_at":"2021-05-11","thumbnail":"b.jpg","file":{"url":"b.mp3","duration":"60"}},
			{"id":"a","title":"A","members":"M","published_at":"2021-05-10","thumbnail":"a.jpg","file":{"url":"a.mp3","duration":120}}
		]`))
	}))
	defer srv.Close()

	client, err := New(srv.URL+"/", nil, zerolog.Nop())
	require.NoError(t, err)

	episodes, err := client.FetchEpisodes(context.Background(), defaultQuery())
	require.NoError(t, err)

	assert.Equal(t, "/episodes", gotPath)
	assert.Equal(t, map[string]string{"_limit": "12", "_sort": "published_at", "_order": "desc"}, gotQuery)
	require.Len(t, episodes, 2)
	assert.Equal(t, "b", episodes[0].ID)
	assert.Equal(t, models.RawDuration("60"), episodes[0].File.Duration)
	assert.Equal(t, models.RawDuration("120"), episodes[1].File.Duration)
}

func TestFetchEpisodesEmptyArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client, err := New(srv.URL, nil, zerolog.Nop())
	require.NoError(t, err)

	episodes, err := client.FetchEpisodes(context.Background(), defaultQuery())
	require.NoError(t, err)
	assert.NotNil(t, episodes)
	assert.Empty(t, episodes)
}

func TestFetchEpisodesStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := New(srv.URL, nil, zerolog.Nop())
	require.NoError(t, err)

	_, err = client.FetchEpisodes(context.Background(), defaultQuery())
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Contains(t, statusErr.Error(), "upstream exploded")
}

func TestFetchEpisodesDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"an array"}`))
	}))
	defer srv.Close()

	client, err := New(srv.URL, nil, zerolog.Nop())
	require.NoError(t, err)

	_, err = client.FetchEpisodes(context.Background(), defaultQuery())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode episodes")
}

func TestFetchEpisodesHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client, err := New(srv.URL, nil, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = client.FetchEpisodes(ctx, defaultQuery())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewRejectsInvalidURLs(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com", "http://", "::not a url"} {
		_, err := New(raw, nil, zerolog.Nop())
		assert.Error(t, err, raw)
	}
}

func TestEpisodesURLKeepsBasePath(t *testing.T) {
	client, err := New("https://api.example.com/v1", nil, zerolog.Nop())
	require.NoError(t, err)

	got := client.EpisodesURL(models.EpisodeQuery{Limit: 3})
	assert.Equal(t, "https://api.example.com/v1/episodes?_limit=3", got)
}
