// Package feed turns raw API episodes into the view-models shown on the
// listing page and splits them into the latest and remaining buckets.
package feed

import (
	"errors"
	"fmt"
	"time"

	"podcaster/internal/models"
)

// DefaultSplitIndex is the number of episodes promoted to the latest bucket.
const DefaultSplitIndex = 2

// Section identifies one of the two display buckets.
type Section int

const (
	SectionLatest Section = iota
	SectionAll
)

// Builder converts raw episodes using a fixed date locale.
type Builder struct {
	dates *DateFormatter
}

// NewBuilder creates a Builder formatting dates for locale in location.
func NewBuilder(locale string, location *time.Location) (*Builder, error) {
	dates, err := NewDateFormatter(locale, location)
	if err != nil {
		return nil, err
	}
	return &Builder{dates: dates}, nil
}

var defaultBuilder = func() *Builder {
	b, err := NewBuilder("en", time.UTC)
	if err != nil {
		panic(err)
	}
	return b
}()

// BuildFeed runs the default English/UTC builder.
func BuildFeed(raw []models.RawEpisode, splitIndex int) ([]models.Episode, []models.Episode, error) {
	return defaultBuilder.Build(raw, splitIndex)
}

// Episode converts a single raw record.
func (b *Builder) Episode(raw models.RawEpisode) (models.Episode, error) {
	duration, err := ParseDuration(string(raw.File.Duration))
	if err != nil {
		return models.Episode{}, &EpisodeError{ID: raw.ID, Field: "file.duration", Value: string(raw.File.Duration), Err: err}
	}

	publishedAt, err := b.dates.FormatISO(raw.PublishedAt)
	if err != nil {
		return models.Episode{}, &EpisodeError{ID: raw.ID, Field: "published_at", Value: raw.PublishedAt, Err: err}
	}

	return models.Episode{
		ID:               raw.ID,
		Title:            raw.Title,
		Members:          raw.Members,
		PublishedAt:      publishedAt,
		Thumbnail:        raw.Thumbnail,
		URL:              raw.File.URL,
		Duration:         duration,
		DurationAsString: FormatDuration(duration),
		Description:      raw.Description,
	}, nil
}

// Build converts raw in order and partitions the result at splitIndex. The
// first failing record aborts the build.
func (b *Builder) Build(raw []models.RawEpisode, splitIndex int) ([]models.Episode, []models.Episode, error) {
	if splitIndex < 0 {
		return nil, nil, fmt.Errorf("%w: %d", ErrInvalidSplitIndex, splitIndex)
	}

	episodes := make([]models.Episode, 0, len(raw))
	for i, record := range raw {
		episode, err := b.Episode(record)
		if err != nil {
			var epErr *EpisodeError
			if errors.As(err, &epErr) {
				epErr.Index = i
			}
			return nil, nil, err
		}
		episodes = append(episodes, episode)
	}

	if splitIndex > len(episodes) {
		splitIndex = len(episodes)
	}
	latest := episodes[:splitIndex:splitIndex]
	rest := episodes[splitIndex:]
	return latest, rest, nil
}

// Feed is one built listing.
type Feed struct {
	Latest  []models.Episode `json:"latestEpisodes"`
	All     []models.Episode `json:"allEpisodes"`
	BuiltAt time.Time        `json:"builtAt"`
}

// Episodes returns the latest and remaining episodes as one list, the list a
// play action addresses by index.
func (f Feed) Episodes() []models.Episode {
	result := make([]models.Episode, 0, len(f.Latest)+len(f.All))
	result = append(result, f.Latest...)
	return append(result, f.All...)
}

// GlobalIndex maps a position inside a section to its position in Episodes.
func (f Feed) GlobalIndex(section Section, i int) int {
	if section == SectionAll {
		return i + len(f.Latest)
	}
	return i
}

// Lookup finds an episode by id and returns its position in Episodes.
func (f Feed) Lookup(id string) (models.Episode, int, bool) {
	for i, ep := range f.Episodes() {
		if ep.ID == id {
			return ep, i, true
		}
	}
	return models.Episode{}, -1, false
}

// Playlist is the argument of a play action: the full list plus the index to
// start from.
type Playlist struct {
	Episodes     []models.Episode `json:"episodes"`
	CurrentIndex int              `json:"currentIndex"`
}

// PlayFunc starts playback of episodes at index.
type PlayFunc func(episodes []models.Episode, index int)

// Play builds the playlist starting at index.
func (f Feed) Play(index int) (Playlist, error) {
	episodes := f.Episodes()
	if index < 0 || index >= len(episodes) {
		return Playlist{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(episodes))
	}
	return Playlist{Episodes: episodes, CurrentIndex: index}, nil
}

// Invoke hands the playlist to a play function.
func (p Playlist) Invoke(play PlayFunc) {
	if play == nil {
		return
	}
	play(p.Episodes, p.CurrentIndex)
}
