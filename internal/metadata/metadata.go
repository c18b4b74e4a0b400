package metadata

import (
	"errors"
	"io"
	"math"
	"mime"
	"os"
	pathpkg "path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/tcolgate/mp3"

	"podcaster/internal/models"
)

// AudioPrefix and MediaPrefix are the URL paths under which the server
// exposes the media directory.
const (
	AudioPrefix = "/audio/"
	MediaPrefix = "/media/"
)

var thumbnailExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

var fallbackMIMETypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// BuildRawEpisode describes an audio file in the episodes API shape. File
// paths become URLs relative to the server root.
func BuildRawEpisode(path string, root string) (models.RawEpisode, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.RawEpisode{}, err
	}

	relative, err := filepath.Rel(root, path)
	if err != nil {
		relative = filepath.Base(path)
	}
	relative = filepath.ToSlash(relative)

	tags := readTags(path)
	if tags.title == "" {
		tags.title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	seconds := 0
	if strings.EqualFold(filepath.Ext(path), ".mp3") {
		if dur, err := computeMP3Duration(path); err == nil && dur > 0 {
			seconds = int(math.Round(dur))
		}
	}

	return models.RawEpisode{
		ID:          strings.TrimSuffix(relative, pathpkg.Ext(relative)),
		Title:       tags.title,
		Members:     tags.members(),
		PublishedAt: info.ModTime().UTC().Round(time.Second).Format(time.RFC3339),
		Thumbnail:   findThumbnail(path, root),
		Description: tags.comment,
		File: models.RawFile{
			URL:      AudioPrefix + relative,
			Type:     MIMETypeForFilename(path),
			Duration: models.RawDuration(strconv.Itoa(seconds)),
		},
	}, nil
}

// MIMETypeForFilename guesses the content type from the file extension.
func MIMETypeForFilename(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext != "" {
		if fallback, ok := fallbackMIMETypes[ext]; ok {
			return fallback
		}
		if value := mime.TypeByExtension(ext); value != "" {
			return value
		}
	}
	return "application/octet-stream"
}

type fileTags struct {
	title       string
	artist      string
	albumArtist string
	composer    string
	comment     string
}

// members joins the distinct people credited in the tags.
func (t fileTags) members() string {
	seen := make(map[string]struct{}, 3)
	var names []string
	for _, name := range []string{t.artist, t.albumArtist, t.composer} {
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}

func readTags(path string) fileTags {
	f, err := os.Open(path)
	if err != nil {
		return fileTags{}
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		return fileTags{}
	}

	return fileTags{
		title:       strings.TrimSpace(meta.Title()),
		artist:      strings.TrimSpace(meta.Artist()),
		albumArtist: strings.TrimSpace(meta.AlbumArtist()),
		composer:    strings.TrimSpace(meta.Composer()),
		comment:     strings.TrimSpace(meta.Comment()),
	}
}

// findThumbnail looks for an image next to the audio file sharing its stem.
func findThumbnail(path, root string) string {
	stem := strings.TrimSuffix(path, filepath.Ext(path))
	for _, ext := range thumbnailExtensions {
		candidate := stem + ext
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		rel, err := filepath.Rel(root, candidate)
		if err != nil {
			continue
		}
		return MediaPrefix + filepath.ToSlash(rel)
	}
	return ""
}

func computeMP3Duration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	decoder := mp3.NewDecoder(f)
	var frame mp3.Frame
	var skipped int
	var total float64

	for {
		err := decoder.Decode(&frame, &skipped)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, err
		}
		total += frame.Duration().Seconds()
	}

	return total, nil
}
