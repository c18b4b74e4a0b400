package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"podcaster/internal/models"
)

var allowedExtensions = []string{
	".mp3",
	".m4a",
	".aac",
	".wav",
	".flac",
	".ogg",
}

const (
	SourceAPI     = "api"
	SourceLibrary = "library"
)

const (
	defaultListenAddr        = "127.0.0.1:8080"
	defaultAPIURL            = "http://localhost:3333"
	defaultLimit             = 12
	defaultSplitIndex        = 2
	defaultRevalidate        = time.Hour
	defaultLocale            = "en"
	defaultTimeZone          = "UTC"
	defaultRefreshDebounceMS = 500
	defaultRequestTimeout    = 15 * time.Second
	defaultLogLevel          = "info"
	defaultFeedTitle         = "Podcaster"
	defaultFeedDescription   = "The latest episodes, fresh every hour."
	defaultFeedLanguage      = "en"
)

// FeedMetadata represents the static metadata used to render the page and
// the RSS feed.
type FeedMetadata struct {
	Title       string
	Description string
	Language    string
	Author      string
}

// Config is the resolved service configuration.
type Config struct {
	ListenAddr      string
	Source          string
	APIURL          string
	MediaDir        string
	Limit           int
	Sort            string
	Order           string
	SplitIndex      int
	Revalidate      time.Duration
	Locale          string
	TimeZone        string
	TokenFile       string
	RefreshDebounce time.Duration
	RequestTimeout  time.Duration
	LogLevel        string
	Feed            FeedMetadata
}

type fileConfig struct {
	ListenAddr      string `yaml:"listen_addr"`
	Source          string `yaml:"source"`
	APIURL          string `yaml:"api_url"`
	MediaDir        string `yaml:"media_dir"`
	Limit           *int   `yaml:"limit"`
	Sort            string `yaml:"sort"`
	Order           string `yaml:"order"`
	SplitIndex      *int   `yaml:"split_index"`
	Revalidate      string `yaml:"revalidate"`
	Locale          string `yaml:"locale"`
	TimeZone        string `yaml:"time_zone"`
	TokenFile       string `yaml:"token_file"`
	RefreshDebounce string `yaml:"refresh_debounce"`
	RequestTimeout  string `yaml:"request_timeout"`
	LogLevel        string `yaml:"log_level"`
	Feed            struct {
		Title       string `yaml:"title"`
		Description string `yaml:"description"`
		Language    string `yaml:"language"`
		Author      string `yaml:"author"`
	} `yaml:"feed"`
}

// AllowedExtensions returns the list of supported audio file extensions (lowercase).
func AllowedExtensions() []string {
	result := make([]string, len(allowedExtensions))
	copy(result, allowedExtensions)
	return result
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		ListenAddr:      defaultListenAddr,
		Source:          SourceAPI,
		APIURL:          defaultAPIURL,
		Limit:           defaultLimit,
		Sort:            models.SortPublishedAt,
		Order:           models.OrderDesc,
		SplitIndex:      defaultSplitIndex,
		Revalidate:      defaultRevalidate,
		Locale:          defaultLocale,
		TimeZone:        defaultTimeZone,
		RefreshDebounce: time.Duration(defaultRefreshDebounceMS) * time.Millisecond,
		RequestTimeout:  defaultRequestTimeout,
		LogLevel:        defaultLogLevel,
		Feed: FeedMetadata{
			Title:       defaultFeedTitle,
			Description: defaultFeedDescription,
			Language:    defaultFeedLanguage,
		},
	}
}

// Load applies defaults, then the YAML file at path (or PODCASTER_CONFIG
// when path is empty), then PODCASTER_* environment variables, and validates
// the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) == "" {
		path = strings.TrimSpace(os.Getenv("PODCASTER_CONFIG"))
	}
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	resolved, err := expandPath(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", resolved, err)
	}

	setString(&c.ListenAddr, fc.ListenAddr)
	setString(&c.Source, fc.Source)
	setString(&c.APIURL, fc.APIURL)
	setString(&c.MediaDir, fc.MediaDir)
	setString(&c.Sort, fc.Sort)
	setString(&c.Order, fc.Order)
	setString(&c.Locale, fc.Locale)
	setString(&c.TimeZone, fc.TimeZone)
	setString(&c.TokenFile, fc.TokenFile)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.Feed.Title, fc.Feed.Title)
	setString(&c.Feed.Description, fc.Feed.Description)
	setString(&c.Feed.Language, fc.Feed.Language)
	setString(&c.Feed.Author, fc.Feed.Author)
	if fc.Limit != nil {
		c.Limit = *fc.Limit
	}
	if fc.SplitIndex != nil {
		c.SplitIndex = *fc.SplitIndex
	}

	durations := []struct {
		key    string
		value  string
		target *time.Duration
	}{
		{"revalidate", fc.Revalidate, &c.Revalidate},
		{"refresh_debounce", fc.RefreshDebounce, &c.RefreshDebounce},
		{"request_timeout", fc.RequestTimeout, &c.RequestTimeout},
	}
	for _, d := range durations {
		if strings.TrimSpace(d.value) == "" {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(d.value))
		if err != nil {
			return fmt.Errorf("config %s: %w", d.key, err)
		}
		*d.target = parsed
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.ListenAddr, os.Getenv("PODCASTER_LISTEN_ADDR"))
	setString(&c.Source, os.Getenv("PODCASTER_SOURCE"))
	setString(&c.APIURL, os.Getenv("PODCASTER_API_URL"))
	setString(&c.MediaDir, os.Getenv("PODCASTER_MEDIA_DIR"))
	setString(&c.Sort, os.Getenv("PODCASTER_SORT"))
	setString(&c.Order, os.Getenv("PODCASTER_ORDER"))
	setString(&c.Locale, os.Getenv("PODCASTER_LOCALE"))
	setString(&c.TimeZone, os.Getenv("PODCASTER_TIME_ZONE"))
	setString(&c.TokenFile, os.Getenv("PODCASTER_TOKEN_FILE"))
	setString(&c.LogLevel, os.Getenv("PODCASTER_LOG_LEVEL"))
	setString(&c.Feed.Title, os.Getenv("PODCASTER_FEED_TITLE"))
	setString(&c.Feed.Description, os.Getenv("PODCASTER_FEED_DESCRIPTION"))
	setString(&c.Feed.Language, os.Getenv("PODCASTER_FEED_LANGUAGE"))
	setString(&c.Feed.Author, os.Getenv("PODCASTER_FEED_AUTHOR"))

	if err := envInt("PODCASTER_LIMIT", &c.Limit); err != nil {
		return err
	}
	if err := envInt("PODCASTER_SPLIT_INDEX", &c.SplitIndex); err != nil {
		return err
	}
	if err := envDuration("PODCASTER_REVALIDATE", &c.Revalidate); err != nil {
		return err
	}
	if err := envDuration("PODCASTER_REQUEST_TIMEOUT", &c.RequestTimeout); err != nil {
		return err
	}
	c.RefreshDebounce = refreshDebounce(c.RefreshDebounce)
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if err := ValidateListenAddr(c.ListenAddr); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.ListenAddr, err)
	}

	switch c.Source {
	case SourceAPI:
		u, err := url.Parse(c.APIURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid api url %q", c.APIURL)
		}
	case SourceLibrary:
		if strings.TrimSpace(c.MediaDir) == "" {
			return errors.New("media_dir is required for the library source")
		}
	default:
		return fmt.Errorf("unknown source %q (want %s or %s)", c.Source, SourceAPI, SourceLibrary)
	}

	if c.Limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", c.Limit)
	}
	if c.SplitIndex < 0 {
		return fmt.Errorf("split index must not be negative, got %d", c.SplitIndex)
	}
	if c.Order != models.OrderAsc && c.Order != models.OrderDesc {
		return fmt.Errorf("order must be %s or %s, got %q", models.OrderAsc, models.OrderDesc, c.Order)
	}
	if c.Revalidate <= 0 {
		return fmt.Errorf("revalidate interval must be positive, got %s", c.Revalidate)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Query returns the listing parameters sent to the episode source.
func (c Config) Query() models.EpisodeQuery {
	return models.EpisodeQuery{Limit: c.Limit, Sort: c.Sort, Order: c.Order}
}

// Location loads the time zone publish dates are rendered in.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// ResolveMediaRoot returns the absolute media directory, creating it when it
// does not yet exist.
func (c Config) ResolveMediaRoot() (string, error) {
	abs, err := expandPath(c.MediaDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

// ResolveTokenFile returns the absolute path to the revalidation token file when configured.
// The file is created if it does not already exist. When no file is configured the
// second return value will be false.
func (c Config) ResolveTokenFile() (string, bool, error) {
	path := strings.TrimSpace(c.TokenFile)
	if path == "" {
		return "", false, nil
	}

	abs, err := expandPath(path)
	if err != nil {
		return "", false, err
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", false, err
	}

	if _, err := os.Stat(abs); err != nil {
		if !os.IsNotExist(err) {
			return "", false, err
		}
		file, err := os.OpenFile(abs, os.O_CREATE|os.O_RDWR, 0o600)
		if err != nil {
			return "", false, err
		}
		if err := file.Close(); err != nil {
			return "", false, err
		}
	}

	return abs, true, nil
}

// ValidateListenAddr checks that addr is a host:port pair with a numeric port.
func ValidateListenAddr(addr string) error {
	_, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid port %q", port)
	}
	return nil
}

// refreshDebounce reads PODCASTER_REFRESH_DEBOUNCE_MS, keeping current on a
// missing or malformed value.
func refreshDebounce(current time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv("PODCASTER_REFRESH_DEBOUNCE_MS"))
	if value == "" {
		return current
	}

	ms, err := strconv.Atoi(value)
	if err != nil || ms < 0 {
		return current
	}
	return time.Duration(ms) * time.Millisecond
}

func envInt(key string, target *int) error {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*target = n
	return nil
}

func envDuration(key string, target *time.Duration) error {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*target = d
	return nil
}

func setString(target *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*target = value
	}
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}

	return filepath.Abs(path)
}
