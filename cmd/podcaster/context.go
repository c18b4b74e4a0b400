package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"podcaster/internal/api"
	"podcaster/internal/config"
	"podcaster/internal/feed"
	"podcaster/internal/library"
	"podcaster/internal/logging"
	"podcaster/internal/revalidate"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config, c.configErr = config.Load(path)
	})
	return c.config, c.configErr
}

func newLogger(cfg config.Config, out io.Writer) zerolog.Logger {
	return logging.New(logging.Config{Level: cfg.LogLevel, Output: out})
}

func newBuilder(cfg config.Config) (*feed.Builder, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return feed.NewBuilder(cfg.Locale, loc)
}

// episodeSource is the configured upstream plus what it needs released.
type episodeSource struct {
	revalidate.Source
	mediaRoot string
	library   *library.Library
}

func openSource(cfg config.Config, logger zerolog.Logger) (*episodeSource, error) {
	switch cfg.Source {
	case config.SourceAPI:
		client, err := api.New(cfg.APIURL, &http.Client{Timeout: cfg.RequestTimeout}, logging.Component(logger, "api"))
		if err != nil {
			return nil, err
		}
		return &episodeSource{Source: client}, nil
	case config.SourceLibrary:
		root, err := cfg.ResolveMediaRoot()
		if err != nil {
			return nil, fmt.Errorf("resolve media root: %w", err)
		}
		lib, err := library.NewLibrary(root, config.AllowedExtensions(), cfg.RefreshDebounce, logging.Component(logger, "library"))
		if err != nil {
			return nil, fmt.Errorf("initialise library: %w", err)
		}
		return &episodeSource{Source: lib, mediaRoot: root, library: lib}, nil
	default:
		return nil, errors.New("unknown episode source " + cfg.Source)
	}
}

func (s *episodeSource) Close() error {
	if s.library == nil {
		return nil
	}
	return s.library.Close()
}
