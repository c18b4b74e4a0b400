package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"podcaster/internal/auth"
	"podcaster/internal/logging"
	"podcaster/internal/revalidate"
	"podcaster/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the episode listing over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.OutOrStdout())

			builder, err := newBuilder(cfg)
			if err != nil {
				return err
			}

			source, err := openSource(cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := source.Close(); err != nil {
					logger.Warn().Err(err).Msg("error closing episode source")
				}
			}()

			cache := revalidate.New(source, builder, revalidate.Options{
				Query:      cfg.Query(),
				SplitIndex: cfg.SplitIndex,
				Interval:   cfg.Revalidate,
			}, logging.Component(logger, "revalidate"))
			defer cache.Close()

			if source.library != nil {
				source.library.SetOnRefresh(cache.MarkStale)
			}

			opts := server.Options{
				Feed:      server.FeedMetadata(cfg.Feed),
				MediaRoot: source.mediaRoot,
				Logger:    logging.Component(logger, "http"),
			}

			tokenFile, tokensEnabled, err := cfg.ResolveTokenFile()
			if err != nil {
				return err
			}
			if tokensEnabled {
				tokenStore, err := auth.NewTokenStore(tokenFile, cfg.RefreshDebounce, logging.Component(logger, "auth"))
				if err != nil {
					return err
				}
				defer func() {
					if err := tokenStore.Close(); err != nil {
						logger.Warn().Err(err).Msg("error closing token store")
					}
				}()
				opts.Tokens = tokenStore
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if _, err := cache.Current(runCtx); err != nil {
				logger.Warn().Err(err).Msg("initial feed build failed; retrying on first request")
			}

			httpServer := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           server.New(cache, opts),
				ReadHeaderTimeout: 5 * time.Second,
				WriteTimeout:      30 * time.Second,
				IdleTimeout:       120 * time.Second,
			}

			go func() {
				<-runCtx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Warn().Err(err).Msg("graceful shutdown error")
				}
			}()

			logger.Info().
				Str("addr", cfg.ListenAddr).
				Str("source", cfg.Source).
				Dur("revalidate", cfg.Revalidate).
				Bool("revalidate_endpoint", tokensEnabled).
				Msg("listening")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logger.Info().Msg("shutdown complete")
			return nil
		},
	}
}
