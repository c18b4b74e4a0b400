package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"podcaster/internal/feed"
	"podcaster/internal/models"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Fetch the episodes once and print the latest and remaining lists",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())

			builder, err := newBuilder(cfg)
			if err != nil {
				return err
			}

			source, err := openSource(cfg, logger)
			if err != nil {
				return err
			}
			defer source.Close()

			raw, err := source.FetchEpisodes(cmd.Context(), cfg.Query())
			if err != nil {
				return fmt.Errorf("fetch episodes: %w", err)
			}
			latest, rest, err := builder.Build(raw, cfg.SplitIndex)
			if err != nil {
				return fmt.Errorf("build feed: %w", err)
			}
			f := feed.Feed{Latest: latest, All: rest, BuiltAt: time.Now().UTC()}

			if jsonOutput {
				return writeJSON(cmd, f)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Latest episodes")
			fmt.Fprintln(out, episodeTable(f, feed.SectionLatest, f.Latest))
			fmt.Fprintln(out)
			fmt.Fprintln(out, "All episodes")
			fmt.Fprintln(out, episodeTable(f, feed.SectionAll, f.All))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the feed as JSON")
	return cmd
}

func episodeTable(f feed.Feed, section feed.Section, episodes []models.Episode) string {
	if len(episodes) == 0 {
		return "(none)"
	}
	rows := make([][]string, 0, len(episodes))
	for i, ep := range episodes {
		rows = append(rows, []string{
			strconv.Itoa(f.GlobalIndex(section, i)),
			ep.Title,
			ep.Members,
			ep.PublishedAt,
			ep.DurationAsString,
		})
	}
	return renderTable(
		[]string{"#", "Title", "Members", "Published", "Duration"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight},
	)
}
