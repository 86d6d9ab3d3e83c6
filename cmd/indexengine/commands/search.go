package commands

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewSearchCommand creates the search subcommand.
func NewSearchCommand() *cobra.Command {
	var (
		configPath string
		repoID     string
		snapshotID string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search an indexed snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := buildEngine(configPath)
			if err != nil {
				return err
			}

			hits, err := eng.Search(cmd.Context(), repoID, snapshotID, args[0], limit)
			if err != nil {
				return err
			}

			if len(hits) == 0 {
				fmt.Println("no results")

				return nil
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Score", "Source", "Chunk", "File"})

			for _, h := range hits {
				tw.AppendRow(table.Row{fmt.Sprintf("%.3f", h.Score), h.Source, h.ChunkID, h.FilePath})
			}

			tw.Render()

			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&repoID, "repo-id", "", "repository identifier")
	cmd.Flags().StringVar(&snapshotID, "snapshot", "", "snapshot label")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum hits")

	return cmd
}
