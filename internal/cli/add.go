package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hardcoding/fbxgrab/internal/fs"
	"github.com/hardcoding/fbxgrab/internal/location"
)

func newAddCmd() *cobra.Command {
	var (
		toPath string
		ask    bool
	)

	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Send a download (HTTP URL or magnet link) to the device",
		Long: `Resolves the destination folder for the download's origin domain
according to the location strategy (ask every time, learn per domain, or
use the default), opening the folder picker when the resolved location is
not marked "always". The chosen folder is remembered per domain under the
learn strategy.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := args[0]

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if err := a.sessions.Connect(ctx); err != nil {
				return err
			}

			domain, err := location.Domain(url)
			if err != nil {
				return err
			}

			rec := a.resolver.Resolve(domain)
			if toPath != "" {
				rec = location.Record{Path: toPath, Always: true}
			}

			if !rec.Always || ask {
				rec, err = pickLocation(ctx, a, rec)
				if err != nil {
					return err
				}
				if err := a.resolver.Record(domain, rec); err != nil {
					a.logger.Warn().Err(err).Msg("failed to record location")
				}
			} else if err := a.resolver.SetLastPath(rec.Path); err != nil {
				a.logger.Warn().Err(err).Msg("failed to record last path")
			}

			if err := a.dispatcher.Add(ctx, url, rec.Path); err != nil {
				return err
			}

			label, _ := fs.DecodePath(rec.Path)
			if label == "" {
				label = "/"
			}
			fmt.Printf("Download added to %s\n", label)
			return nil
		},
	}

	cmd.Flags().StringVar(&toPath, "to", "", "Encoded destination path (skips resolution)")
	cmd.Flags().BoolVar(&ask, "ask", false, "Open the folder picker even when a location is remembered")

	return cmd
}
