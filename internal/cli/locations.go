package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/hardcoding/fbxgrab/internal/fs"
	"github.com/hardcoding/fbxgrab/internal/location"
)

func newLocationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locations",
		Short: "Manage learned download locations",
	}

	cmd.AddCommand(newLocationsListCmd())
	cmd.AddCommand(newLocationsForgetCmd())
	cmd.AddCommand(newLocationsSetDefaultCmd())

	return cmd
}

func newLocationsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the per-domain locations learned so far",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			records := a.resolver.All()
			if len(records) == 0 {
				fmt.Println("No learned locations.")
				return nil
			}

			domains := make([]string, 0, len(records))
			for domain := range records {
				domains = append(domains, domain)
			}
			sort.Strings(domains)

			for _, domain := range domains {
				rec := records[domain]
				label, _ := fs.DecodePath(rec.Path)
				if label == "" {
					label = "/"
				}
				always := ""
				if rec.Always {
					always = " (always)"
				}
				fmt.Printf("%-30s  %s%s\n", domain, label, always)
			}
			return nil
		},
	}
}

func newLocationsForgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget <domain>",
		Short: "Forget the learned location for a domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			return a.resolver.Forget(args[0])
		},
	}
}

func newLocationsSetDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-default",
		Short: "Pick the default download location with the folder browser",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if err := a.sessions.Connect(ctx); err != nil {
				return err
			}

			start := location.Record{Path: a.cfg.Locations.DefaultLocation, Always: true}
			rec, err := pickLocation(ctx, a, start)
			if err != nil {
				return err
			}

			a.cfg.Locations.DefaultLocation = rec.Path
			if err := a.saveConfig(); err != nil {
				return err
			}

			label, _ := fs.DecodePath(rec.Path)
			if label == "" {
				label = "/"
			}
			fmt.Printf("Default location set to %s\n", label)
			return nil
		},
	}
}
