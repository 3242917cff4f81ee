package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hardcoding/fbxgrab/internal/fs"
)

func newLsCmd() *cobra.Command {
	var (
		onlyFolders bool
		showHidden  bool
	)

	cmd := &cobra.Command{
		Use:   "ls [encoded-path]",
		Short: "List a remote directory (empty path is the root)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if err := a.sessions.Connect(ctx); err != nil {
				return err
			}

			entries, err := a.fsClient.List(ctx, path, onlyFolders)
			if err != nil {
				return err
			}

			for _, entry := range entries {
				if entry.Hidden && !showHidden {
					continue
				}
				kind := "file"
				if entry.IsFolder() {
					kind = "dir"
				}
				fmt.Printf("%-4s  %-30s  %s\n", kind, entry.Name, entry.Path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&onlyFolders, "folders", false, "Only list folders")
	cmd.Flags().BoolVar(&showHidden, "all", false, "Include hidden entries")

	return cmd
}

func newTreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree <encoded-path>",
		Short: "Print the ancestor chain of a remote path, root first",
		Args:  cobra.ExactArgs(1),
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

			levels, err := fs.Walk(ctx, a.fsClient, args[0])
			if err != nil {
				return err
			}

			cache := fs.Cache{}
			cache.AddLevels(levels)

			for _, level := range levels {
				label, _ := fs.DecodePath(level.Path)
				if label == "" {
					label = "/"
				}
				fmt.Printf("%s%s\n", strings.Repeat("  ", cache.Depth(level.Path)), label)
			}
			return nil
		},
	}
}

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <encoded-parent> <name>",
		Short: "Create a directory on the device",
		Args:  cobra.ExactArgs(2),
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

			return a.fsClient.MakeDirectory(ctx, args[0], args[1])
		},
	}
}
