package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hardcoding/fbxgrab/internal/fs"
	"github.com/hardcoding/fbxgrab/internal/location"
)

// pickLocation runs the interactive folder picker, the terminal stand-in
// for the original folder browser panel. It pre-expands the ancestor
// chain of the starting location so the user sees where they are, then
// lets them navigate, create folders and pick a destination.
func pickLocation(ctx context.Context, a *app, start location.Record) (location.Record, error) {
	levels, err := fs.Walk(ctx, a.fsClient, start.Path)
	if err != nil {
		return location.Record{}, err
	}

	cache := fs.Cache{}
	cache.AddLevels(levels)

	current := start.Path
	if len(levels) > 0 {
		current = levels[len(levels)-1].Path
	}
	always := start.Always

	printBreadcrumb(levels, cache)

	reader := bufio.NewReader(os.Stdin)
	for {
		entries, err := a.fsClient.List(ctx, current, true)
		if err != nil {
			return location.Record{}, err
		}
		cache.Add(current, entries)

		label, _ := fs.DecodePath(current)
		if label == "" {
			label = "/"
		}
		fmt.Printf("\nCurrent folder: %s (always: %v)\n", label, always)

		folders := visibleFolders(entries)
		for i, entry := range folders {
			fmt.Printf("  %2d. %s\n", i+1, entry.Name)
		}
		fmt.Print("Choose a folder number, or [u]p, [m]kdir <name>, [a]lways, [s]elect, [q]uit: ")

		line, err := reader.ReadString('\n')
		if err != nil {
			return location.Record{}, err
		}
		line = strings.TrimSpace(line)

		switch {
		case line == "q":
			return location.Record{}, fmt.Errorf("selection cancelled")

		case line == "s":
			return location.Record{Path: current, Always: always}, nil

		case line == "a":
			always = !always

		case line == "u":
			if len(entries) >= 2 && entries[0].Path != entries[1].Path {
				current = entries[1].Path
			}

		case strings.HasPrefix(line, "m "):
			name := strings.TrimSpace(strings.TrimPrefix(line, "m "))
			if name == "" {
				fmt.Println("Folder name required.")
				continue
			}
			if err := a.fsClient.MakeDirectory(ctx, current, name); err != nil {
				fmt.Printf("Could not create folder: %v\n", err)
			}

		default:
			n, err := strconv.Atoi(line)
			if err != nil || n < 1 || n > len(folders) {
				fmt.Println("Invalid choice, please try again.")
				continue
			}
			current = folders[n-1].Path
		}
	}
}

// visibleFolders filters a listing down to what the picker shows: real
// folders, no synthetic "."/".." entries, no hidden ones.
func visibleFolders(entries []fs.Entry) []fs.Entry {
	var out []fs.Entry
	for _, entry := range entries {
		if entry.Name == "." || entry.Name == ".." || entry.Hidden || !entry.IsFolder() {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// printBreadcrumb renders the walked ancestor chain root first, indented
// by depth, so the picker opens fully expanded like the original panel.
func printBreadcrumb(levels []fs.Level, cache fs.Cache) {
	for _, level := range levels {
		label, _ := fs.DecodePath(level.Path)
		if label == "" {
			label = "/"
		}
		depth := cache.Depth(level.Path)
		fmt.Printf("%s%s\n", strings.Repeat("  ", depth), label)
	}
}
