package fs

import "context"

// Lister lists a remote directory. Satisfied by *Client; tests inject
// fakes backed by canned listings.
type Lister interface {
	List(ctx context.Context, path string, onlyFolders bool) ([]Entry, error)
}

// Level is one directory of an ancestor chain: the encoded path and its
// full listing.
type Level struct {
	Path    string
	Entries []Entry
}

// Walk materializes the ancestor chain of path, root first. Each step
// lists the current path, then follows entries[1] (the parent) until the
// root, where the directory is its own parent. The chain is discovered
// one level at a time, so the fetches are strictly sequential.
//
// A listing with fewer than two entries has no parent to follow and ends
// the walk early.
func Walk(ctx context.Context, lister Lister, path string) ([]Level, error) {
	var stack []Level // leaf to root, reversed before returning

	for {
		entries, err := lister.List(ctx, path, true)
		if err != nil {
			return nil, err
		}
		stack = append(stack, Level{Path: path, Entries: entries})

		if len(entries) < 2 {
			break
		}
		if entries[0].Path == entries[1].Path {
			break // root reached: self is its own parent
		}
		path = entries[1].Path
	}

	for i, j := 0, len(stack)-1; i < j; i, j = i+1, j-1 {
		stack[i], stack[j] = stack[j], stack[i]
	}
	return stack, nil
}

// Cache is a set of listings keyed by encoded path, as accumulated by a
// folder browser while the user expands directories.
type Cache map[string][]Entry

// Add stores a listing.
func (c Cache) Add(path string, entries []Entry) {
	c[path] = entries
}

// AddLevels stores every listing of a walked chain.
func (c Cache) AddLevels(levels []Level) {
	for _, level := range levels {
		c[level.Path] = level.Entries
	}
}

// Depth counts ancestor hops from path to the root using cached
// listings only. Used for UI indentation; for a chain produced by Walk it
// equals len(chain)-1 for the leaf. Unknown paths and malformed listings
// count as depth 0.
func (c Cache) Depth(path string) int {
	entries, ok := c[path]
	if !ok || len(entries) < 2 || entries[1].Name != ".." {
		return 0
	}
	if entries[0].Path == entries[1].Path {
		return 0
	}
	return 1 + c.Depth(entries[1].Path)
}
