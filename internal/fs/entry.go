// Package fs is the thin protocol binding for the device's remote file
// system: directory listing, directory creation, and the recursive
// ancestor walk used to pre-expand a folder browser.
package fs

import (
	"encoding/base64"
	"fmt"
)

// Entry is one item of a remote directory listing. Paths are opaque
// encoded identifiers; the only structural inspection allowed is the
// equality comparison detecting the file system root.
//
// Non-empty listings always start with two synthetic entries: "." (the
// directory itself) at index 0 and ".." (its parent) at index 1. The root
// is its own parent, so entries[0].Path == entries[1].Path there.
type Entry struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Hidden bool   `json:"hidden"`
}

// IsFolder reports whether the entry is a directory.
func (e Entry) IsFolder() bool {
	return e.Type == "dir"
}

// DecodePath turns an encoded remote path into its human-readable label.
// One-way: labels are for display only and never re-encoded. The empty
// path is the root and decodes to the empty label.
func DecodePath(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode path: %w", err)
	}
	return string(raw), nil
}
