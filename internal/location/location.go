// Package location decides which remote folder a download goes to, per
// origin domain, without always prompting: ask every time, learn per
// domain, or use a fixed default.
package location

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/hardcoding/fbxgrab/internal/config"
	"github.com/hardcoding/fbxgrab/internal/store"
)

// Record is a resolved remote folder plus whether it should be reused
// without asking.
type Record struct {
	Path   string `json:"path"`
	Always bool   `json:"always"`
}

// history is the persisted document: one record per origin domain and a
// single "last used" record outside the map.
type history struct {
	Domains map[string]Record `json:"domains"`
	Last    *Record           `json:"last,omitempty"`
}

// Resolver applies the location strategy to per-domain history.
type Resolver struct {
	mu       sync.Mutex
	filePath string
	prefs    func() config.LocationsConfig
	hist     history
}

// NewResolver creates a resolver persisting history at filePath. prefs is
// read at resolution time so a strategy change applies without restart.
func NewResolver(filePath string, prefs func() config.LocationsConfig) *Resolver {
	return &Resolver{
		filePath: filePath,
		prefs:    prefs,
		hist:     history{Domains: make(map[string]Record)},
	}
}

// Load reads the persisted history. A missing file starts empty.
func (r *Resolver) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var h history
	found, err := store.LoadJSON(r.filePath, &h)
	if err != nil {
		return err
	}
	if found {
		if h.Domains == nil {
			h.Domains = make(map[string]Record)
		}
		r.hist = h
	}
	return nil
}

// Resolve returns the record to use for a download originating at domain.
//
//   - useDefault: the configured default location, always applied.
//   - alwaysAsk: the last used path as a starting point, never applied
//     without asking.
//   - learn: the domain's saved record verbatim, else the alwaysAsk
//     fallback.
//
// The caller prompts the user whenever Always is false.
func (r *Resolver) Resolve(domain string) Record {
	prefs := r.prefs()

	switch prefs.Strategy {
	case config.StrategyUseDefault:
		return Record{Path: prefs.DefaultLocation, Always: true}

	case config.StrategyLearn:
		r.mu.Lock()
		rec, ok := r.hist.Domains[domain]
		r.mu.Unlock()
		if ok {
			return rec
		}
	}

	return Record{Path: r.lastPath(prefs), Always: false}
}

// Record saves the user's eventual choice for domain. Under learn the
// per-domain record is upserted; the "last used" record is updated under
// every strategy so fallbacks improve over time.
func (r *Resolver) Record(domain string, rec Record) error {
	prefs := r.prefs()

	r.mu.Lock()
	defer r.mu.Unlock()

	if prefs.Strategy == config.StrategyLearn {
		r.hist.Domains[domain] = rec
	}
	r.hist.Last = &Record{Path: rec.Path, Always: rec.Always}
	return store.SaveJSON(r.filePath, &r.hist)
}

// SetLastPath updates only the "last used" path, keeping history intact.
// Called when a download is dispatched to a known location.
func (r *Resolver) SetLastPath(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.hist.Last = &Record{Path: path}
	return store.SaveJSON(r.filePath, &r.hist)
}

// Forget removes the saved record for domain.
func (r *Resolver) Forget(domain string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.hist.Domains, domain)
	return store.SaveJSON(r.filePath, &r.hist)
}

// All returns a copy of the per-domain records for display.
func (r *Resolver) All() map[string]Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]Record, len(r.hist.Domains))
	for domain, rec := range r.hist.Domains {
		out[domain] = rec
	}
	return out
}

func (r *Resolver) lastPath(prefs config.LocationsConfig) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hist.Last != nil {
		return r.hist.Last.Path
	}
	return prefs.DefaultLocation
}

// Domain extracts the origin domain of a download URL. Magnet links have
// no host and map to the scheme itself, giving them their own history
// slot.
func Domain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse url: %w", err)
	}
	if u.Host == "" {
		if u.Scheme != "" {
			return u.Scheme, nil
		}
		return "", fmt.Errorf("no host in url %q", rawURL)
	}
	return u.Hostname(), nil
}
