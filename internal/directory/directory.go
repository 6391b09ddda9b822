// Package directory maintains the set of monitored borrower addresses.
package directory

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Source supplies borrower addresses, typically the directory HTTP API.
type Source interface {
	FetchBorrowers(ctx context.Context) ([]string, error)
}

// Directory is a set of lower-cased hex addresses. It is safe for
// concurrent use.
type Directory struct {
	source   Source
	fallback []string
	logger   *slog.Logger

	mu    sync.RWMutex
	addrs map[string]struct{}
}

// New creates an empty Directory. source may be nil, in which case Refresh
// only applies the fallback list.
func New(source Source, fallback []string, logger *slog.Logger) *Directory {
	fb := make([]string, 0, len(fallback))
	for _, a := range fallback {
		if n, ok := Normalize(a); ok {
			fb = append(fb, n)
		}
	}
	return &Directory{
		source:   source,
		fallback: fb,
		logger:   logger.With(slog.String("component", "directory")),
		addrs:    make(map[string]struct{}),
	}
}

// Normalize validates a hex address and returns it lower-cased.
func Normalize(addr string) (string, bool) {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return "", false
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), true
}

// Add inserts addr. It reports whether addr was valid and newly added.
func (d *Directory) Add(addr string) bool {
	n, ok := Normalize(addr)
	if !ok {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.addrs[n]; exists {
		return false
	}
	d.addrs[n] = struct{}{}
	return true
}

// Remove deletes addr. It reports whether addr was present.
func (d *Directory) Remove(addr string) bool {
	n, ok := Normalize(addr)
	if !ok {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.addrs[n]; !exists {
		return false
	}
	delete(d.addrs, n)
	return true
}

// Contains reports whether addr is in the set.
func (d *Directory) Contains(addr string) bool {
	n, ok := Normalize(addr)
	if !ok {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, exists := d.addrs[n]
	return exists
}

// List returns the addresses in sorted order.
func (d *Directory) List() []string {
	d.mu.RLock()
	out := make([]string, 0, len(d.addrs))
	for a := range d.addrs {
		out = append(out, a)
	}
	d.mu.RUnlock()
	slices.Sort(out)
	return out
}

// Len returns the number of addresses.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.addrs)
}

// Refresh merges the source's addresses into the set. On failure the set is
// left as is, or seeded with the fallback list if it is empty. It returns
// the number of newly added addresses.
func (d *Directory) Refresh(ctx context.Context) int {
	if d.source == nil {
		return d.seedIfEmpty()
	}

	fetched, err := d.source.FetchBorrowers(ctx)
	if err != nil {
		d.logger.Warn("directory refresh failed",
			slog.String("error", err.Error()),
			slog.Int("known", d.Len()),
		)
		return d.seedIfEmpty()
	}

	added, skipped := 0, 0
	for _, a := range fetched {
		if _, ok := Normalize(a); !ok {
			skipped++
			continue
		}
		if d.Add(a) {
			added++
		}
	}
	d.logger.Debug("directory refreshed",
		slog.Int("fetched", len(fetched)),
		slog.Int("added", added),
		slog.Int("skipped", skipped),
		slog.Int("total", d.Len()),
	)
	return added
}

func (d *Directory) seedIfEmpty() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.addrs) > 0 {
		return 0
	}
	for _, a := range d.fallback {
		d.addrs[a] = struct{}{}
	}
	if len(d.fallback) > 0 {
		d.logger.Info("directory seeded from fallback list", slog.Int("count", len(d.fallback)))
	}
	return len(d.fallback)
}
