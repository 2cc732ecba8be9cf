// Package catalog aggregates backup sessions across sources into a
// best-effort merged listing.
package catalog

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rlanders/dr-restore-utility/internal/resolve"
	"github.com/rlanders/dr-restore-utility/internal/session"
	"github.com/rlanders/dr-restore-utility/internal/store"
)

// SourceFilter selects which sources a listing consults.
type SourceFilter string

const (
	FilterLocal  SourceFilter = "local"
	FilterRemote SourceFilter = "remote"
	FilterBoth   SourceFilter = "both"
)

func ParseSourceFilter(raw string) (SourceFilter, error) {
	switch strings.ToLower(raw) {
	case "", string(FilterBoth):
		return FilterBoth, nil
	case string(FilterLocal):
		return FilterLocal, nil
	case string(FilterRemote):
		return FilterRemote, nil
	default:
		return "", fmt.Errorf("unknown source filter: %s", raw)
	}
}

// Summary is one catalog entry. The same session ID may appear twice with
// different sources: replicas are not collapsed, since they may differ in
// integrity even when they share an ID.
type Summary struct {
	ID          session.ID
	Source      store.Source
	Timestamp   time.Time
	Size        int64
	IntegrityOK bool
}

// Listing is a best-effort result. One source failing never hides the
// other's entries; the failure rides along in the per-source error field.
type Listing struct {
	Entries   []Summary
	LocalErr  error
	RemoteErr error
}

type Catalog struct {
	Local  *store.LocalRoots
	Remote store.Remote // nil when no remote source is configured
	Prefix string
	Log    zerolog.Logger
}

func New(local *store.LocalRoots, remote store.Remote, prefix string, log zerolog.Logger) *Catalog {
	return &Catalog{Local: local, Remote: remote, Prefix: prefix, Log: log}
}

// List re-queries the requested source(s) on every call and returns up to
// limit entries, newest first. Ties on timestamp order local before remote
// for determinism. limit <= 0 means no limit.
func (c *Catalog) List(ctx context.Context, filter SourceFilter, limit int) (Listing, error) {
	var listing Listing

	if filter == FilterLocal || filter == FilterBoth {
		entries, err := c.listLocal(ctx)
		if ctx.Err() != nil {
			return Listing{}, ctx.Err()
		}
		listing.Entries = append(listing.Entries, entries...)
		listing.LocalErr = err
		if err != nil {
			c.Log.Warn().Err(err).Msg("local listing incomplete")
		}
	}

	if filter == FilterRemote || filter == FilterBoth {
		entries, err := c.listRemote(ctx)
		if ctx.Err() != nil {
			return Listing{}, ctx.Err()
		}
		listing.Entries = append(listing.Entries, entries...)
		listing.RemoteErr = err
		if err != nil {
			c.Log.Warn().Err(err).Msg("remote listing failed")
		}
	}

	sort.SliceStable(listing.Entries, func(i, j int) bool {
		a, b := listing.Entries[i], listing.Entries[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.Source == store.SourceLocal && b.Source == store.SourceRemote
	})

	if limit > 0 && len(listing.Entries) > limit {
		listing.Entries = listing.Entries[:limit]
	}
	return listing, nil
}

func (c *Catalog) listLocal(ctx context.Context) ([]Summary, error) {
	if c.Local == nil || len(c.Local.Roots) == 0 {
		return nil, nil
	}
	sessions, err := c.Local.Scan(ctx)
	entries := make([]Summary, 0, len(sessions))
	for _, s := range sessions {
		_, checkErr := session.CheckManifestDir(s.Dir)
		entries = append(entries, Summary{
			ID:          s.ID,
			Source:      store.SourceLocal,
			Timestamp:   s.ID.Timestamp(),
			Size:        store.DirSize(s.Dir),
			IntegrityOK: checkErr == nil,
		})
	}
	return entries, err
}

func (c *Catalog) listRemote(ctx context.Context) ([]Summary, error) {
	if c.Remote == nil {
		return nil, nil
	}
	objects, err := c.Remote.List(ctx, c.Prefix)
	if err != nil {
		return nil, err
	}

	type group struct {
		size        int64
		manifestLen int64
		hasManifest bool
	}
	groups := map[session.ID]*group{}
	for _, obj := range objects {
		id, ok := resolve.SessionIDFromKey(c.Prefix, obj.Key)
		if !ok {
			continue
		}
		g := groups[id]
		if g == nil {
			g = &group{}
			groups[id] = g
		}
		g.size += obj.Size
		if obj.Key == path.Join(c.Prefix, string(id), session.ManifestName) {
			g.hasManifest = true
			g.manifestLen = obj.Size
		}
	}

	entries := make([]Summary, 0, len(groups))
	for id, g := range groups {
		entries = append(entries, Summary{
			ID:          id,
			Source:      store.SourceRemote,
			Timestamp:   id.Timestamp(),
			Size:        g.size,
			IntegrityOK: g.hasManifest && g.manifestLen > 0,
		})
	}
	return entries, nil
}
