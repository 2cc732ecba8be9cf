// Package resolve locates backup sessions across the configured local
// roots and the remote object store, and exposes a unified lookup.
package resolve

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rlanders/dr-restore-utility/internal/session"
	"github.com/rlanders/dr-restore-utility/internal/store"
)

// Preference selects which source(s) a lookup consults.
type Preference string

const (
	PreferLocal  Preference = "local"
	PreferRemote Preference = "remote"
	PreferAuto   Preference = "auto"
)

func ParsePreference(raw string) (Preference, error) {
	switch strings.ToLower(raw) {
	case "", string(PreferAuto):
		return PreferAuto, nil
	case string(PreferLocal):
		return PreferLocal, nil
	case string(PreferRemote):
		return PreferRemote, nil
	default:
		return "", fmt.Errorf("unknown source preference: %s", raw)
	}
}

// ResolvedSession is a session pinned to the source it was found on.
// Path is a local directory for local sessions and a key prefix for
// remote ones.
type ResolvedSession struct {
	ID     session.ID
	Source store.Source
	Path   string
}

// NotFoundError carries everything searched so the caller can produce an
// actionable message. Transient per-source failures during resolution are
// retained here instead of being surfaced as hard errors.
type NotFoundError struct {
	Ref            session.Ref
	SearchedRoots  []string
	SearchedPrefix string
	LocalErr       error
	RemoteErr      error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("session %q not found (roots: %v, remote prefix: %q)", e.Ref, e.SearchedRoots, e.SearchedPrefix)
}

type Resolver struct {
	Local  *store.LocalRoots
	Remote store.Remote // nil when no remote source is configured
	Prefix string
	Log    zerolog.Logger
}

func New(local *store.LocalRoots, remote store.Remote, prefix string, log zerolog.Logger) *Resolver {
	return &Resolver{Local: local, Remote: remote, Prefix: prefix, Log: log}
}

// RemoteSessionPrefix returns the key prefix holding a remote session's
// files.
func (r *Resolver) RemoteSessionPrefix(id session.ID) string {
	return path.Join(r.Prefix, string(id))
}

// RemoteManifestKey returns the key of a remote session's manifest.
func (r *Resolver) RemoteManifestKey(id session.ID) string {
	return path.Join(r.Prefix, string(id), session.ManifestName)
}

// Resolve finds the session a ref points at. Auto tries local first:
// the local probe is cheap and skips needless network calls. A transient
// failure of one source counts as a miss on that source only; NotFound is
// returned only once every requested source is exhausted.
func (r *Resolver) Resolve(ctx context.Context, ref session.Ref, pref Preference) (ResolvedSession, error) {
	notFound := &NotFoundError{Ref: ref, SearchedPrefix: r.Prefix}
	if r.Local != nil {
		notFound.SearchedRoots = r.Local.Roots
	}

	if pref == PreferLocal || pref == PreferAuto {
		resolved, err := r.resolveLocal(ctx, ref)
		if err == nil {
			return resolved, nil
		}
		if ctx.Err() != nil {
			return ResolvedSession{}, ctx.Err()
		}
		notFound.LocalErr = err
		r.Log.Debug().Err(err).Str("ref", ref.String()).Msg("local resolution missed")
	}

	if pref == PreferRemote || pref == PreferAuto {
		resolved, err := r.resolveRemote(ctx, ref)
		if err == nil {
			return resolved, nil
		}
		if ctx.Err() != nil {
			return ResolvedSession{}, ctx.Err()
		}
		notFound.RemoteErr = err
		r.Log.Debug().Err(err).Str("ref", ref.String()).Msg("remote resolution missed")
	}

	return ResolvedSession{}, notFound
}

func (r *Resolver) resolveLocal(ctx context.Context, ref session.Ref) (ResolvedSession, error) {
	if r.Local == nil || len(r.Local.Roots) == 0 {
		return ResolvedSession{}, fmt.Errorf("no local roots configured")
	}

	if ref.Exact {
		found, ok, err := r.Local.FindExact(ctx, ref.ID)
		if ok {
			return ResolvedSession{ID: found.ID, Source: store.SourceLocal, Path: found.Dir}, nil
		}
		if err != nil {
			return ResolvedSession{}, err
		}
	}

	// Fallback scan: any session directory whose name contains the needle.
	sessions, scanErr := r.Local.Scan(ctx)
	var candidates []store.LocalSession
	needle := ref.String()
	for _, s := range sessions {
		if strings.Contains(string(s.ID), needle) {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		if scanErr != nil {
			return ResolvedSession{}, scanErr
		}
		return ResolvedSession{}, fmt.Errorf("no matching session under local roots")
	}
	best := mostRecentLocal(candidates)
	return ResolvedSession{ID: best.ID, Source: store.SourceLocal, Path: best.Dir}, nil
}

func (r *Resolver) resolveRemote(ctx context.Context, ref session.Ref) (ResolvedSession, error) {
	if r.Remote == nil {
		return ResolvedSession{}, fmt.Errorf("no remote store configured")
	}

	objects, err := r.Remote.List(ctx, r.Prefix)
	if err != nil {
		return ResolvedSession{}, err
	}

	needle := ref.String()
	ids := map[session.ID]bool{}
	for _, obj := range objects {
		id, ok := SessionIDFromKey(r.Prefix, obj.Key)
		if !ok {
			continue
		}
		if strings.Contains(string(id), needle) {
			ids[id] = true
		}
	}
	if len(ids) == 0 {
		return ResolvedSession{}, fmt.Errorf("no matching session under remote prefix")
	}

	best := mostRecentID(ids)
	return ResolvedSession{ID: best, Source: store.SourceRemote, Path: r.RemoteSessionPrefix(best)}, nil
}

// SessionIDFromKey infers the session a remote object belongs to: the
// first path segment under the configured prefix, when canonical.
func SessionIDFromKey(prefix, key string) (session.ID, bool) {
	rel := strings.TrimPrefix(key, prefix)
	rel = strings.TrimPrefix(rel, "/")
	segment, _, _ := strings.Cut(rel, "/")
	if !session.IsCanonical(segment) {
		return "", false
	}
	return session.ID(segment), true
}

func mostRecentLocal(candidates []store.LocalSession) store.LocalSession {
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ID.Timestamp().After(candidates[j].ID.Timestamp())
	})
	return candidates[0]
}

func mostRecentID(ids map[session.ID]bool) session.ID {
	var all []session.ID
	for id := range ids {
		all = append(all, id)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Timestamp().After(all[j].Timestamp())
	})
	return all[0]
}
