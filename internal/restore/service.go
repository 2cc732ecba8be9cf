// Package restore drives the restore state machine: resolve a session,
// validate it, stage it if remote, and dispatch it to the external
// executor, with guaranteed cleanup on every exit path.
package restore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/rlanders/dr-restore-utility/internal/catalog"
	"github.com/rlanders/dr-restore-utility/internal/executor"
	"github.com/rlanders/dr-restore-utility/internal/lock"
	"github.com/rlanders/dr-restore-utility/internal/notify"
	"github.com/rlanders/dr-restore-utility/internal/resolve"
	"github.com/rlanders/dr-restore-utility/internal/session"
	"github.com/rlanders/dr-restore-utility/internal/stage"
	"github.com/rlanders/dr-restore-utility/internal/store"
	"github.com/rlanders/dr-restore-utility/internal/util"
)

// State names one step of a restore run. Completed and Failed are
// terminal.
type State string

const (
	StateReceived    State = "received"
	StateNormalizing State = "normalizing"
	StateResolving   State = "resolving"
	StateValidating  State = "validating"
	StateStaging     State = "staging"
	StateDispatching State = "dispatching"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// Request is one user restore intent. TargetLocation describes where the
// source session currently lives, which drives whether staging is needed.
type Request struct {
	SessionRef     string
	Mode           executor.Mode
	TargetLocation resolve.Preference
	RestorePath    string
	DryRun         bool
}

// Result reports a completed run.
type Result struct {
	Status    State
	SessionID session.ID
	Source    store.Source
	Elapsed   time.Duration
	Warnings  []stage.FileWarning
}

// Window restricts when restores may run. Zero value means no
// restriction.
type Window struct {
	Start    string
	End      string
	Timezone string
}

type Service struct {
	Resolver *resolve.Resolver
	Catalog  *catalog.Catalog
	Stager   *stage.Stager
	Executor executor.Executor
	LockDir  string
	Window   Window
	Log      zerolog.Logger
	Notifier notify.Notifier
}

// Restore runs the full state machine for one request. A staging handle,
// once created, is released on every exit path, including executor
// failure and cancellation.
func (s *Service) Restore(ctx context.Context, req Request) (result *Result, err error) {
	start := time.Now()
	state := StateReceived
	var id session.ID
	var source store.Source

	defer func() {
		s.notifyTerminal("restore", id, req.Mode, source, start, err)
	}()

	ok, werr := util.InWindow(time.Now(), s.Window.Start, s.Window.End, s.Window.Timezone)
	if werr != nil {
		return nil, werr
	}
	if !ok {
		return nil, fmt.Errorf("current time is outside the configured restore window")
	}

	state = StateNormalizing
	ref, nerr := session.Normalize(req.SessionRef)
	if nerr != nil {
		return nil, failAt(state, nerr)
	}
	s.Log.Debug().Str("ref", ref.String()).Msg("session reference normalized")

	state = StateResolving
	pref := req.TargetLocation
	if pref == "" {
		pref = resolve.PreferAuto
	}
	resolved, rerr := s.Resolver.Resolve(ctx, ref, pref)
	if rerr != nil {
		return nil, failAt(state, rerr)
	}
	id, source = resolved.ID, resolved.Source
	s.Log.Info().Str("session", string(id)).Str("source", string(source)).Str("path", resolved.Path).Msg("session resolved")

	// One stage/restore per session ID at a time; held through dispatch.
	guard, lerr := lock.Acquire(s.LockDir, resolved.ID)
	if lerr != nil {
		return nil, failAt(state, lerr)
	}
	defer guard.Release()

	state = StateValidating
	var manifest *session.Manifest
	if resolved.Source == store.SourceLocal {
		m, merr := session.CheckManifestDir(resolved.Path)
		if merr != nil {
			return nil, failAt(state, merr)
		}
		manifest = m
	} else {
		// Cheap existence probe before committing to a full download; the
		// structural check runs against the staged copy.
		key := s.Resolver.RemoteManifestKey(resolved.ID)
		exists, perr := s.Resolver.Remote.Exists(ctx, key)
		if perr != nil {
			return nil, failWith(state, KindTransient, perr)
		}
		if !exists {
			return nil, failAt(state, &session.ManifestError{Kind: session.ManifestMissing, Path: key})
		}
	}

	if req.DryRun {
		s.Log.Info().Str("session", string(id)).Msg("dry run: session resolves and validates")
		return &Result{Status: StateCompleted, SessionID: id, Source: source, Elapsed: time.Since(start)}, nil
	}

	localPath := resolved.Path
	var warnings []stage.FileWarning
	if resolved.Source == store.SourceRemote {
		state = StateStaging
		handle, serr := s.Stager.Stage(ctx, resolved)
		if serr != nil {
			return nil, failAt(state, serr)
		}
		defer handle.Release()
		localPath = handle.Dir
		manifest = handle.Manifest
		warnings = handle.Warnings
	}

	// Cancellation is honored up to here; past this point the executor's
	// own contract governs.
	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}

	state = StateDispatching
	files := SelectFiles(req.Mode, manifest)
	s.Log.Info().Str("session", string(id)).Str("mode", string(req.Mode)).
		Int("files", len(files)).Str("restore_path", req.RestorePath).Msg("dispatching restore")
	if xerr := s.Executor.Apply(ctx, localPath, req.Mode, req.RestorePath, files); xerr != nil {
		return nil, failWith(state, KindExecutorFailure, xerr)
	}

	return &Result{
		Status:    StateCompleted,
		SessionID: id,
		Source:    source,
		Elapsed:   time.Since(start),
		Warnings:  warnings,
	}, nil
}

// ValidationReport is the outcome of a standalone session validation.
type ValidationReport struct {
	OK         bool
	SessionID  session.ID
	SourceUsed store.Source
	Reason     string
}

// ValidateSession resolves a session and runs the structural manifest
// check against it. Remote sessions are checked in place by fetching only
// the manifest object.
func (s *Service) ValidateSession(ctx context.Context, rawRef string, pref resolve.Preference) (ValidationReport, error) {
	ref, err := session.Normalize(rawRef)
	if err != nil {
		return ValidationReport{}, failAt(StateNormalizing, err)
	}
	if pref == "" {
		pref = resolve.PreferAuto
	}
	resolved, err := s.Resolver.Resolve(ctx, ref, pref)
	if err != nil {
		return ValidationReport{}, failAt(StateResolving, err)
	}

	report := ValidationReport{SessionID: resolved.ID, SourceUsed: resolved.Source}
	var checkErr error
	if resolved.Source == store.SourceLocal {
		_, checkErr = session.CheckManifestDir(resolved.Path)
	} else {
		checkErr = s.checkRemoteManifest(ctx, resolved.ID)
	}
	if checkErr != nil {
		report.Reason = checkErr.Error()
		return report, nil
	}
	report.OK = true
	return report, nil
}

func (s *Service) checkRemoteManifest(ctx context.Context, id session.ID) error {
	key := s.Resolver.RemoteManifestKey(id)
	body, err := s.Resolver.Remote.Get(ctx, key)
	if err != nil {
		return &session.ManifestError{Kind: session.ManifestMissing, Path: key, Err: err}
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return &session.ManifestError{Kind: session.ManifestMissing, Path: key, Err: err}
	}
	_, err = session.CheckManifestBytes(data, key)
	return err
}

// ListBackups is the catalog pass-through of the exposed surface.
func (s *Service) ListBackups(ctx context.Context, filter catalog.SourceFilter, limit int) (catalog.Listing, error) {
	return s.Catalog.List(ctx, filter, limit)
}

func (s *Service) notifyTerminal(kind string, id session.ID, mode executor.Mode, source store.Source, start time.Time, opErr error) {
	if s.Notifier == nil {
		return
	}
	status := "success"
	if opErr != nil {
		status = "failed"
	}
	event := notify.Event{
		Type:      kind,
		Message:   fmt.Sprintf("%s %s", kind, id),
		Status:    status,
		SessionID: string(id),
		Mode:      string(mode),
		Source:    string(source),
		StartedAt: start,
		EndedAt:   time.Now(),
		Duration:  time.Since(start).String(),
	}
	if opErr != nil {
		event.Error = opErr.Error()
	}
	_ = s.Notifier.Notify(context.Background(), event)
}
