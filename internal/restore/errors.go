package restore

import (
	"errors"
	"fmt"

	"github.com/rlanders/dr-restore-utility/internal/lock"
	"github.com/rlanders/dr-restore-utility/internal/resolve"
	"github.com/rlanders/dr-restore-utility/internal/session"
	"github.com/rlanders/dr-restore-utility/internal/stage"
)

// FailureKind is the closed error taxonomy of a restore run. Callers
// switch on kinds instead of inspecting error strings.
type FailureKind string

const (
	KindMalformedID     FailureKind = "malformed_id"
	KindNotFound        FailureKind = "not_found"
	KindMissingManifest FailureKind = "missing_manifest"
	KindEmptyManifest   FailureKind = "empty_manifest"
	KindCorruptManifest FailureKind = "corrupt_manifest"
	KindTransient       FailureKind = "transient"
	KindStaging         FailureKind = "staging_error"
	KindSessionBusy     FailureKind = "session_busy"
	KindExecutorFailure FailureKind = "executor_failure"
)

// Failure is a terminal Failed state. It wraps the component error, which
// carries the structured diagnostics (searched roots, failing file, parse
// error) needed for remediation messaging one layer up.
type Failure struct {
	Kind  FailureKind
	State State
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("restore failed at %s (%s): %v", f.State, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

func failAt(state State, err error) *Failure {
	return &Failure{Kind: classify(err), State: state, Err: err}
}

func failWith(state State, kind FailureKind, err error) *Failure {
	return &Failure{Kind: kind, State: state, Err: err}
}

// classify maps component errors onto the closed taxonomy.
func classify(err error) FailureKind {
	var malformed *session.MalformedIDError
	if errors.As(err, &malformed) {
		return KindMalformedID
	}
	if errors.Is(err, lock.ErrBusy) {
		return KindSessionBusy
	}
	var notFound *resolve.NotFoundError
	if errors.As(err, &notFound) {
		return KindNotFound
	}
	var staging *stage.StagingError
	isStaging := errors.As(err, &staging)
	var manifest *session.ManifestError
	if errors.As(err, &manifest) {
		switch manifest.Kind {
		case session.ManifestMissing:
			return KindMissingManifest
		case session.ManifestEmpty:
			return KindEmptyManifest
		case session.ManifestCorrupt:
			return KindCorruptManifest
		}
	}
	if isStaging {
		return KindStaging
	}
	return KindTransient
}
