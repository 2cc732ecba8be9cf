package session

import (
	"fmt"
	"strings"
	"time"
)

// IDPrefix is the leading marker of every canonical session ID.
const IDPrefix = "backup_"

// idCoreLayout parses the timestamp half of an ID core.
const idCoreLayout = "20060102_150405"

// ID is a canonical session identifier of the form
// backup_<YYYYMMDD>_<HHMMSS>_<5-digit-suffix>.
type ID string

func (id ID) String() string { return string(id) }

// Timestamp returns the creation time encoded in the ID, in UTC.
func (id ID) Timestamp() time.Time {
	core := strings.TrimPrefix(string(id), IDPrefix)
	ts, err := time.ParseInLocation(idCoreLayout, core[:len(idCoreLayout)], time.UTC)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// Suffix returns the trailing 5-digit disambiguator.
func (id ID) Suffix() string {
	core := string(id)
	return core[len(core)-5:]
}

// Ref is a normalized session reference. Exact refs carry a full canonical
// ID; fragments must be matched against real sessions by the resolver.
type Ref struct {
	ID       ID
	Fragment string
	Exact    bool
}

func (r Ref) String() string {
	if r.Exact {
		return string(r.ID)
	}
	return r.Fragment
}

// MalformedIDError reports a session reference that cannot be a canonical
// ID or a fragment of one.
type MalformedIDError struct {
	Raw    string
	Reason string
}

func (e *MalformedIDError) Error() string {
	return fmt.Sprintf("malformed session reference %q: %s", e.Raw, e.Reason)
}

// Normalize parses an arbitrary user-supplied session reference into a
// canonical Ref. Accepted inputs: a bare canonical ID, an ID missing the
// backup_ prefix, a filesystem path or object key whose last segment is an
// ID, or a partial fragment. Fragments are returned as inexact refs rather
// than rejected; resolution against real sessions is the resolver's job.
func Normalize(raw string) (Ref, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Ref{}, &MalformedIDError{Raw: raw, Reason: "empty reference"}
	}

	// A path-embedded reference identifies the session by its last segment.
	segment := trimmed
	if idx := strings.LastIndexAny(segment, "/\\"); idx >= 0 {
		segment = segment[idx+1:]
	}
	if segment == "" {
		return Ref{}, &MalformedIDError{Raw: raw, Reason: "path has no final segment"}
	}

	core := strings.TrimPrefix(segment, IDPrefix)
	for _, r := range core {
		if (r < '0' || r > '9') && r != '_' {
			return Ref{}, &MalformedIDError{Raw: raw, Reason: fmt.Sprintf("invalid character %q", r)}
		}
	}

	if isCanonicalCore(core) {
		if _, err := time.ParseInLocation(idCoreLayout, core[:len(idCoreLayout)], time.UTC); err != nil {
			return Ref{}, &MalformedIDError{Raw: raw, Reason: "invalid timestamp"}
		}
		return Ref{ID: ID(IDPrefix + core), Exact: true}, nil
	}

	return Ref{Fragment: core, Exact: false}, nil
}

// Parse is Normalize restricted to exact canonical IDs.
func Parse(raw string) (ID, error) {
	ref, err := Normalize(raw)
	if err != nil {
		return "", err
	}
	if !ref.Exact {
		return "", &MalformedIDError{Raw: raw, Reason: "not a full canonical ID"}
	}
	return ref.ID, nil
}

// IsCanonical reports whether name is a full canonical session ID.
func IsCanonical(name string) bool {
	if !strings.HasPrefix(name, IDPrefix) {
		return false
	}
	core := strings.TrimPrefix(name, IDPrefix)
	if !isCanonicalCore(core) {
		return false
	}
	_, err := time.ParseInLocation(idCoreLayout, core[:len(idCoreLayout)], time.UTC)
	return err == nil
}

// isCanonicalCore checks the <date>_<time>_<suffix> shape without
// validating the calendar date.
func isCanonicalCore(core string) bool {
	// 8 date digits + _ + 6 time digits + _ + 5 suffix digits
	if len(core) != 21 {
		return false
	}
	if core[8] != '_' || core[15] != '_' {
		return false
	}
	for i, r := range core {
		if i == 8 || i == 15 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
