package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ManifestName is the fixed relative path of the manifest within a session
// directory or key prefix. The layout is owned by the backup producer and
// must not change.
const ManifestName = "manifest.json"

// FileEntry describes one file belonging to a session.
type FileEntry struct {
	Name         string `json:"name"`
	ExpectedSize int64  `json:"expected_size"`
	Checksum     string `json:"checksum,omitempty"`
	Compression  string `json:"compression,omitempty"`
	Encrypted    bool   `json:"encrypted,omitempty"`
}

// Manifest is the per-session metadata document written by the producer.
type Manifest struct {
	Files            []FileEntry `json:"files"`
	CreatedAt        time.Time   `json:"created_at"`
	GeneratorVersion string      `json:"generator_version"`
}

// TotalSize sums the expected sizes of all listed files.
func (m *Manifest) TotalSize() int64 {
	var total int64
	for _, f := range m.Files {
		total += f.ExpectedSize
	}
	return total
}

type ManifestErrorKind string

const (
	ManifestMissing ManifestErrorKind = "missing_manifest"
	ManifestEmpty   ManifestErrorKind = "empty_manifest"
	ManifestCorrupt ManifestErrorKind = "corrupt_manifest"
)

// ManifestError is the closed failure type of manifest validation.
type ManifestError struct {
	Kind ManifestErrorKind
	Path string
	Err  error
}

func (e *ManifestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Path)
}

func (e *ManifestError) Unwrap() error { return e.Err }

// CheckManifestBytes validates manifest content already in memory. The
// path is diagnostic only.
func CheckManifestBytes(data []byte, path string) (*Manifest, error) {
	if len(data) == 0 {
		return nil, &ManifestError{Kind: ManifestEmpty, Path: path}
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &ManifestError{Kind: ManifestCorrupt, Path: path, Err: err}
	}
	return &m, nil
}

// CheckManifestDir runs the fast structural triage against a session
// directory on the local filesystem: the manifest must exist, be non-empty,
// and parse. File-by-file size and checksum auditing is deliberately left
// to the restore executor.
func CheckManifestDir(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ManifestError{Kind: ManifestMissing, Path: path, Err: err}
		}
		return nil, &ManifestError{Kind: ManifestMissing, Path: path, Err: err}
	}
	return CheckManifestBytes(data, path)
}
