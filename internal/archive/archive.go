// Package archive opens exported journal snapshots.
//
// A snapshot is a zip file holding a manifest, one CSV entry per entity type and
// optional attachment files under images/<kind>/. Opening a snapshot only reads
// the zip central directory; entry contents are inflated when they are read.
package archive

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest file names, in lookup order.
var manifestNames = []string{"manifest.json", "manifest.yaml", "manifest.yml"}

// SupportedMajorVersion is the newest snapshot layout this reader understands.
const SupportedMajorVersion = 1

// DefaultMaxEntrySize caps the inflated size of a single entry (256MB).
var DefaultMaxEntrySize int64 = 256 * 1024 * 1024

// ErrEntryNotFound is returned when reading a path that is not in the archive.
var ErrEntryNotFound = errors.New("archive entry not found")

// ErrEntryTooLarge is returned when an entry inflates past the size cap.
var ErrEntryTooLarge = errors.New("archive entry too large")

// MalformedArchiveError reports bytes that are not a readable zip archive,
// or a manifest that cannot be parsed.
type MalformedArchiveError struct {
	Err error
}

func (e *MalformedArchiveError) Error() string {
	return fmt.Sprintf("malformed archive: %v", e.Err)
}

func (e *MalformedArchiveError) Unwrap() error {
	return e.Err
}

// MissingManifestError reports an archive without a manifest entry.
type MissingManifestError struct {
	Tried []string
}

func (e *MissingManifestError) Error() string {
	return fmt.Sprintf("missing manifest (looked for %s)", strings.Join(e.Tried, ", "))
}

// UnsupportedVersionError reports a manifest declaring a newer layout.
type UnsupportedVersionError struct {
	Version string
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported snapshot version %q (max supported major version %d)",
		e.Version, SupportedMajorVersion)
}

// Manifest describes a snapshot. Tables holds the row counts declared by the exporter.
type Manifest struct {
	Version    string         `json:"version" yaml:"version"`
	Schema     string         `json:"schema,omitempty" yaml:"schema"`
	ExportedAt string         `json:"exportedAt,omitempty" yaml:"exportedAt"`
	Source     string         `json:"source,omitempty" yaml:"source"`
	Tables     map[string]int `json:"tables,omitempty" yaml:"tables"`
}

// MajorVersion returns the leading number of Version, or 1 when Version is empty.
func (m Manifest) MajorVersion() (int, error) {
	v := strings.TrimPrefix(strings.TrimSpace(m.Version), "v")
	if v == "" {
		return 1, nil
	}
	if i := strings.IndexByte(v, '.'); i >= 0 {
		v = v[:i]
	}
	return strconv.Atoi(v)
}

// Reader gives lazy access to the entries of an opened snapshot.
// It is safe for concurrent reads.
type Reader struct {
	zr           *zip.Reader
	files        map[string]*zip.File
	root         string
	manifest     Manifest
	manifestPath string

	// MaxEntrySize caps the inflated size of any single read.
	MaxEntrySize int64
}

// Open parses the zip directory of data and loads the manifest.
// The returned Reader keeps a reference to data.
func Open(data []byte) (*Reader, error) {
	if len(data) == 0 {
		return nil, &MalformedArchiveError{Err: errors.New("empty archive")}
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &MalformedArchiveError{Err: err}
	}

	r := &Reader{
		zr:           zr,
		files:        make(map[string]*zip.File, len(zr.File)),
		MaxEntrySize: DefaultMaxEntrySize,
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		r.files[normalize(f.Name)] = f
	}

	r.root = r.findRoot()
	if r.root == "" && !r.hasManifestAt("") {
		return nil, &MissingManifestError{Tried: manifestNames}
	}

	if err := r.loadManifest(); err != nil {
		return nil, err
	}

	major, err := r.manifest.MajorVersion()
	if err != nil {
		return nil, &MalformedArchiveError{Err: fmt.Errorf("manifest version %q: %w", r.manifest.Version, err)}
	}
	if major > SupportedMajorVersion || major < 1 {
		return nil, &UnsupportedVersionError{Version: r.manifest.Version}
	}

	return r, nil
}

// findRoot handles exporters that wrap everything in one top-level folder.
// Returns "" when the manifest sits at the archive root.
func (r *Reader) findRoot() string {
	if r.hasManifestAt("") {
		return ""
	}
	dirs := make(map[string]bool)
	for name := range r.files {
		if i := strings.IndexByte(name, '/'); i > 0 {
			dirs[name[:i+1]] = true
		}
	}
	if len(dirs) != 1 {
		return ""
	}
	for dir := range dirs {
		if r.hasManifestAt(dir) {
			return dir
		}
	}
	return ""
}

func (r *Reader) hasManifestAt(prefix string) bool {
	for _, name := range manifestNames {
		if _, ok := r.files[prefix+name]; ok {
			return true
		}
	}
	return false
}

func (r *Reader) loadManifest() error {
	for _, name := range manifestNames {
		if !r.HasEntry(name) {
			continue
		}
		raw, err := r.ReadBinary(name)
		if err != nil {
			return &MalformedArchiveError{Err: fmt.Errorf("read %s: %w", name, err)}
		}
		if strings.HasSuffix(name, ".json") {
			err = json.Unmarshal(raw, &r.manifest)
		} else {
			err = yaml.Unmarshal(raw, &r.manifest)
		}
		if err != nil {
			return &MalformedArchiveError{Err: fmt.Errorf("parse %s: %w", name, err)}
		}
		r.manifestPath = name
		return nil
	}
	return &MissingManifestError{Tried: manifestNames}
}

// Manifest returns the parsed manifest.
func (r *Reader) Manifest() Manifest {
	return r.manifest
}

// ManifestPath returns the entry the manifest was read from.
func (r *Reader) ManifestPath() string {
	return r.manifestPath
}

// HasEntry reports whether p names a file in the archive.
func (r *Reader) HasEntry(p string) bool {
	_, ok := r.files[r.root+normalize(p)]
	return ok
}

// ReadText inflates the entry at p and returns it as a string.
func (r *Reader) ReadText(p string) (string, error) {
	b, err := r.ReadBinary(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadBinary inflates the entry at p.
func (r *Reader) ReadBinary(p string) ([]byte, error) {
	f, ok := r.files[r.root+normalize(p)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, p)
	}

	limit := r.MaxEntrySize
	if limit <= 0 {
		limit = DefaultMaxEntrySize
	}
	if f.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("%w: %s (%d bytes)", ErrEntryTooLarge, p, f.UncompressedSize64)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", p, err)
	}
	defer rc.Close()

	// The header size can lie; bound the actual read too.
	b, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("inflate %s: %w", p, err)
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w: %s", ErrEntryTooLarge, p)
	}
	return b, nil
}

// Find returns the first existing entry dir/stem.<ext>, trying exts in order.
// Both lower and upper case extensions are tried.
func (r *Reader) Find(dir, stem string, exts []string) (string, bool) {
	for _, ext := range exts {
		candidate := path.Join(dir, stem+"."+ext)
		if r.HasEntry(candidate) {
			return candidate, true
		}
		upper := path.Join(dir, stem+"."+strings.ToUpper(ext))
		if r.HasEntry(upper) {
			return upper, true
		}
	}
	return "", false
}

// Entries lists entry paths (relative to the snapshot root) under prefix.
func (r *Reader) Entries(prefix string) []string {
	prefix = normalize(prefix)
	var out []string
	for name := range r.files {
		if !strings.HasPrefix(name, r.root) {
			continue
		}
		rel := strings.TrimPrefix(name, r.root)
		if strings.HasPrefix(rel, prefix) {
			out = append(out, rel)
		}
	}
	sort.Strings(out)
	return out
}

func normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	return strings.TrimPrefix(p, "/")
}
