// Package lockfile persists the resolved, fully-pinned dependency graph
// produced by a resolution run: a wit-lock.json file naming, for every
// package reachable from the workspace root, the exact commit selected
// and the source it was cloned from.
package lockfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sifive/wit/gitexec"
)

// Entry is a single resolved package: its name, the source it was
// fetched from, and the full commit hash selected for it.
type Entry struct {
	Name     string `json:"name"`
	Source   string `json:"source"`
	Revision string `json:"commit"`
}

// Lockfile is an ordered sequence of resolved Entry records. Order is
// significant (it reflects resolution order) and is preserved across a
// Read/Write round trip; names are unique within a Lockfile.
type Lockfile struct {
	entries []Entry
}

// New returns an empty Lockfile.
func New() *Lockfile {
	return &Lockfile{}
}

// Entries returns the Lockfile's entries in order. The returned slice
// is a copy; mutating it has no effect on l.
func (l *Lockfile) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries in the Lockfile.
func (l *Lockfile) Len() int { return len(l.entries) }

// Read parses the JSON array at path into a Lockfile. If safe is true
// and the file does not exist, Read returns an empty Lockfile instead
// of an error.
func Read(path string, safe bool) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if safe && os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("unable to read lockfile %q: %w", path, err)
	}

	var raw []Entry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unable to parse lockfile %q: %w", path, err)
	}

	l := New()
	for i, e := range raw {
		if err := l.AddEntry(e); err != nil {
			return nil, fmt.Errorf("lockfile %q entry %d: %w", path, i, err)
		}
	}
	return l, nil
}

// Write atomically serializes the Lockfile as pretty JSON (4-space
// indent, stable name/source/commit key order) to path.
func (l *Lockfile) Write(path string) error {
	data, err := json.MarshalIndent(l.entries, "", "    ")
	if err != nil {
		return fmt.Errorf("unable to marshal lockfile: %w", err)
	}
	if l.entries == nil {
		data = []byte("[]")
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".wit-lock-*")
	if err != nil {
		return fmt.Errorf("unable to create temp lockfile: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("unable to write temp lockfile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("unable to close temp lockfile: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("unable to rename temp lockfile: %w", err)
	}
	return nil
}

// ContainsEntry returns whether an entry with the given name is present.
func (l *Lockfile) ContainsEntry(name string) bool {
	_, ok := l.find(name)
	return ok
}

// Get returns the entry with the given name, if present.
func (l *Lockfile) Get(name string) (Entry, bool) {
	i, ok := l.find(name)
	if !ok {
		return Entry{}, false
	}
	return l.entries[i], true
}

// AddEntry appends e. It fails if the revision is not a full commit
// hash, or if an entry with the same name is already present.
func (l *Lockfile) AddEntry(e Entry) error {
	if e.Name == "" {
		return fmt.Errorf("lockfile entry name cannot be empty")
	}
	if e.Source == "" {
		return fmt.Errorf("lockfile entry source cannot be empty")
	}
	if !gitexec.IsFullCommitHash(e.Revision) {
		return fmt.Errorf("lockfile entry '%s' has non-full commit hash %q", e.Name, e.Revision)
	}
	if l.ContainsEntry(e.Name) {
		return fmt.Errorf("lockfile entry '%s' already exists", e.Name)
	}
	l.entries = append(l.entries, e)
	return nil
}

func (l *Lockfile) find(name string) (int, bool) {
	for i, e := range l.entries {
		if e.Name == name {
			return i, true
		}
	}
	return 0, false
}

// Equal reports whether two lockfiles contain the same entries in the
// same order. Order matters: a lockfile is a record of resolution
// order, not just a resolved set.
func (l *Lockfile) Equal(other *Lockfile) bool {
	if len(l.entries) != len(other.entries) {
		return false
	}
	for i := range l.entries {
		if l.entries[i] != other.entries[i] {
			return false
		}
	}
	return true
}
