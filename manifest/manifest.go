// Package manifest persists and manipulates the ordered sequence of
// Dependency declarations that make up a wit-manifest.json or
// wit-workspace.json file.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sifive/wit/giturl"
)

// Dependency is a single declared dependency: a name, a source it can
// be cloned/fetched from, and a revision specifier (branch, tag, or
// hash — full or short) that will later be resolved to a commit.
type Dependency struct {
	Name     string `json:"name"`
	Source   string `json:"source"`
	Revision string `json:"commit"`
	Message  string `json:"message,omitempty"`
}

// Manifest is an ordered sequence of Dependency declarations. Names are
// unique within a Manifest; that invariant is enforced on every
// mutation.
type Manifest struct {
	deps []Dependency
}

// New returns an empty Manifest.
func New() *Manifest {
	return &Manifest{}
}

// Dependencies returns the Manifest's dependencies in declaration
// order. The returned slice is a copy; mutating it has no effect on m.
func (m *Manifest) Dependencies() []Dependency {
	out := make([]Dependency, len(m.deps))
	copy(out, m.deps)
	return out
}

// Len returns the number of dependencies in the Manifest.
func (m *Manifest) Len() int { return len(m.deps) }

// Read parses the JSON array at path into a Manifest. If safe is true
// and the file does not exist, Read returns an empty Manifest instead
// of an error.
func Read(path string, safe bool) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if safe && os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("unable to read manifest %q: %w", path, err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unable to parse manifest %q: %w", path, err)
	}

	return ProcessManifest(raw)
}

// ProcessManifest constructs a Manifest from an already-parsed JSON
// array. Unknown keys in each element are ignored (encoding/json does
// this by default); a missing name is derived from source via the
// path-to-name rule.
func ProcessManifest(elements []json.RawMessage) (*Manifest, error) {
	m := New()

	for i, raw := range elements {
		var dep Dependency
		if err := json.Unmarshal(raw, &dep); err != nil {
			return nil, fmt.Errorf("unable to parse dependency at index %d: %w", i, err)
		}
		if dep.Source == "" {
			return nil, fmt.Errorf("dependency at index %d has no source", i)
		}
		if dep.Name == "" {
			dep.Name = giturl.NameOf(dep.Source)
		}
		if err := m.AddDependency(dep); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Write atomically serializes the Manifest as pretty JSON (4-space
// indent, stable name/source/commit/message key order) to path.
func (m *Manifest) Write(path string) error {
	data, err := json.MarshalIndent(m.deps, "", "    ")
	if err != nil {
		return fmt.Errorf("unable to marshal manifest: %w", err)
	}
	if m.deps == nil {
		data = []byte("[]")
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".wit-manifest-*")
	if err != nil {
		return fmt.Errorf("unable to create temp manifest file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("unable to write temp manifest file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("unable to close temp manifest file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("unable to rename temp manifest file: %w", err)
	}
	return nil
}

// ContainsDependency returns whether a dependency with the given name
// is present.
func (m *Manifest) ContainsDependency(name string) bool {
	_, ok := m.find(name)
	return ok
}

// AddDependency appends dep. It fails if a dependency with the same
// name is already present.
func (m *Manifest) AddDependency(dep Dependency) error {
	if dep.Name == "" {
		return fmt.Errorf("dependency name cannot be empty")
	}
	if dep.Source == "" {
		return fmt.Errorf("dependency source cannot be empty")
	}
	if dep.Revision == "" {
		return fmt.Errorf("dependency revision cannot be empty")
	}
	if m.ContainsDependency(dep.Name) {
		return fmt.Errorf("dependency '%s' already exists in manifest", dep.Name)
	}
	m.deps = append(m.deps, dep)
	return nil
}

// ReplaceDependency overwrites the dependency with the same name as
// dep. It fails if no such dependency exists.
func (m *Manifest) ReplaceDependency(dep Dependency) error {
	i, ok := m.find(dep.Name)
	if !ok {
		return fmt.Errorf("dependency '%s' does not exist in manifest", dep.Name)
	}
	m.deps[i] = dep
	return nil
}

// RemoveDependency removes the dependency with the given name. It fails
// if no such dependency exists.
func (m *Manifest) RemoveDependency(name string) error {
	i, ok := m.find(name)
	if !ok {
		return fmt.Errorf("dependency '%s' does not exist in manifest", name)
	}
	m.deps = append(m.deps[:i], m.deps[i+1:]...)
	return nil
}

func (m *Manifest) find(name string) (int, bool) {
	for i, d := range m.deps {
		if d.Name == name {
			return i, true
		}
	}
	return 0, false
}

// Equal reports whether two manifests contain the same dependencies in
// the same order.
func (m *Manifest) Equal(other *Manifest) bool {
	if len(m.deps) != len(other.deps) {
		return false
	}
	for i := range m.deps {
		if m.deps[i] != other.deps[i] {
			return false
		}
	}
	return true
}
