package resolver

import (
	"context"
	"fmt"
	"testing"

	"github.com/sifive/wit/manifest"
)

// fakeRepo is a deterministic in-memory GitBackend substitute: a
// named package whose commit graph, commit-times, and per-commit
// manifests are supplied directly by a test, with no subprocess
// involved.
type fakeRepo struct {
	name   string
	source string

	// commits maps a revision spec (branch name or full hash) to a
	// commit hash; resolveRevision looks specs up here.
	commits map[string]string
	// times maps a commit hash to its commit-time.
	times map[string]int64
	// ancestors maps a commit hash to the set of commit hashes
	// reachable from it (inclusive of itself).
	ancestors map[string]map[string]bool
	// manifests maps a commit hash to the manifest checked in there.
	manifests map[string]*manifest.Manifest
}

func (f *fakeRepo) Name() string   { return f.name }
func (f *fakeRepo) Source() string { return f.source }

func (f *fakeRepo) EnsureCloned(ctx context.Context, download bool) error { return nil }

func (f *fakeRepo) ResolveRevision(ctx context.Context, spec string) (string, error) {
	if c, ok := f.commits[spec]; ok {
		return c, nil
	}
	return "", fmt.Errorf("fakeRepo %s: unknown revision %q", f.name, spec)
}

func (f *fakeRepo) ReadManifestAt(ctx context.Context, revision string) (*manifest.Manifest, error) {
	if m, ok := f.manifests[revision]; ok {
		return m, nil
	}
	return manifest.New(), nil
}

func (f *fakeRepo) IsAncestor(ctx context.Context, ancestor, descendant string) bool {
	set, ok := f.ancestors[descendant]
	if !ok {
		return ancestor == descendant
	}
	return set[ancestor]
}

func (f *fakeRepo) CommitTime(ctx context.Context, hash string) (int64, error) {
	if t, ok := f.times[hash]; ok {
		return t, nil
	}
	return 0, fmt.Errorf("fakeRepo %s: unknown commit %q", f.name, hash)
}

func (f *fakeRepo) Checkout(ctx context.Context, revision string) error { return nil }

// fakeWorld builds a test fixture: a registry of fakeRepo by name, an
// Options value wired to serve Resolve purely from that registry.
type fakeWorld struct {
	repos map[string]*fakeRepo
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{repos: map[string]*fakeRepo{}}
}

func (w *fakeWorld) add(r *fakeRepo) { w.repos[r.name] = r }

func (w *fakeWorld) options() Options {
	return Options{
		Download: true,
		NewRepo: func(name, source string) Repo {
			return w.repos[name]
		},
		ResolveSource: func(name, source string) string { return source },
		Metrics:       nil,
	}
}

func mustManifest(t *testing.T, deps ...manifest.Dependency) *manifest.Manifest {
	t.Helper()
	m := manifest.New()
	for _, d := range deps {
		if err := m.AddDependency(d); err != nil {
			t.Fatalf("AddDependency: %v", err)
		}
	}
	return m
}

func TestResolveEmptyWorkspace(t *testing.T) {
	lf, err := Resolve(context.Background(), manifest.New(), newFakeWorld().options())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if lf.Len() != 0 {
		t.Errorf("expected empty lockfile, got %d entries", lf.Len())
	}
}

func TestResolveSingleDepBranchRef(t *testing.T) {
	w := newFakeWorld()
	w.add(&fakeRepo{
		name: "a", source: "/tmp/a.git",
		commits:   map[string]string{"master": "A1"},
		times:     map[string]int64{"A1": 100},
		ancestors: map[string]map[string]bool{"A1": {"A1": true}},
	})

	root := mustManifest(t, manifest.Dependency{Name: "a", Source: "/tmp/a.git", Revision: "master"})
	lf, err := Resolve(context.Background(), root, w.options())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	entries := lf.Entries()
	if len(entries) != 1 || entries[0].Name != "a" || entries[0].Source != "/tmp/a.git" || entries[0].Revision != "A1" {
		t.Errorf("unexpected lockfile: %+v", entries)
	}
}

func TestResolveRecencyWins(t *testing.T) {
	w := newFakeWorld()
	// b@B1 (time 200) declares a@A2 (time 150), a descendant of A1.
	w.add(&fakeRepo{
		name: "a", source: "/tmp/a.git",
		commits: map[string]string{"master": "A1", "A2": "A2"},
		times:   map[string]int64{"A1": 100, "A2": 150},
		ancestors: map[string]map[string]bool{
			"A1": {"A1": true},
			"A2": {"A1": true, "A2": true},
		},
	})
	w.add(&fakeRepo{
		name: "b", source: "/tmp/b.git",
		commits:   map[string]string{"master": "B1"},
		times:     map[string]int64{"B1": 200},
		ancestors: map[string]map[string]bool{"B1": {"B1": true}},
		manifests: map[string]*manifest.Manifest{
			"B1": mustManifest(t, manifest.Dependency{Name: "a", Source: "/tmp/a.git", Revision: "A2"}),
		},
	})

	root := mustManifest(t,
		manifest.Dependency{Name: "a", Source: "/tmp/a.git", Revision: "master"},
		manifest.Dependency{Name: "b", Source: "/tmp/b.git", Revision: "master"},
	)
	lf, err := Resolve(context.Background(), root, w.options())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	got, ok := lf.Get("a")
	if !ok || got.Revision != "A2" {
		t.Errorf("expected a=A2, got %+v (ok=%v)", got, ok)
	}
	got, ok = lf.Get("b")
	if !ok || got.Revision != "B1" {
		t.Errorf("expected b=B1, got %+v (ok=%v)", got, ok)
	}
}

func TestResolveAncestorViolation(t *testing.T) {
	w := newFakeWorld()
	// A2 is NOT a descendant of A1: disjoint histories.
	w.add(&fakeRepo{
		name: "a", source: "/tmp/a.git",
		commits: map[string]string{"master": "A1", "A2": "A2"},
		times:   map[string]int64{"A1": 100, "A2": 150},
		ancestors: map[string]map[string]bool{
			"A1": {"A1": true},
			"A2": {"A2": true},
		},
	})
	w.add(&fakeRepo{
		name: "b", source: "/tmp/b.git",
		commits:   map[string]string{"master": "B1"},
		times:     map[string]int64{"B1": 200},
		ancestors: map[string]map[string]bool{"B1": {"B1": true}},
		manifests: map[string]*manifest.Manifest{
			"B1": mustManifest(t, manifest.Dependency{Name: "a", Source: "/tmp/a.git", Revision: "A2"}),
		},
	})

	root := mustManifest(t,
		manifest.Dependency{Name: "a", Source: "/tmp/a.git", Revision: "master"},
		manifest.Dependency{Name: "b", Source: "/tmp/b.git", Revision: "master"},
	)
	_, err := Resolve(context.Background(), root, w.options())
	if err == nil {
		t.Fatalf("expected NotAncestor error")
	}
	na, ok := err.(*NotAncestor)
	if !ok {
		t.Fatalf("error = %T, want *NotAncestor", err)
	}
	if na.Name != "a" {
		t.Errorf("NotAncestor.Name = %q, want 'a'", na.Name)
	}
}

func TestResolveSourceConflict(t *testing.T) {
	w := newFakeWorld()
	w.add(&fakeRepo{
		name: "a", source: "/x/a.git",
		commits:   map[string]string{"master": "A1"},
		times:     map[string]int64{"A1": 100},
		ancestors: map[string]map[string]bool{"A1": {"A1": true}},
	})
	w.add(&fakeRepo{
		name: "b", source: "/tmp/b.git",
		commits:   map[string]string{"master": "B1"},
		times:     map[string]int64{"B1": 50},
		ancestors: map[string]map[string]bool{"B1": {"B1": true}},
		manifests: map[string]*manifest.Manifest{
			"B1": mustManifest(t, manifest.Dependency{Name: "a", Source: "/y/a.git", Revision: "master"}),
		},
	})

	root := mustManifest(t,
		manifest.Dependency{Name: "a", Source: "/x/a.git", Revision: "master"},
		manifest.Dependency{Name: "b", Source: "/tmp/b.git", Revision: "master"},
	)
	_, err := Resolve(context.Background(), root, w.options())
	if err == nil {
		t.Fatalf("expected SourceConflict error")
	}
	if _, ok := err.(*SourceConflict); !ok {
		t.Fatalf("error = %T, want *SourceConflict", err)
	}
}

func TestResolveToleratesEquivalentSourceSpelling(t *testing.T) {
	w := newFakeWorld()
	w.add(&fakeRepo{
		name: "a", source: "https://github.com/org/a.git",
		commits:   map[string]string{"master": "A1"},
		times:     map[string]int64{"A1": 100},
		ancestors: map[string]map[string]bool{"A1": {"A1": true}},
	})
	w.add(&fakeRepo{
		name: "b", source: "/tmp/b.git",
		commits:   map[string]string{"master": "B1"},
		times:     map[string]int64{"B1": 50},
		ancestors: map[string]map[string]bool{"B1": {"B1": true}},
		manifests: map[string]*manifest.Manifest{
			// same remote as root's "a" dependency, spelled as scp-style
			// with no .git suffix instead of an https URL with one.
			"B1": mustManifest(t, manifest.Dependency{Name: "a", Source: "git@github.com:org/a", Revision: "master"}),
		},
	})

	root := mustManifest(t,
		manifest.Dependency{Name: "a", Source: "https://github.com/org/a.git", Revision: "master"},
		manifest.Dependency{Name: "b", Source: "/tmp/b.git", Revision: "master"},
	)
	if _, err := Resolve(context.Background(), root, w.options()); err != nil {
		t.Fatalf("unexpected error for equivalently-spelled source: %v", err)
	}
}

func TestResolveDependentNewerThanParent(t *testing.T) {
	w := newFakeWorld()
	w.add(&fakeRepo{
		name: "parent", source: "/tmp/parent.git",
		commits:   map[string]string{"master": "P1"},
		times:     map[string]int64{"P1": 100},
		ancestors: map[string]map[string]bool{"P1": {"P1": true}},
		manifests: map[string]*manifest.Manifest{
			"P1": mustManifest(t, manifest.Dependency{Name: "child", Source: "/tmp/child.git", Revision: "master"}),
		},
	})
	w.add(&fakeRepo{
		name: "child", source: "/tmp/child.git",
		commits:   map[string]string{"master": "C1"},
		times:     map[string]int64{"C1": 200},
		ancestors: map[string]map[string]bool{"C1": {"C1": true}},
	})

	root := mustManifest(t, manifest.Dependency{Name: "parent", Source: "/tmp/parent.git", Revision: "master"})
	_, err := Resolve(context.Background(), root, w.options())
	if err == nil {
		t.Fatalf("expected DependentNewerThanParent error")
	}
	if _, ok := err.(*DependentNewerThanParent); !ok {
		t.Fatalf("error = %T, want *DependentNewerThanParent", err)
	}
}

func TestResolveIdempotent(t *testing.T) {
	w := newFakeWorld()
	w.add(&fakeRepo{
		name: "a", source: "/tmp/a.git",
		commits:   map[string]string{"master": "A1"},
		times:     map[string]int64{"A1": 100},
		ancestors: map[string]map[string]bool{"A1": {"A1": true}},
	})

	root := mustManifest(t, manifest.Dependency{Name: "a", Source: "/tmp/a.git", Revision: "master"})

	first, err := Resolve(context.Background(), root, w.options())
	if err != nil {
		t.Fatalf("Resolve (1st): %v", err)
	}
	second, err := Resolve(context.Background(), root, w.options())
	if err != nil {
		t.Fatalf("Resolve (2nd): %v", err)
	}
	if !first.Equal(second) {
		t.Errorf("expected idempotent resolution: %+v != %+v", first.Entries(), second.Entries())
	}
}
