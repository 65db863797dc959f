// Package resolver implements the recency-wins transitive dependency
// resolution algorithm: given a workspace root Manifest, it explores
// the graph of Repos in commit-time priority order, enforces that any
// repeated name converges on a single commit that is a descendant of
// every other requested commit for that name, and emits a Lockfile.
package resolver

import (
	"container/heap"
	"context"
	"fmt"
	"time"

	"github.com/sifive/wit/giturl"
	"github.com/sifive/wit/lockfile"
	"github.com/sifive/wit/manifest"
)

// Repo is the subset of pkgrepo.Repo the resolver depends on. It is
// an interface so tests can substitute a deterministic in-memory Git
// instead of shelling out to a real one.
type Repo interface {
	Name() string
	Source() string
	EnsureCloned(ctx context.Context, download bool) error
	ResolveRevision(ctx context.Context, spec string) (string, error)
	ReadManifestAt(ctx context.Context, revision string) (*manifest.Manifest, error)
	IsAncestor(ctx context.Context, ancestor, descendant string) bool
	CommitTime(ctx context.Context, hash string) (int64, error)
	Checkout(ctx context.Context, revision string) error
}

// RepoFactory constructs the Repo bound to name. Resolve calls it at
// most once per name and caches the result, so at most one Repo exists
// per name for the lifetime of a Resolve call.
type RepoFactory func(name, source string) Repo

// SourceResolver implements the PackageRepo source-lookup policy: it
// maps a Dependency's declared (name, source) to the source string
// actually used to locate/clone the repository (see pkgrepo.ResolveSource).
type SourceResolver func(name, source string) string

// Options configures a single Resolve call.
type Options struct {
	// Download, when true, clones missing repositories; when false,
	// a missing repository on disk is a fatal error.
	Download bool
	// NewRepo constructs the Repo for a name.
	NewRepo RepoFactory
	// ResolveSource implements the source-lookup policy.
	ResolveSource SourceResolver
	// Metrics is optional; a nil value disables instrumentation.
	Metrics *Metrics
}

type item struct {
	commitTime int64
	commit     string
	name       string
	repo       Repo
}

// priorityQueue is a container/heap max-heap on commit-time, with a
// lexicographic-name tie-break for determinism when commit-times
// collide.
type priorityQueue []*item

func (q priorityQueue) Len() int { return len(q) }
func (q priorityQueue) Less(i, j int) bool {
	if q[i].commitTime != q[j].commitTime {
		return q[i].commitTime > q[j].commitTime
	}
	return q[i].name < q[j].name
}
func (q priorityQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *priorityQueue) Push(x any)   { *q = append(*q, x.(*item)) }
func (q *priorityQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}

type selection struct {
	commit string
	repo   Repo
}

// Resolve runs the recency-wins algorithm against root and returns the
// resulting Lockfile. On any algorithmic failure it returns a non-nil
// error and no Lockfile; the caller must not write one.
func Resolve(ctx context.Context, root *manifest.Manifest, opts Options) (*lockfile.Lockfile, error) {
	start := time.Now()

	lf, err := resolve(ctx, root, opts)

	opts.Metrics.observeLatency(time.Since(start).Seconds())
	switch err.(type) {
	case nil:
		opts.Metrics.incOutcome(outcomeSuccess)
		opts.Metrics.setSelected(lf.Len())
	case *NotAncestor:
		opts.Metrics.incOutcome(outcomeNotAncestor)
	case *SourceConflict:
		opts.Metrics.incOutcome(outcomeSourceConflict)
	case *DependentNewerThanParent:
		opts.Metrics.incOutcome(outcomeDependentNewer)
	default:
		opts.Metrics.incOutcome(outcomeGitError)
	}
	return lf, err
}

func resolve(ctx context.Context, root *manifest.Manifest, opts Options) (*lockfile.Lockfile, error) {
	q := &priorityQueue{}
	heap.Init(q)

	selected := map[string]selection{}
	var order []string
	sources := map[string]string{}

	repos := map[string]Repo{}
	getRepo := func(name, source string) Repo {
		if r, ok := repos[name]; ok {
			return r
		}
		r := opts.NewRepo(name, source)
		repos[name] = r
		return r
	}

	// Step 1: seed the queue with one tuple per root-Manifest entry.
	for _, dep := range root.Dependencies() {
		source := opts.ResolveSource(dep.Name, dep.Source)
		repo := getRepo(dep.Name, source)

		if err := repo.EnsureCloned(ctx, opts.Download); err != nil {
			return nil, err
		}
		commit, err := repo.ResolveRevision(ctx, dep.Revision)
		if err != nil {
			return nil, err
		}
		sources[dep.Name] = source

		commitTime, err := repo.CommitTime(ctx, commit)
		if err != nil {
			return nil, err
		}

		heap.Push(q, &item{commitTime: commitTime, commit: commit, name: dep.Name, repo: repo})
	}

	// Steps 2-7: pop newest-first, resolving conflicts and pushing
	// children, until the queue is exhausted.
	for q.Len() > 0 {
		t := heap.Pop(q).(*item)

		if prior, ok := selected[t.name]; ok {
			if !t.repo.IsAncestor(ctx, t.commit, prior.commit) {
				return nil, &NotAncestor{Name: t.name, Newer: t.commit, Selected: prior.commit}
			}
			continue
		}

		selected[t.name] = selection{commit: t.commit, repo: t.repo}
		order = append(order, t.name)

		childManifest, err := t.repo.ReadManifestAt(ctx, t.commit)
		if err != nil {
			return nil, err
		}

		for _, child := range childManifest.Dependencies() {
			childSource := opts.ResolveSource(child.Name, child.Source)

			if existing, ok := sources[child.Name]; ok && !sourcesEqual(existing, childSource) {
				return nil, &SourceConflict{Name: child.Name, First: existing, Second: childSource}
			} else if !ok {
				sources[child.Name] = childSource
			}

			childRepo := getRepo(child.Name, childSource)

			if err := childRepo.EnsureCloned(ctx, opts.Download); err != nil {
				return nil, err
			}
			childCommit, err := childRepo.ResolveRevision(ctx, child.Revision)
			if err != nil {
				return nil, err
			}
			childTime, err := childRepo.CommitTime(ctx, childCommit)
			if err != nil {
				return nil, err
			}

			if childTime > t.commitTime {
				return nil, &DependentNewerThanParent{
					Parent: t.name, Child: child.Name,
					ParentTime: t.commitTime, ChildTime: childTime,
					ChildCommit: childCommit, ParentCommit: t.commit,
				}
			}

			heap.Push(q, &item{commitTime: childTime, commit: childCommit, name: child.Name, repo: childRepo})
		}
	}

	// Step 8: emit a Lockfile in insertion (selection) order.
	lf := lockfile.New()
	for _, name := range order {
		sel := selected[name]
		if err := lf.AddEntry(lockfile.Entry{Name: name, Source: sources[name], Revision: sel.commit}); err != nil {
			return nil, fmt.Errorf("internal error building lockfile: %w", err)
		}
	}
	return lf, nil
}

// sourcesEqual reports whether two declared sources for the same
// dependency name identify the same remote, tolerating the different
// spellings (scp vs ssh vs https forms, a trailing .git, a trailing
// slash) a source-conflict check must not be fooled by. It falls back
// to a normalised string compare for sources SameRawURL can't parse,
// such as plain filesystem paths.
func sourcesEqual(a, b string) bool {
	if a == b {
		return true
	}
	if equal, err := giturl.SameRawURL(a, b); err == nil {
		return equal
	}
	return giturl.NormaliseURL(a) == giturl.NormaliseURL(b)
}
