// Package pkgrepo is the PackageRepo: the in-memory representation of
// a single cloned dependency repository, combining a name/source
// identity with the on-disk GitBackend binding used to resolve it.
package pkgrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sifive/wit/gitexec"
	"github.com/sifive/wit/internal/lock"
	"github.com/sifive/wit/manifest"
)

// Repo couples a Dependency identity (name, source) with the on-disk
// clone used to resolve and read it. Its resolved revision is set by
// each ResolveRevision or Checkout call; the latest call wins.
//
// A Repo carries its own RWMutex so a Workspace can expose read-only
// accessors (e.g. for a status report) concurrently with a Resolver
// run still touching other repos, while serializing access to this
// one repo's directory against concurrent clone/fetch/checkout.
type Repo struct {
	name   string
	source string
	path   string
	rev    string

	backend *gitexec.Backend
	lock    lock.RWMutex
}

// New returns a Repo for name, cloned (or to be cloned) from source
// at path, bound to backend for all Git operations.
func New(name, source, path string, backend *gitexec.Backend) *Repo {
	return &Repo{name: name, source: source, path: path, backend: backend}
}

// Name returns the package's name.
func (r *Repo) Name() string { return r.name }

// Source returns the source the package was first discovered with.
func (r *Repo) Source() string { return r.source }

// Path returns the on-disk clone directory.
func (r *Repo) Path() string { return r.path }

// Revision returns the currently resolved full commit hash, or the
// empty string if ResolveRevision/Checkout has not yet been called.
func (r *Repo) Revision() string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.rev
}

// EnsureCloned clones source into the repo's path if it is not
// already a git repository there. It is idempotent.
func (r *Repo) EnsureCloned(ctx context.Context, download bool) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.backend.IsGitRepo(ctx, r.path) {
		return nil
	}
	if !download {
		return fmt.Errorf("package '%s' is not present at %q and downloads are disabled", r.name, r.path)
	}
	return r.backend.Clone(ctx, r.name, r.source, r.path)
}

// Fetch runs a fetch of the repo's source, as GitBackend.Fetch.
func (r *Repo) Fetch(ctx context.Context, env []string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.backend.Fetch(ctx, r.name, r.source, env)
}

// ResolveRevision resolves spec to a full commit hash via
// GitBackend.RevParse and stores it as the repo's resolved revision.
// The rev-parse result is confirmed to exist via HasCommit before being
// accepted, since rev-parse echoes back a hash-shaped spec without
// checking that the object is present in the repository.
func (r *Repo) ResolveRevision(ctx context.Context, spec string) (string, error) {
	full, err := r.backend.RevParse(ctx, r.name, spec)
	if err != nil {
		return "", err
	}
	if !r.backend.HasCommit(ctx, full) {
		return "", &gitexec.GitCommitNotFound{Name: r.name, Revision: spec}
	}

	r.lock.Lock()
	r.rev = full
	r.lock.Unlock()
	return full, nil
}

// ReadManifestAt reads and parses the package's own wit-manifest.json
// at the given commit via ShowBlob. An absent file yields an empty
// Manifest: a leaf package with no dependencies of its own.
func (r *Repo) ReadManifestAt(ctx context.Context, revision string) (*manifest.Manifest, error) {
	raw, err := r.backend.ShowBlob(ctx, revision, "wit-manifest.json")
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return manifest.New(), nil
	}

	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &elements); err != nil {
		return nil, fmt.Errorf("unable to parse wit-manifest.json for '%s' at %s: %w", r.name, revision, err)
	}
	return manifest.ProcessManifest(elements)
}

// IsAncestor delegates to the bound GitBackend.
func (r *Repo) IsAncestor(ctx context.Context, ancestor, descendant string) bool {
	return r.backend.IsAncestor(ctx, ancestor, descendant)
}

// CommitTime delegates to the bound GitBackend.
func (r *Repo) CommitTime(ctx context.Context, hash string) (int64, error) {
	return r.backend.CommitTime(ctx, hash)
}

// Checkout checks out revision in the working tree and refreshes the
// resolved revision from HEAD.
func (r *Repo) Checkout(ctx context.Context, revision string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if err := r.backend.Checkout(ctx, revision); err != nil {
		return err
	}
	head, err := r.backend.RevParse(ctx, r.name, "HEAD")
	if err != nil {
		return err
	}
	r.rev = head
	return nil
}

// Status reports the repo's current dirty state, for the status
// subcommand's reporting only; it never mutates anything.
func (r *Repo) Status(ctx context.Context) (modified, untracked bool, err error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.backend.Status(ctx)
}

// ResolveSource implements the PackageRepo source-lookup policy for a
// Dependency whose source is not an absolute URL: consult the ordered
// repoPaths (search directories); the first directory that contains a
// clone or an ls-remote-able repo matching name wins. If none match,
// source is returned verbatim.
func ResolveSource(ctx context.Context, backend *gitexec.Backend, name, source string, repoPaths []string) string {
	for _, dir := range repoPaths {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			if backend.IsGitRepo(ctx, candidate) {
				return candidate
			}
			continue
		}
		if backend.IsGitRepo(ctx, candidate) {
			return candidate
		}
	}
	return source
}
