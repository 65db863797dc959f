// Package workspace ties together a workspace directory, its root
// Manifest and Lockfile, and the repo-path search configuration, and
// wires them to a Resolver run. It is the out-of-core layer the CLI
// drives directly.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sifive/wit/auth"
	"github.com/sifive/wit/gitexec"
	"github.com/sifive/wit/internal/utils"
	"github.com/sifive/wit/lockfile"
	"github.com/sifive/wit/manifest"
	"github.com/sifive/wit/pkgrepo"
	"github.com/sifive/wit/resolver"
)

const (
	manifestFileName = "wit-workspace.json"
	lockFileName     = "wit-lock.json"
	scratchDirName   = ".wit"
	// RepoPathEnv is the environment variable naming one additional
	// absolute-path search directory, prepended to the configured
	// repo_paths. A relative value is rejected.
	RepoPathEnv = "WIT_REPO_PATH"
)

// Config is the explicit, threaded-through configuration a Workspace
// is built with, replacing any module-level/global state: an
// authentication config for gitexec subprocess environments, a logger,
// and the ordered repo_paths search list.
type Config struct {
	Auth      auth.Config
	Log       *slog.Logger
	RepoPaths []string
	Metrics   *resolver.Metrics
}

// Workspace is a directory containing a root Manifest, an optional
// Lockfile, and one subdirectory per selected package.
type Workspace struct {
	root      string
	cfg       Config
	manifest  *manifest.Manifest
	lockfile  *lockfile.Lockfile
	repoPaths []string
}

// Open loads the Workspace rooted at dir: its wit-workspace.json
// (required to exist, but may be an empty array) and its
// wit-lock.json (read safely; absent means no prior resolution).
func Open(dir string, cfg Config) (*Workspace, error) {
	m, err := manifest.Read(filepath.Join(dir, manifestFileName), false)
	if err != nil {
		return nil, fmt.Errorf("opening workspace %q: %w", dir, err)
	}
	lf, err := lockfile.Read(filepath.Join(dir, lockFileName), true)
	if err != nil {
		return nil, fmt.Errorf("opening workspace %q: %w", dir, err)
	}

	return &Workspace{
		root:      dir,
		cfg:       cfg,
		manifest:  m,
		lockfile:  lf,
		repoPaths: effectiveRepoPaths(cfg.RepoPaths),
	}, nil
}

// Init creates a new, empty workspace directory: a wit-workspace.json
// containing "[]" and a .wit/ scratch directory. It fails if dir
// already contains a wit-workspace.json.
func Init(dir string, cfg Config) (*Workspace, error) {
	manifestPath := filepath.Join(dir, manifestFileName)
	if _, err := os.Stat(manifestPath); err == nil {
		return nil, fmt.Errorf("workspace already exists at %q", dir)
	}

	if err := utils.ReCreate(filepath.Join(dir, scratchDirName)); err != nil {
		return nil, fmt.Errorf("creating workspace %q: %w", dir, err)
	}
	if err := manifest.New().Write(manifestPath); err != nil {
		return nil, fmt.Errorf("creating workspace %q: %w", dir, err)
	}

	return Open(dir, cfg)
}

// effectiveRepoPaths prepends the RepoPathEnv directory, if set, to
// the configured search list. A relative value is rejected by
// RepoPathFromEnv at startup, not silently dropped here.
func effectiveRepoPaths(configured []string) []string {
	v := os.Getenv(RepoPathEnv)
	if v == "" {
		return configured
	}
	return append([]string{v}, configured...)
}

// RepoPathFromEnv validates the WIT_REPO_PATH environment variable,
// rejecting a relative value. Call it once at CLI startup so a bad
// configuration fails fast instead of silently resolving wrong.
func RepoPathFromEnv() error {
	v := os.Getenv(RepoPathEnv)
	if v == "" {
		return nil
	}
	if !filepath.IsAbs(v) {
		return fmt.Errorf("%s must be an absolute path, got %q", RepoPathEnv, v)
	}
	return nil
}

// Manifest returns the workspace's root Manifest.
func (w *Workspace) Manifest() *manifest.Manifest { return w.manifest }

// Lockfile returns the workspace's current Lockfile (possibly empty,
// if resolution has never run).
func (w *Workspace) Lockfile() *lockfile.Lockfile { return w.lockfile }

// Root returns the workspace's root directory.
func (w *Workspace) Root() string { return w.root }

// PackagePath returns the on-disk directory a selected package named
// name would live in: a direct subdirectory of the workspace root.
func (w *Workspace) PackagePath(name string) string {
	return filepath.Join(w.root, name)
}

// ScratchPath returns the workspace's .wit/ scratch directory, used
// for intermediate clones during source resolution.
func (w *Workspace) ScratchPath() string {
	return filepath.Join(w.root, scratchDirName)
}

// ResolveSourceString implements the full source-lookup policy for a
// dependency named name with a declared, possibly non-absolute,
// source string s:
//
//  0. consult the ordered repo_paths (§4.4): the first search
//     directory that contains a clone or ls-remote-able repo named
//     name wins, via pkgrepo.ResolveSource;
//
// otherwise, the five-step order for a non-absolute source string S:
//  1. <workspace>/S, if it exists directly under the workspace root
//     and is a git repo → use its origin remote URL;
//  2. <workspace>/.wit/S, if it exists directly under .wit and is a
//     git repo → use its origin remote URL;
//  3. <workspace>/S, if it exists as an arbitrary path → absolute path;
//  4. S, if it exists on the filesystem → absolute path;
//  5. otherwise, S verbatim.
func (w *Workspace) ResolveSourceString(ctx context.Context, name, s string) string {
	if filepath.IsAbs(s) || looksLikeRemoteURL(s) {
		return s
	}

	if len(w.repoPaths) > 0 {
		probe := gitexec.New(w.ScratchPath(), nil, w.cfg.Log)
		if found := pkgrepo.ResolveSource(ctx, probe, name, s, w.repoPaths); found != s {
			return found
		}
	}

	if candidate := filepath.Join(w.root, s); isDirectChild(w.root, candidate) {
		if _, err := os.Stat(candidate); err == nil {
			b := gitexec.New(candidate, nil, w.cfg.Log)
			if url, err := b.RemoteURL(ctx); err == nil && url != "" {
				return url
			}
		}
	}

	if candidate := filepath.Join(w.ScratchPath(), s); isDirectChild(w.ScratchPath(), candidate) {
		if _, err := os.Stat(candidate); err == nil {
			b := gitexec.New(candidate, nil, w.cfg.Log)
			if url, err := b.RemoteURL(ctx); err == nil && url != "" {
				return url
			}
		}
	}

	if candidate := filepath.Join(w.root, s); fileExists(candidate) {
		if abs, err := filepath.Abs(candidate); err == nil {
			return abs
		}
		return candidate
	}

	if fileExists(s) {
		abs, err := filepath.Abs(s)
		if err == nil {
			return abs
		}
	}

	return s
}

func isDirectChild(parent, candidate string) bool {
	rel, err := filepath.Rel(parent, candidate)
	if err != nil {
		return false
	}
	return rel != ".." && !filepath.IsAbs(rel) && filepath.Dir(rel) == "."
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func looksLikeRemoteURL(s string) bool {
	for _, prefix := range []string{"http://", "https://", "git@", "ssh://", "file://"} {
		if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// newRepo constructs the pkgrepo.Repo bound to name/source, rooted at
// the workspace's package path, with the workspace's auth environment
// and logger wired into its gitexec.Backend.
func (w *Workspace) newRepo(name, source string) resolver.Repo {
	env := auth.Env(context.Background(), w.cfg.Auth, w.PackagePath(name), source)
	backend := gitexec.New(w.PackagePath(name), env, w.cfg.Log)
	return pkgrepo.New(name, source, w.PackagePath(name), backend)
}

// Resolve runs the recency-wins resolution algorithm against the
// workspace's root Manifest and returns the new Lockfile. It does not
// persist the result; Update writes it out.
func (w *Workspace) Resolve(ctx context.Context, download bool) (*lockfile.Lockfile, error) {
	opts := resolver.Options{
		Download: download,
		NewRepo:  w.newRepo,
		ResolveSource: func(name, source string) string {
			return w.ResolveSourceString(ctx, name, source)
		},
		Metrics: w.cfg.Metrics,
	}
	return resolver.Resolve(ctx, w.manifest, opts)
}

// Update runs Resolve(download: true), persists the new Lockfile, and
// checks out every selected package at its resolved commit.
func (w *Workspace) Update(ctx context.Context) error {
	lf, err := w.Resolve(ctx, true)
	if err != nil {
		return err
	}

	for _, entry := range lf.Entries() {
		env := auth.Env(ctx, w.cfg.Auth, w.PackagePath(entry.Name), entry.Source)
		backend := gitexec.New(w.PackagePath(entry.Name), env, w.cfg.Log)
		repo := pkgrepo.New(entry.Name, entry.Source, w.PackagePath(entry.Name), backend)
		if err := repo.Checkout(ctx, entry.Revision); err != nil {
			return fmt.Errorf("checking out '%s' at %s: %w", entry.Name, entry.Revision, err)
		}
	}

	if err := lf.Write(filepath.Join(w.root, lockFileName)); err != nil {
		return err
	}
	w.lockfile = lf
	return nil
}
