package workspace

import (
	"context"
	"os"
	"path/filepath"

	"github.com/sifive/wit/gitexec"
)

// PackageStatus reports one Lockfile entry's relationship between its
// recorded commit and the repository's current state on disk. It
// never mutates anything.
type PackageStatus struct {
	Name      string
	NewCommit bool // HEAD differs from the recorded lockfile commit
	Modified  bool // tracked files differ from HEAD
	Untracked bool // untracked files are present
	Missing   bool // the package directory does not exist at all
}

// Status computes, for every entry in the workspace's current
// Lockfile, whether its clone has moved on or gone dirty, plus the
// set of on-disk package directories present but absent from the
// Lockfile ("untracked packages").
func (w *Workspace) Status(ctx context.Context) (packages []PackageStatus, untrackedPackages []string, err error) {
	named := map[string]bool{}

	for _, entry := range w.lockfile.Entries() {
		named[entry.Name] = true
		dir := w.PackagePath(entry.Name)

		if _, statErr := os.Stat(dir); statErr != nil {
			packages = append(packages, PackageStatus{Name: entry.Name, Missing: true})
			continue
		}

		backend := gitexec.New(dir, nil, w.cfg.Log)
		head, revErr := backend.RevParse(ctx, entry.Name, "HEAD")
		if revErr != nil {
			return nil, nil, revErr
		}
		modified, untracked, statusErr := backend.Status(ctx)
		if statusErr != nil {
			return nil, nil, statusErr
		}

		packages = append(packages, PackageStatus{
			Name:      entry.Name,
			NewCommit: head != entry.Revision,
			Modified:  modified,
			Untracked: untracked,
		})
	}

	entries, readErr := os.ReadDir(w.root)
	if readErr != nil {
		return nil, nil, readErr
	}
	for _, e := range entries {
		if !e.IsDir() || e.Name() == scratchDirName || named[e.Name()] {
			continue
		}
		dir := filepath.Join(w.root, e.Name())
		backend := gitexec.New(dir, nil, w.cfg.Log)
		if backend.IsGitRepo(ctx, dir) {
			untrackedPackages = append(untrackedPackages, e.Name())
		}
	}

	return packages, untrackedPackages, nil
}
