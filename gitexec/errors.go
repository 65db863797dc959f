package gitexec

import "fmt"

// BadSource is returned when clone or fetch determines the configured
// source does not exist or is not a git repository at all.
type BadSource struct {
	Name   string
	Source string
}

func (e *BadSource) Error() string {
	return fmt.Sprintf("bad remote for '%s': %s", e.Name, e.Source)
}

// GitCommitNotFound is returned when RevParse fails both directly and
// via the origin/<ref> retry.
type GitCommitNotFound struct {
	Name     string
	Revision string
}

func (e *GitCommitNotFound) Error() string {
	return fmt.Sprintf("could not find commit or reference '%s' for '%s'", e.Revision, e.Name)
}

// GitError wraps any other non-zero exit from the git executable with
// full diagnostic context: the arguments, exit code, and both streams.
type GitError struct {
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *GitError) Error() string {
	return fmt.Sprintf("git %v: exit %d: %v\nstdout: %q\nstderr: %q",
		e.Args, e.ExitCode, e.Err, e.Stdout, e.Stderr)
}

func (e *GitError) Unwrap() error { return e.Err }
