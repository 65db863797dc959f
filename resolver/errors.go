package resolver

import "fmt"

// NotAncestor is returned when a newer tuple for a name N names a
// commit C such that the already-selected commit S is not a
// descendant of C — the recency invariant would be violated by
// accepting S without C in its history.
type NotAncestor struct {
	Name     string
	Newer    string
	Selected string
}

func (e *NotAncestor) Error() string {
	return fmt.Sprintf("package '%s': selected commit %s is not a descendant of %s", e.Name, e.Selected, e.Newer)
}

// SourceConflict is returned when two dependencies in the graph
// declare the same name with different sources.
type SourceConflict struct {
	Name   string
	First  string
	Second string
}

func (e *SourceConflict) Error() string {
	return fmt.Sprintf("package '%s': conflicting sources %q and %q", e.Name, e.First, e.Second)
}

// DependentNewerThanParent is returned when a child dependency's
// commit-time is strictly greater than its parent's, which would
// violate the recency ordering the queue traversal depends on.
type DependentNewerThanParent struct {
	Parent       string
	Child        string
	ParentTime   int64
	ChildTime    int64
	ChildCommit  string
	ParentCommit string
}

func (e *DependentNewerThanParent) Error() string {
	return fmt.Sprintf("package '%s' (commit-time %d) depends on '%s' (commit-time %d), which is newer than its parent",
		e.Parent, e.ParentTime, e.Child, e.ChildTime)
}
