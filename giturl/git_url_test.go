package giturl

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		rawURL  string
		want    *URL
		wantErr bool
	}{
		{"scp",
			"user@host.xz:path/to/repo.git",
			&URL{Scheme: "scp", User: "user", Host: "host.xz", Path: "path/to", Repo: "repo.git"},
			false,
		},
		{"scp-no-dot-git",
			"git@github.com:org/repo",
			&URL{Scheme: "scp", User: "git", Host: "github.com", Path: "org", Repo: "repo"},
			false},
		{"ssh",
			"ssh://user@host.xz:123/path/to/repo.git",
			&URL{Scheme: "ssh", User: "user", Host: "host.xz:123", Path: "path/to", Repo: "repo.git"},
			false},
		{"https",
			"https://host.xz:345/path/to/repo.git",
			&URL{Scheme: "https", Host: "host.xz:345", Path: "path/to", Repo: "repo.git"},
			false},
		{"local",
			"file:///path/to/repo.git",
			&URL{Scheme: "local", Path: "path/to", Repo: "repo.git"},
			false},
		{"invalid-http", "http://host.xz/path/to/repo.git", nil, true},
		{"invalid-empty-path", "git@host.xz:.git", nil, true},
		{"invalid-empty-repo", "git@host.xz:path/.git", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.rawURL)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEquals(t *testing.T) {
	a, err := Parse("git@github.com:org/repo.git")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Parse("https://github.com/org/repo")
	if err != nil {
		t.Fatal(err)
	}
	c, err := Parse("https://github.com/org/other")
	if err != nil {
		t.Fatal(err)
	}

	if !a.Equals(b) {
		t.Errorf("expected scp and https urls for same repo to be equal")
	}
	if a.Equals(c) {
		t.Errorf("expected urls for different repos to not be equal")
	}
}

func TestNameOf(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"a.git", "a"},
		{"/a/b/c/def.git", "def"},
		{"ghi", "ghi"},
		{"https://github.com/org/repo.git", "repo"},
		{"git@github.com:org/repo.git/", "repo"},
	}

	for _, tt := range tests {
		if got := NameOf(tt.source); got != tt.want {
			t.Errorf("NameOf(%q) = %q, want %q", tt.source, got, tt.want)
		}
	}
}
