package lockfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func fullHash(b byte) string {
	return strings.Repeat(string(b), 40)
}

func TestAddEntryValidation(t *testing.T) {
	l := New()

	if err := l.AddEntry(Entry{Name: "a", Source: "/tmp/a.git", Revision: "abc"}); err == nil {
		t.Fatalf("expected error for short revision")
	}

	good := Entry{Name: "a", Source: "/tmp/a.git", Revision: fullHash('a')}
	if err := l.AddEntry(good); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := l.AddEntry(good); err == nil {
		t.Fatalf("expected error adding duplicate entry")
	}
	if !l.ContainsEntry("a") {
		t.Fatalf("expected lockfile to contain 'a'")
	}

	got, ok := l.Get("a")
	if !ok || got != good {
		t.Errorf("Get('a') = %+v, %v, want %+v, true", got, ok, good)
	}
}

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wit-lock.json")

	l := New()
	if err := l.AddEntry(Entry{Name: "b", Source: "/tmp/b.git", Revision: fullHash('b')}); err != nil {
		t.Fatal(err)
	}
	if err := l.AddEntry(Entry{Name: "a", Source: "/tmp/a.git", Revision: fullHash('a')}); err != nil {
		t.Fatal(err)
	}

	if err := l.Write(path); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(path, false)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !l.Equal(got) {
		t.Errorf("round-tripped lockfile does not equal original:\n got: %+v\nwant: %+v", got.Entries(), l.Entries())
	}

	// order must survive the round trip (b before a).
	entries := got.Entries()
	if entries[0].Name != "b" || entries[1].Name != "a" {
		t.Errorf("expected order [b a], got %v", entries)
	}
}

func TestReadSafeMissingFile(t *testing.T) {
	l, err := Read(filepath.Join(t.TempDir(), "does-not-exist.json"), true)
	if err != nil {
		t.Fatalf("Read(safe=true): %v", err)
	}
	if l.Len() != 0 {
		t.Errorf("expected empty lockfile, got %d entries", l.Len())
	}

	if _, err := Read(filepath.Join(t.TempDir(), "does-not-exist.json"), false); err == nil {
		t.Fatalf("expected error for Read(safe=false) on missing file")
	}
}

func TestEmptyLockfileWritesEmptyArray(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wit-lock.json")

	if err := New().Write(path); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[]" {
		t.Errorf("expected '[]', got %q", data)
	}
}

func TestReadRejectsShortHash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wit-lock.json")
	if err := os.WriteFile(path, []byte(`[{"name":"a","source":"/tmp/a.git","commit":"abcdef"}]`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Read(path, false); err == nil {
		t.Fatalf("expected error reading lockfile with short commit hash")
	}
}
