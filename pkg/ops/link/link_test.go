package link

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// setup creates a source tree with nested and hidden files plus an empty
// destination root.
func setup(t *testing.T) (string, string) {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	from := filepath.Join(root, "dotfiles")
	to := filepath.Join(root, "home")

	files := map[string]string{
		"file":                 "file contents",
		".hidden":              "hidden contents",
		"dir/nested":           "nested contents",
		".config/app/settings": "settings",
	}
	for rel, contents := range files {
		path := filepath.Join(from, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
		if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
			t.Fatalf("Failed to write file: %v", err)
		}
	}
	if err := os.MkdirAll(to, 0o755); err != nil {
		t.Fatalf("Failed to create destination: %v", err)
	}
	return from, to
}

func assertLink(t *testing.T, dest, source string) {
	t.Helper()
	target, err := os.Readlink(dest)
	if err != nil {
		t.Fatalf("Expected %s to be a link: %v", dest, err)
	}
	if target != source {
		t.Errorf("Expected %s to point at %s, got %s", dest, source, target)
	}
}

func TestSyncCreatesLinks(t *testing.T) {
	from, to := setup(t)

	result, err := Sync(context.Background(), Options{From: from, To: to}, nil)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if !result.Changed {
		t.Error("Expected first sync to report a change")
	}
	if result.Created != 4 {
		t.Errorf("Expected 4 links created, got %d", result.Created)
	}

	assertLink(t, filepath.Join(to, "file"), filepath.Join(from, "file"))
	assertLink(t, filepath.Join(to, ".hidden"), filepath.Join(from, ".hidden"))
	assertLink(t, filepath.Join(to, "dir", "nested"), filepath.Join(from, "dir", "nested"))
	assertLink(t, filepath.Join(to, ".config", "app", "settings"), filepath.Join(from, ".config", "app", "settings"))

	info, err := os.Lstat(filepath.Join(to, "dir"))
	if err != nil {
		t.Fatalf("Lstat failed: %v", err)
	}
	if !info.IsDir() || info.Mode()&os.ModeSymlink != 0 {
		t.Error("Expected directories to be created, not linked")
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	from, to := setup(t)
	opts := Options{From: from, To: to}

	if _, err := Sync(context.Background(), opts, nil); err != nil {
		t.Fatalf("First sync failed: %v", err)
	}
	result, err := Sync(context.Background(), opts, nil)
	if err != nil {
		t.Fatalf("Second sync failed: %v", err)
	}
	if result.Changed {
		t.Error("Expected second sync to report no change")
	}
	if result.Unchanged != 4 {
		t.Errorf("Expected 4 unchanged entries, got %d", result.Unchanged)
	}
}

func TestSyncThroughSymlinkedSource(t *testing.T) {
	from, to := setup(t)
	if _, err := Sync(context.Background(), Options{From: from, To: to}, nil); err != nil {
		t.Fatalf("First sync failed: %v", err)
	}

	alias := filepath.Join(filepath.Dir(from), "alias")
	if err := os.Symlink(from, alias); err != nil {
		t.Fatal(err)
	}

	result, err := Sync(context.Background(), Options{From: alias, To: to}, nil)
	if err != nil {
		t.Fatalf("Expected no conflict through a symlinked source, got %v", err)
	}
	if result.Changed {
		t.Error("Expected sync through a symlinked source to report no change")
	}
	if result.Unchanged != 4 {
		t.Errorf("Expected 4 unchanged entries, got %d", result.Unchanged)
	}
	assertLink(t, filepath.Join(to, "file"), filepath.Join(from, "file"))
}

func TestSyncLeavesUnrelatedFiles(t *testing.T) {
	from, to := setup(t)
	unrelated := filepath.Join(to, "dir", "mine")
	if err := os.MkdirAll(filepath.Dir(unrelated), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(unrelated, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Sync(context.Background(), Options{From: from, To: to}, nil); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	data, err := os.ReadFile(unrelated)
	if err != nil || string(data) != "keep" {
		t.Errorf("Expected unrelated file to survive, got %q, %v", data, err)
	}
}

func TestSyncConflicts(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, from, to string)
	}{
		{
			name: "regular file",
			prepare: func(t *testing.T, from, to string) {
				if err := os.WriteFile(filepath.Join(to, "file"), []byte("mine"), 0o644); err != nil {
					t.Fatal(err)
				}
			},
		},
		{
			name: "link elsewhere",
			prepare: func(t *testing.T, from, to string) {
				if err := os.Symlink("/nonexistent", filepath.Join(to, "file")); err != nil {
					t.Fatal(err)
				}
			},
		},
		{
			name: "directory",
			prepare: func(t *testing.T, from, to string) {
				if err := os.MkdirAll(filepath.Join(to, "file"), 0o755); err != nil {
					t.Fatal(err)
				}
			},
		},
		{
			name: "parent is a file",
			prepare: func(t *testing.T, from, to string) {
				if err := os.WriteFile(filepath.Join(to, "dir"), []byte("blocker"), 0o644); err != nil {
					t.Fatal(err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to := setup(t)
			tt.prepare(t, from, to)

			result, err := Sync(context.Background(), Options{From: from, To: to}, nil)
			var conflict *ConflictError
			if !errors.As(err, &conflict) {
				t.Fatalf("Expected ConflictError, got %v", err)
			}
			if len(conflict.Paths) != 1 {
				t.Errorf("Expected 1 conflicting path, got %v", conflict.Paths)
			}
			if result.Changed {
				t.Error("Expected no change on conflict")
			}
			if _, err := os.Lstat(filepath.Join(to, ".hidden")); !os.IsNotExist(err) {
				t.Error("Expected no links to be created when a conflict is found")
			}
		})
	}
}

func TestSyncBackup(t *testing.T) {
	from, to := setup(t)
	backup := filepath.Join(t.TempDir(), "backup")
	if err := os.WriteFile(filepath.Join(to, "file"), []byte("mine"), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := Sync(context.Background(), Options{From: from, To: to, BackupDir: backup}, nil)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if result.BackedUp != 1 {
		t.Errorf("Expected 1 backup, got %d", result.BackedUp)
	}
	assertLink(t, filepath.Join(to, "file"), filepath.Join(from, "file"))

	data, err := os.ReadFile(filepath.Join(backup, "file"))
	if err != nil || string(data) != "mine" {
		t.Errorf("Expected backed up contents, got %q, %v", data, err)
	}
}

func TestSyncMissingRoots(t *testing.T) {
	root := t.TempDir()
	existing := t.TempDir()

	tests := []struct {
		name string
		opts Options
		role string
	}{
		{"missing from", Options{From: filepath.Join(root, "nope"), To: existing}, "From"},
		{"missing to", Options{From: existing, To: filepath.Join(root, "nope")}, "To"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Sync(context.Background(), tt.opts, nil)
			var dirErr *DirectoryError
			if !errors.As(err, &dirErr) {
				t.Fatalf("Expected DirectoryError, got %v", err)
			}
			if dirErr.Role != tt.role {
				t.Errorf("Expected role %s, got %s", tt.role, dirErr.Role)
			}
		})
	}
}

func TestApplyCancelled(t *testing.T) {
	from, to := setup(t)
	entries, err := Scan(Options{From: from, To: to})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = Apply(ctx, BuildPlan(entries, ""), nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		state    State
		backup   string
		want     ActionKind
		conflict bool
	}{
		{StateAbsent, "", ActionCreate, false},
		{StateLinked, "", ActionNone, false},
		{StateOtherLink, "", ActionNone, true},
		{StateFile, "", ActionNone, true},
		{StateDirectory, "", ActionNone, true},
		{StateBlocked, "", ActionNone, true},
		{StateFile, "/backup", ActionBackup, false},
		{StateBlocked, "/backup", ActionNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			action, conflict := Decide(Entry{Rel: "a", Source: "/src/a", Dest: "/dst/a", State: tt.state}, tt.backup)
			if conflict != tt.conflict {
				t.Errorf("Expected conflict=%v, got %v", tt.conflict, conflict)
			}
			if !conflict && action.Kind != tt.want {
				t.Errorf("Expected action %v, got %v", tt.want, action.Kind)
			}
		})
	}
}

func TestBuildPlanPending(t *testing.T) {
	plan := BuildPlan([]Entry{{State: StateLinked}, {State: StateLinked}}, "")
	if plan.Pending() {
		t.Error("Expected a plan of satisfied links to have nothing pending")
	}
	plan = BuildPlan([]Entry{{State: StateLinked}, {State: StateAbsent}}, "")
	if !plan.Pending() {
		t.Error("Expected a plan with an absent link to be pending")
	}
}
