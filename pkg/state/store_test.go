package state

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// TestReadMissingArtifact tests that a fresh workspace yields empty state
func TestReadMissingArtifact(t *testing.T) {
	st, err := NewStore(t.TempDir()).Read()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(st.Workspace) != 0 || len(st.Projects) != 0 {
		t.Errorf("expected empty state, got %+v", st)
	}
}

// TestReadCorruptArtifact tests that unparsable state is a hard error
func TestReadCorruptArtifact(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)
	if err := os.MkdirAll(filepath.Dir(store.Path()), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(store.Path(), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("failed to write artifact: %v", err)
	}

	_, err := store.Read()
	if err == nil {
		t.Fatal("corrupt state must not be treated as empty")
	}
	var readErr *ReadError
	if !errors.As(err, &readErr) {
		t.Fatalf("expected *ReadError, got %T: %v", err, err)
	}
	if readErr.Path != store.Path() {
		t.Errorf("ReadError.Path = %q, want %q", readErr.Path, store.Path())
	}
}

// TestRecordAppliedWorkspace tests the workspace bucket marker and facts
func TestRecordAppliedWorkspace(t *testing.T) {
	store := NewStore(t.TempDir())

	st, err := store.RecordApplied("add-linting", "", map[string]interface{}{
		"linting.enabled": true,
	})
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}

	if !st.IsApplied("add-linting", "") {
		t.Error("workspace marker not set in returned state")
	}
	if v, ok := st.Lookup("linting.enabled", ""); !ok || ValueString(v) != "true" {
		t.Errorf("fact not recorded: (%v, %v)", v, ok)
	}

	// The write must be durable, not just in the returned value.
	reread, err := store.Read()
	if err != nil {
		t.Fatalf("re-read failed: %v", err)
	}
	if !reread.IsApplied("add-linting", "") {
		t.Error("workspace marker not persisted")
	}
}

// TestRecordAppliedProject tests per-project bucket isolation
func TestRecordAppliedProject(t *testing.T) {
	store := NewStore(t.TempDir())

	if _, err := store.RecordApplied("add-linting", "services/api", nil); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	st, err := store.Read()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	if !st.IsApplied("add-linting", "services/api") {
		t.Error("project marker not set")
	}
	if st.IsApplied("add-linting", "") {
		t.Error("project application must not mark the workspace")
	}
	if st.IsApplied("add-linting", "services/web") {
		t.Error("project application must not mark sibling projects")
	}
}

// TestIsAppliedScopeSeparation tests that workspace markers never cover projects
func TestIsAppliedScopeSeparation(t *testing.T) {
	store := NewStore(t.TempDir())
	if _, err := store.RecordApplied("add-ci", "", nil); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	st, err := store.Read()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	if st.IsApplied("add-ci", "services/api") {
		t.Error("workspace application must not mark a project as applied")
	}
	if v, ok := st.Lookup("add-ci.applied", "services/api"); !ok || ValueString(v) != "true" {
		t.Errorf("fact lookup should still fall back to the workspace bucket: (%v, %v)", v, ok)
	}
}

// TestLookupProjectPrecedence tests that project facts shadow workspace facts
func TestLookupProjectPrecedence(t *testing.T) {
	st := NewWorkspaceState()
	st.Workspace["framework.config"] = "shared"
	st.Projects["services/api"] = map[string]interface{}{"framework.config": "custom"}

	if v, _ := st.Lookup("framework.config", "services/api"); ValueString(v) != "custom" {
		t.Errorf("project value should win, got %v", v)
	}
	if v, _ := st.Lookup("framework.config", "services/web"); ValueString(v) != "shared" {
		t.Errorf("unknown project should fall back to workspace, got %v", v)
	}
}

// TestWriteReplacesAtomically tests that a rewrite leaves no temp debris
func TestWriteReplacesAtomically(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)

	if _, err := store.RecordApplied("first", "", nil); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if _, err := store.RecordApplied("second", "", nil); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	if err != nil {
		t.Fatalf("failed to read state dir: %v", err)
	}
	for _, e := range entries {
		if e.Name() != StateFileName {
			t.Errorf("unexpected file left behind: %s", e.Name())
		}
	}

	st, err := store.Read()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !st.IsApplied("first", "") || !st.IsApplied("second", "") {
		t.Error("both applications should survive the rewrite")
	}
}

// TestValueString tests stored value rendering
func TestValueString(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{"javascript", "javascript"},
		{true, "true"},
		{false, "false"},
		{nil, ""},
		{float64(3), "3"},
	}
	for _, tt := range tests {
		if got := ValueString(tt.in); got != tt.want {
			t.Errorf("ValueString(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
