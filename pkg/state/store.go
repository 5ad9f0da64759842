package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"
)

// StateFileName is the state artifact, relative to the workspace
// metadata directory.
const StateFileName = "state.json"

// metaDirName mirrors the workspace metadata directory convention.
const metaDirName = ".forge"

// WorkspaceState is the durable fact state for one workspace. Fact
// values are strings or booleans; requirement comparison renders both
// as strings via ValueString.
type WorkspaceState struct {
	// Workspace is the flat workspace-scoped fact map. It includes the
	// synthetic "<recipeId>.applied" markers.
	Workspace map[string]interface{} `json:"workspace"`

	// Projects maps project-relative paths to per-project fact maps,
	// with the same applied-marker convention scoped per project.
	Projects map[string]map[string]interface{} `json:"projects"`
}

// NewWorkspaceState returns an empty state with both buckets allocated.
func NewWorkspaceState() *WorkspaceState {
	return &WorkspaceState{
		Workspace: make(map[string]interface{}),
		Projects:  make(map[string]map[string]interface{}),
	}
}

// Lookup resolves a fact key. The workspace bucket is always consulted;
// when projectPath is non-empty the project bucket is consulted as well
// and takes precedence.
func (s *WorkspaceState) Lookup(key, projectPath string) (interface{}, bool) {
	if projectPath != "" {
		if bucket, ok := s.Projects[projectPath]; ok {
			if v, ok := bucket[key]; ok {
				return v, true
			}
		}
	}
	v, ok := s.Workspace[key]
	return v, ok
}

// IsApplied reports whether the recipe's applied marker is set in the
// bucket for the given scope. An empty projectPath addresses the
// workspace bucket. Unlike Lookup, the marker is only read from the
// bucket matching the scope: a workspace application never marks a
// project as applied.
func (s *WorkspaceState) IsApplied(recipeID, projectPath string) bool {
	key := recipeID + ".applied"
	if projectPath == "" {
		v, ok := s.Workspace[key]
		return ok && ValueString(v) == "true"
	}
	bucket, ok := s.Projects[projectPath]
	if !ok {
		return false
	}
	v, ok := bucket[key]
	return ok && ValueString(v) == "true"
}

// ValueString renders a stored fact value for string comparison.
func ValueString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}

// ReadError reports a state artifact that exists but cannot be parsed.
type ReadError struct {
	// Path is the state artifact location.
	Path string

	// Err is the underlying parse failure.
	Err error
}

// Error implements the error interface.
func (e *ReadError) Error() string {
	return fmt.Sprintf("state store %s is corrupt and was not treated as empty: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *ReadError) Unwrap() error {
	return e.Err
}

// Store persists WorkspaceState for one workspace root.
type Store struct {
	path string
}

// NewStore creates a store for the given workspace root.
func NewStore(root string) *Store {
	return &Store{path: filepath.Join(root, metaDirName, StateFileName)}
}

// Path returns the state artifact location.
func (s *Store) Path() string {
	return s.path
}

// Read loads the current state. A missing artifact yields an empty
// state; an unparsable one yields a *ReadError.
func (s *Store) Read() (*WorkspaceState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewWorkspaceState(), nil
		}
		return nil, fmt.Errorf("failed to read state store %s: %w", s.path, err)
	}

	var st WorkspaceState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, &ReadError{Path: s.path, Err: err}
	}
	if st.Workspace == nil {
		st.Workspace = make(map[string]interface{})
	}
	if st.Projects == nil {
		st.Projects = make(map[string]map[string]interface{})
	}
	return &st, nil
}

// RecordApplied sets the recipe's applied marker plus any reported facts
// in the bucket for the given scope, as one atomic read-modify-write.
// It returns the post-write state so in-run evaluation observes the
// update. An empty projectPath addresses the workspace bucket.
func (s *Store) RecordApplied(recipeID, projectPath string, facts map[string]interface{}) (*WorkspaceState, error) {
	st, err := s.Read()
	if err != nil {
		return nil, err
	}

	bucket := st.Workspace
	if projectPath != "" {
		if st.Projects[projectPath] == nil {
			st.Projects[projectPath] = make(map[string]interface{})
		}
		bucket = st.Projects[projectPath]
	}

	bucket[recipeID+".applied"] = true
	for key, value := range facts {
		bucket[key] = value
	}

	if err := s.Write(st); err != nil {
		return nil, err
	}

	log.Debug().
		Str("recipe", recipeID).
		Str("project", projectPath).
		Int("facts", len(facts)).
		Msg("Recorded applied marker")

	return st, nil
}

// Write persists the state with an atomic durable swap: write to a temp
// file in the same directory, fsync it, rename over the artifact, then
// sync the directory.
func (s *Store) Write(st *WorkspaceState) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, StateFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp state file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to swap state file: %w", err)
	}

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	return nil
}
