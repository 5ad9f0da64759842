package workspace

import (
	"path/filepath"
	"strconv"
	"time"
)

// Project is one analyzed sub-project of the workspace.
type Project struct {
	// Path is the project directory, absolute.
	Path string `json:"path" yaml:"path" validate:"required"`

	// RelPath is the workspace-relative path, the key used for
	// per-project state buckets.
	RelPath string `json:"rel_path" yaml:"rel_path" validate:"required"`

	// Ecosystem is the language/tooling environment (e.g. "javascript").
	Ecosystem string `json:"ecosystem" yaml:"ecosystem" validate:"required"`

	// Type classifies the project (e.g. "application", "library").
	Type string `json:"type" yaml:"type"`

	// Framework is the detected framework, if any.
	Framework string `json:"framework,omitempty" yaml:"framework,omitempty"`

	// Language is the primary source language.
	Language string `json:"language" yaml:"language"`
}

// Snapshot is the analyzed inventory of a workspace. It is produced by
// the analyzer and consumed read-only by the engine.
type Snapshot struct {
	// Root is the absolute workspace root directory.
	Root string `json:"root" yaml:"root" validate:"required"`

	// WorkspaceEcosystem is the ecosystem inferred for the root.
	WorkspaceEcosystem string `json:"workspace_ecosystem" yaml:"workspace_ecosystem"`

	// IsMonorepo indicates multiple projects under one root.
	IsMonorepo bool `json:"is_monorepo" yaml:"is_monorepo"`

	// HasWorkspacePackageManager indicates a root-level package manager
	// that manages the sub-projects (e.g. npm/pnpm workspaces).
	HasWorkspacePackageManager bool `json:"has_workspace_package_manager" yaml:"has_workspace_package_manager"`

	// Projects is the ordered project inventory.
	Projects []Project `json:"projects" yaml:"projects"`

	// AnalyzedAt is when the snapshot was produced.
	AnalyzedAt time.Time `json:"analyzed_at" yaml:"analyzed_at"`
}

// Reserved characteristic names. A dependency key "workspace.<name>" or
// "project.<name>" resolves through these.
const (
	CharEcosystem                  = "ecosystem"
	CharIsMonorepo                 = "is_monorepo"
	CharHasWorkspacePackageManager = "has_workspace_package_manager"
	CharType                       = "type"
	CharFramework                  = "framework"
	CharLanguage                   = "language"
	CharPath                       = "path"
)

// ProjectByRelPath returns the project with the given workspace-relative
// path, or nil.
func (s *Snapshot) ProjectByRelPath(rel string) *Project {
	rel = filepath.ToSlash(filepath.Clean(rel))
	for i := range s.Projects {
		if s.Projects[i].RelPath == rel {
			return &s.Projects[i]
		}
	}
	return nil
}

// WorkspaceCharacteristic resolves a reserved workspace characteristic.
// Boolean characteristics are rendered as "true"/"false" so requirement
// comparison stays string-typed throughout.
func (s *Snapshot) WorkspaceCharacteristic(name string) (string, bool) {
	switch name {
	case CharEcosystem:
		if s.WorkspaceEcosystem == "" {
			return "", false
		}
		return s.WorkspaceEcosystem, true
	case CharIsMonorepo:
		return strconv.FormatBool(s.IsMonorepo), true
	case CharHasWorkspacePackageManager:
		return strconv.FormatBool(s.HasWorkspacePackageManager), true
	}
	return "", false
}

// ProjectCharacteristic resolves a reserved project characteristic for
// the project at the given workspace-relative path. The boolean result
// is false when the project or the characteristic is undefined.
func (s *Snapshot) ProjectCharacteristic(rel, name string) (string, bool) {
	proj := s.ProjectByRelPath(rel)
	if proj == nil {
		return "", false
	}
	switch name {
	case CharEcosystem:
		return nonEmpty(proj.Ecosystem)
	case CharType:
		return nonEmpty(proj.Type)
	case CharFramework:
		return nonEmpty(proj.Framework)
	case CharLanguage:
		return nonEmpty(proj.Language)
	case CharPath:
		return nonEmpty(proj.RelPath)
	}
	return "", false
}

func nonEmpty(v string) (string, bool) {
	if v == "" {
		return "", false
	}
	return v, true
}
