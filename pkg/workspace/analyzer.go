package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// AnalysisFileName is the snapshot artifact, relative to the workspace
// metadata directory.
const AnalysisFileName = "analysis.yaml"

// MetaDirName is the workspace metadata directory at the root.
const MetaDirName = ".forge"

// ecosystemMarkers maps marker files to the ecosystem they indicate.
// Order matters for workspace ecosystem inference when several markers
// coexist at the root.
var ecosystemMarkers = []struct {
	file      string
	ecosystem string
	language  string
}{
	{"package.json", "javascript", "javascript"},
	{"pyproject.toml", "python", "python"},
	{"requirements.txt", "python", "python"},
	{"setup.py", "python", "python"},
	{"go.mod", "go", "go"},
	{"Cargo.toml", "rust", "rust"},
	{"pom.xml", "java", "java"},
	{"build.gradle", "java", "java"},
	{"Gemfile", "ruby", "ruby"},
}

// skipDirs are directories never descended into during analysis.
var skipDirs = map[string]bool{
	".git":         true,
	".forge":       true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
	"__pycache__":  true,
	".venv":        true,
}

// maxAnalysisDepth bounds the directory walk below the root.
const maxAnalysisDepth = 4

// Analyzer inventories a workspace and persists the snapshot.
type Analyzer struct {
	root string
}

// NewAnalyzer creates an analyzer for the given workspace root.
func NewAnalyzer(root string) *Analyzer {
	return &Analyzer{root: root}
}

// AnalysisPath returns the well-known snapshot location for a root.
func AnalysisPath(root string) string {
	return filepath.Join(root, MetaDirName, AnalysisFileName)
}

// EnsureSnapshot returns the persisted snapshot, regenerating it via a
// fresh analysis when the artifact is absent or unparsable.
func (a *Analyzer) EnsureSnapshot(ctx context.Context) (*Snapshot, error) {
	snap, err := ReadSnapshot(a.root)
	if err == nil {
		return snap, nil
	}
	if !os.IsNotExist(err) {
		log.Warn().Err(err).Str("root", a.root).Msg("Analysis snapshot unreadable, regenerating")
	}
	return a.Analyze(ctx)
}

// ReadSnapshot reads the persisted snapshot for a root without running
// an analysis.
func ReadSnapshot(root string) (*Snapshot, error) {
	data, err := os.ReadFile(AnalysisPath(root))
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse analysis snapshot: %w", err)
	}
	if snap.Root == "" {
		return nil, fmt.Errorf("analysis snapshot is missing the workspace root")
	}
	return &snap, nil
}

// Analyze inventories the workspace and persists the resulting snapshot.
func (a *Analyzer) Analyze(ctx context.Context) (*Snapshot, error) {
	start := time.Now()

	root, err := filepath.Abs(a.root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", root)
	}

	snap := &Snapshot{
		Root:       root,
		AnalyzedAt: time.Now(),
	}

	snap.WorkspaceEcosystem = detectEcosystemAt(root)

	projects, err := a.discoverProjects(ctx, root)
	if err != nil {
		return nil, err
	}
	snap.Projects = projects

	if snap.WorkspaceEcosystem == "" {
		snap.WorkspaceEcosystem = dominantEcosystem(projects)
	}
	snap.IsMonorepo = len(projects) > 1 || hasWorkspaceManifest(root)
	snap.HasWorkspacePackageManager = hasWorkspaceManifest(root)

	if err := a.save(snap); err != nil {
		return nil, err
	}

	log.Info().
		Str("root", root).
		Str("ecosystem", snap.WorkspaceEcosystem).
		Bool("monorepo", snap.IsMonorepo).
		Int("projects", len(snap.Projects)).
		Dur("duration", time.Since(start)).
		Msg("Workspace analysis completed")

	return snap, nil
}

// discoverProjects walks the tree looking for package-manager markers.
func (a *Analyzer) discoverProjects(ctx context.Context, root string) ([]Project, error) {
	var projects []Project

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDirs[d.Name()] {
			return filepath.SkipDir
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel != "." && strings.Count(filepath.ToSlash(rel), "/") >= maxAnalysisDepth {
			return filepath.SkipDir
		}
		if rel == "." {
			// The root is only a project when nothing nested is found;
			// handled after the walk.
			return nil
		}

		eco, lang := detectEcosystemWithLanguage(path)
		if eco == "" {
			return nil
		}

		projects = append(projects, Project{
			Path:      path,
			RelPath:   filepath.ToSlash(rel),
			Ecosystem: eco,
			Type:      classifyProject(path, eco),
			Framework: detectFramework(path, eco),
			Language:  lang,
		})
		// A project directory is a leaf for analysis purposes.
		return filepath.SkipDir
	})
	if err != nil {
		return nil, fmt.Errorf("workspace walk failed: %w", err)
	}

	if len(projects) == 0 {
		if eco, lang := detectEcosystemWithLanguage(root); eco != "" {
			projects = append(projects, Project{
				Path:      root,
				RelPath:   ".",
				Ecosystem: eco,
				Type:      classifyProject(root, eco),
				Framework: detectFramework(root, eco),
				Language:  lang,
			})
		}
	}

	sort.Slice(projects, func(i, j int) bool { return projects[i].RelPath < projects[j].RelPath })
	return projects, nil
}

func (a *Analyzer) save(snap *Snapshot) error {
	dir := filepath.Join(snap.Root, MetaDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}
	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode analysis snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, AnalysisFileName), data, 0o644); err != nil {
		return fmt.Errorf("failed to write analysis snapshot: %w", err)
	}
	return nil
}

func detectEcosystemAt(dir string) string {
	eco, _ := detectEcosystemWithLanguage(dir)
	return eco
}

func detectEcosystemWithLanguage(dir string) (string, string) {
	for _, m := range ecosystemMarkers {
		if _, err := os.Stat(filepath.Join(dir, m.file)); err == nil {
			return m.ecosystem, m.language
		}
	}
	return "", ""
}

// hasWorkspaceManifest reports a root-level package manager that spans
// sub-projects (npm/pnpm/yarn workspaces, go workspaces).
func hasWorkspaceManifest(root string) bool {
	for _, f := range []string{"pnpm-workspace.yaml", "go.work", "lerna.json"} {
		if _, err := os.Stat(filepath.Join(root, f)); err == nil {
			return true
		}
	}
	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if err != nil {
		return false
	}
	var pkg struct {
		Workspaces json.RawMessage `json:"workspaces"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return false
	}
	return len(pkg.Workspaces) > 0
}

// classifyProject applies a coarse application/library split.
func classifyProject(dir, eco string) string {
	switch eco {
	case "javascript":
		data, err := os.ReadFile(filepath.Join(dir, "package.json"))
		if err != nil {
			return "application"
		}
		var pkg struct {
			Private bool              `json:"private"`
			Main    string            `json:"main"`
			Bin     json.RawMessage   `json:"bin"`
			Scripts map[string]string `json:"scripts"`
		}
		if json.Unmarshal(data, &pkg) == nil {
			if len(pkg.Bin) > 0 || pkg.Scripts["start"] != "" {
				return "application"
			}
			if pkg.Main != "" {
				return "library"
			}
		}
		return "application"
	case "go":
		if _, err := os.Stat(filepath.Join(dir, "main.go")); err == nil {
			return "application"
		}
		if _, err := os.Stat(filepath.Join(dir, "cmd")); err == nil {
			return "application"
		}
		return "library"
	default:
		return "application"
	}
}

// knownFrameworkDeps maps dependency names to framework identifiers.
var knownFrameworkDeps = map[string]string{
	"react":   "react",
	"next":    "nextjs",
	"vue":     "vue",
	"express": "express",
	"svelte":  "svelte",
}

// detectFramework performs a shallow framework probe. Best effort: an
// empty result just means the project.framework characteristic is
// undefined.
func detectFramework(dir, eco string) string {
	switch eco {
	case "javascript":
		data, err := os.ReadFile(filepath.Join(dir, "package.json"))
		if err != nil {
			return ""
		}
		var pkg struct {
			Dependencies map[string]string `json:"dependencies"`
		}
		if err := json.Unmarshal(data, &pkg); err != nil {
			return ""
		}
		for dep, fw := range knownFrameworkDeps {
			if _, ok := pkg.Dependencies[dep]; ok {
				return fw
			}
		}
	case "python":
		for _, f := range []string{"requirements.txt", "pyproject.toml"} {
			data, err := os.ReadFile(filepath.Join(dir, f))
			if err != nil {
				continue
			}
			content := strings.ToLower(string(data))
			for _, fw := range []string{"django", "flask", "fastapi"} {
				if strings.Contains(content, fw) {
					return fw
				}
			}
		}
	}
	return ""
}

func dominantEcosystem(projects []Project) string {
	counts := make(map[string]int)
	for _, p := range projects {
		counts[p.Ecosystem]++
	}
	best, bestCount := "", 0
	for eco, n := range counts {
		if n > bestCount || (n == bestCount && eco < best) {
			best, bestCount = eco, n
		}
	}
	return best
}
