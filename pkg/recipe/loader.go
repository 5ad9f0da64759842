package recipe

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// ManifestName is the file a recipe directory is identified by.
const ManifestName = "recipe.yaml"

// manifest is the YAML document at the root of a recipe directory.
// Content fields reference files relative to the directory; the loader
// inlines them into the Recipe.
type manifest struct {
	ID         string           `yaml:"id" validate:"required"`
	Category   string           `yaml:"category" validate:"required"`
	Summary    string           `yaml:"summary"`
	Level      Level            `yaml:"level" validate:"required,oneof=workspace-only project-only workspace-preferred"`
	Provides   []string         `yaml:"provides"`
	Requires   []requireEntry   `yaml:"requires" validate:"dive"`
	Prompt     string           `yaml:"prompt" validate:"required"`
	Fix        string           `yaml:"fix"`
	Ecosystems []ecosystemEntry `yaml:"ecosystems" validate:"dive"`
}

type requireEntry struct {
	Key    string `yaml:"key" validate:"required"`
	Equals string `yaml:"equals" validate:"required"`
}

type ecosystemEntry struct {
	ID             string         `yaml:"id" validate:"required"`
	DefaultVariant string         `yaml:"default_variant"`
	Variants       []variantEntry `yaml:"variants" validate:"min=1,dive"`
}

type variantEntry struct {
	ID  string `yaml:"id" validate:"required"`
	Fix string `yaml:"fix" validate:"required"`
}

// Loader loads recipes from a collection directory, one recipe per
// subdirectory named after its id.
type Loader struct {
	dir      string
	validate *validator.Validate
}

// NewLoader creates a loader rooted at the given collection directory.
func NewLoader(dir string) *Loader {
	return &Loader{
		dir:      dir,
		validate: validator.New(),
	}
}

// Load loads a single recipe from a directory containing recipe.yaml.
func (l *Loader) Load(dir string) (*Recipe, error) {
	manifestPath := filepath.Join(dir, ManifestName)
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipe manifest %s: %w", manifestPath, err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse recipe manifest %s: %w", manifestPath, err)
	}

	if err := l.validate.Struct(&m); err != nil {
		return nil, fmt.Errorf("invalid recipe manifest %s: %w", manifestPath, err)
	}

	rec := &Recipe{
		ID:       m.ID,
		Category: m.Category,
		Summary:  m.Summary,
		Level:    m.Level,
		Provides: m.Provides,
		Dir:      dir,
	}

	for _, req := range m.Requires {
		rec.Requires = append(rec.Requires, Requirement{
			Key:    ParseDepKey(req.Key),
			Equals: req.Equals,
		})
	}

	rec.PromptContent, err = l.readContent(dir, m.Prompt)
	if err != nil {
		return nil, fmt.Errorf("recipe %s: %w", m.ID, err)
	}

	if len(m.Ecosystems) == 0 {
		if m.Fix == "" {
			return nil, fmt.Errorf("recipe %s: ecosystem-agnostic recipe declares no fix content", m.ID)
		}
		rec.BaseFixContent, err = l.readContent(dir, m.Fix)
		if err != nil {
			return nil, fmt.Errorf("recipe %s: %w", m.ID, err)
		}
		return rec, nil
	}

	for _, eco := range m.Ecosystems {
		entry := Ecosystem{
			ID:             eco.ID,
			DefaultVariant: eco.DefaultVariant,
		}
		for _, v := range eco.Variants {
			content, err := l.readContent(dir, v.Fix)
			if err != nil {
				return nil, fmt.Errorf("recipe %s ecosystem %s: %w", m.ID, eco.ID, err)
			}
			entry.Variants = append(entry.Variants, Variant{
				ID:         v.ID,
				FixPath:    v.Fix,
				FixContent: content,
			})
		}
		rec.Ecosystems = append(rec.Ecosystems, entry)
	}

	return rec, nil
}

// Find loads the recipe with the given id from the collection directory.
func (l *Loader) Find(id string) (*Recipe, error) {
	dir := filepath.Join(l.dir, id)
	if _, err := os.Stat(filepath.Join(dir, ManifestName)); err != nil {
		return nil, fmt.Errorf("recipe %q not found in %s: %w", id, l.dir, err)
	}
	rec, err := l.Load(dir)
	if err != nil {
		return nil, err
	}
	if rec.ID != id {
		log.Warn().
			Str("directory", id).
			Str("recipe_id", rec.ID).
			Msg("Recipe directory name does not match recipe id")
	}
	return rec, nil
}

// List loads every recipe in the collection directory, sorted by id.
// Directories without a manifest are skipped; a broken manifest fails
// the listing.
func (l *Loader) List() ([]*Recipe, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipe collection %s: %w", l.dir, err)
	}

	var recipes []*Recipe
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(l.dir, e.Name())
		if _, err := os.Stat(filepath.Join(dir, ManifestName)); err != nil {
			continue
		}
		rec, err := l.Load(dir)
		if err != nil {
			return nil, err
		}
		recipes = append(recipes, rec)
	}

	sort.Slice(recipes, func(i, j int) bool { return recipes[i].ID < recipes[j].ID })
	return recipes, nil
}

// readContent reads a content file declared in the manifest, rejecting
// paths that escape the recipe directory.
func (l *Loader) readContent(dir, rel string) (string, error) {
	clean := filepath.Clean(rel)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("content path %q escapes the recipe directory", rel)
	}
	data, err := os.ReadFile(filepath.Join(dir, clean))
	if err != nil {
		return "", fmt.Errorf("failed to read content file %s: %w", rel, err)
	}
	return string(data), nil
}
