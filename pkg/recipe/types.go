package recipe

import (
	"fmt"
)

// Level is a recipe's declared applicability granularity.
type Level string

const (
	// LevelWorkspaceOnly applies exactly once, at the workspace root.
	LevelWorkspaceOnly Level = "workspace-only"

	// LevelProjectOnly applies per sub-project, never at the root.
	LevelProjectOnly Level = "project-only"

	// LevelWorkspacePreferred applies at the workspace root when possible
	// and additionally to projects the workspace application cannot cover.
	LevelWorkspacePreferred Level = "workspace-preferred"
)

// IsValid reports whether the level is one of the declared granularities.
func (l Level) IsValid() bool {
	switch l {
	case LevelWorkspaceOnly, LevelProjectOnly, LevelWorkspacePreferred:
		return true
	}
	return false
}

// Variant is an ecosystem-specific alternative implementation of a
// recipe's fix content.
type Variant struct {
	// ID is the variant identifier (e.g. "default", "pnpm", "poetry").
	ID string `json:"id" yaml:"id" validate:"required"`

	// FixPath is the recipe-relative path the fix content was loaded from.
	FixPath string `json:"fix_path" yaml:"fix" validate:"required"`

	// FixContent is the loaded fix instruction text.
	FixContent string `json:"-" yaml:"-"`
}

// Ecosystem declares recipe support for one language/tooling environment.
type Ecosystem struct {
	// ID is the ecosystem identifier (e.g. "javascript", "python").
	ID string `json:"id" yaml:"id" validate:"required"`

	// DefaultVariant is the variant used when none is requested.
	DefaultVariant string `json:"default_variant,omitempty" yaml:"default_variant"`

	// Variants are the available fix content alternatives.
	Variants []Variant `json:"variants" yaml:"variants" validate:"min=1,dive"`
}

// Variant returns the variant with the given id, or nil.
func (e *Ecosystem) Variant(id string) *Variant {
	for i := range e.Variants {
		if e.Variants[i].ID == id {
			return &e.Variants[i]
		}
	}
	return nil
}

// Requirement is a single dependency assertion: the resolved value of
// Key must compare string-equal to Equals.
type Requirement struct {
	// Key is the parsed dependency key.
	Key DepKey `json:"key"`

	// Equals is the required value, compared as a string.
	Equals string `json:"equals"`
}

// Recipe is an immutable, loaded unit of automation.
type Recipe struct {
	// ID is the unique recipe slug, kebab-case by convention.
	ID string `json:"id" validate:"required"`

	// Category is the grouping slug (e.g. "security", "ci").
	Category string `json:"category" validate:"required"`

	// Summary is a one-line human description passed to the executor.
	Summary string `json:"summary,omitempty"`

	// Level is the applicability granularity.
	Level Level `json:"level" validate:"required"`

	// Ecosystems is the ordered set of supported ecosystems. An empty
	// set marks the recipe ecosystem-agnostic: it carries a single base
	// fix content instead of per-ecosystem variants.
	Ecosystems []Ecosystem `json:"ecosystems,omitempty"`

	// Provides lists the fact keys this recipe claims to produce after
	// successful application. Engine-owned namespaces are rejected.
	Provides []string `json:"provides,omitempty"`

	// Requires is the ordered list of dependency assertions.
	Requires []Requirement `json:"requires,omitempty"`

	// PromptContent is the shared instruction preamble.
	PromptContent string `json:"-"`

	// BaseFixContent is the ecosystem-agnostic fix content. Only
	// consulted when Ecosystems is empty.
	BaseFixContent string `json:"-"`

	// Dir is the directory the recipe was loaded from, when loaded from
	// disk. Informational only.
	Dir string `json:"-"`
}

// IsEcosystemAgnostic reports whether the recipe declares no ecosystems
// and uses its base fix content everywhere.
func (r *Recipe) IsEcosystemAgnostic() bool {
	return len(r.Ecosystems) == 0
}

// SupportsEcosystem reports whether the recipe declares support for the
// given ecosystem. Agnostic recipes support every ecosystem.
func (r *Recipe) SupportsEcosystem(id string) bool {
	if r.IsEcosystemAgnostic() {
		return true
	}
	return r.Ecosystem(id) != nil
}

// Ecosystem returns the declared ecosystem entry with the given id, or nil.
func (r *Recipe) Ecosystem(id string) *Ecosystem {
	for i := range r.Ecosystems {
		if r.Ecosystems[i].ID == id {
			return &r.Ecosystems[i]
		}
	}
	return nil
}

// AppliedKey returns the engine-owned state key marking this recipe as
// applied at a scope.
func (r *Recipe) AppliedKey() string {
	return r.ID + AppliedSuffix
}

// ValidationError describes one structural problem with a recipe.
type ValidationError struct {
	// Field is the recipe field the error refers to.
	Field string `json:"field,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

func (e ValidationError) String() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationResult is the outcome of structural validation.
type ValidationResult struct {
	// Valid is true iff Errors is empty.
	Valid bool `json:"valid"`

	// Errors lists every structural problem found.
	Errors []ValidationError `json:"errors,omitempty"`
}

// Validate performs structural validation of the loaded recipe. It never
// consults workspace state; it only checks the recipe's own shape.
func (r *Recipe) Validate() *ValidationResult {
	var errs []ValidationError
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if r.ID == "" {
		add("id", "recipe id is required")
	}
	if r.Category == "" {
		add("category", "recipe category is required")
	}
	if !r.Level.IsValid() {
		add("level", "level must be one of %q, %q, %q",
			LevelWorkspaceOnly, LevelProjectOnly, LevelWorkspacePreferred)
	}

	for _, key := range r.Provides {
		if key == "" {
			add("provides", "empty fact key")
			continue
		}
		if IsReservedFactKey(key) {
			add("provides", "fact key %q uses an engine-owned namespace", key)
		}
	}

	for i, req := range r.Requires {
		if req.Key.Raw == "" {
			add(fmt.Sprintf("requires[%d]", i), "requirement key is required")
		}
		if req.Equals == "" {
			add(fmt.Sprintf("requires[%d]", i), "requirement equals value is required")
		}
	}

	if r.IsEcosystemAgnostic() {
		if r.BaseFixContent == "" {
			add("fix", "ecosystem-agnostic recipe has no base fix content")
		}
	} else {
		seen := make(map[string]bool, len(r.Ecosystems))
		for _, eco := range r.Ecosystems {
			field := fmt.Sprintf("ecosystems[%s]", eco.ID)
			if eco.ID == "" {
				add("ecosystems", "ecosystem id is required")
				continue
			}
			if seen[eco.ID] {
				add(field, "duplicate ecosystem")
			}
			seen[eco.ID] = true
			if len(eco.Variants) == 0 {
				add(field, "ecosystem declares no variants")
				continue
			}
			if eco.DefaultVariant != "" && eco.Variant(eco.DefaultVariant) == nil {
				add(field, "default variant %q is not declared", eco.DefaultVariant)
			}
			ids := make(map[string]bool, len(eco.Variants))
			for _, v := range eco.Variants {
				if v.ID == "" {
					add(field, "variant id is required")
					continue
				}
				if ids[v.ID] {
					add(field, "duplicate variant %q", v.ID)
				}
				ids[v.ID] = true
			}
		}
	}

	return &ValidationResult{Valid: len(errs) == 0, Errors: errs}
}
