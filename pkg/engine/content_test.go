package engine

import (
	"testing"

	"github.com/recipeforge/recipeforge/pkg/recipe"
)

func variantRecipe() *recipe.Recipe {
	return &recipe.Recipe{
		ID:            "add-linting",
		Category:      "quality",
		Level:         recipe.LevelWorkspacePreferred,
		PromptContent: "Configure linting.",
		Ecosystems: []recipe.Ecosystem{
			{
				ID:             "javascript",
				DefaultVariant: "eslint",
				Variants: []recipe.Variant{
					{ID: "eslint", FixContent: "Install eslint."},
					{ID: "biome", FixContent: "Install biome."},
				},
			},
			{
				ID: "python",
				Variants: []recipe.Variant{
					{ID: "default", FixContent: "Install ruff."},
				},
			},
		},
	}
}

// TestResolveContentAgnostic tests the base fix content path
func TestResolveContentAgnostic(t *testing.T) {
	content, err := ResolveContent(agnosticRecipe(recipe.LevelWorkspacePreferred), "anything", "")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if content.Content != "Add editorconfig.\n\nCreate the file." {
		t.Errorf("content = %q, want prompt and fix separated by a blank line", content.Content)
	}
	if content.VariantID != "" {
		t.Errorf("agnostic content should carry no variant, got %q", content.VariantID)
	}
}

// TestResolveContentRequestedVariant tests explicit variant selection
func TestResolveContentRequestedVariant(t *testing.T) {
	content, err := ResolveContent(variantRecipe(), "javascript", "biome")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if content.VariantID != "biome" || content.Content != "Configure linting.\n\nInstall biome." {
		t.Errorf("unexpected content: %+v", content)
	}
}

// TestResolveContentDefaultVariant tests the ecosystem default fallback
func TestResolveContentDefaultVariant(t *testing.T) {
	content, err := ResolveContent(variantRecipe(), "javascript", "")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if content.VariantID != "eslint" {
		t.Errorf("variant = %q, want the ecosystem default", content.VariantID)
	}
}

// TestResolveContentConventionalDefault tests the "default" id fallback
func TestResolveContentConventionalDefault(t *testing.T) {
	content, err := ResolveContent(variantRecipe(), "python", "")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if content.VariantID != DefaultVariantID {
		t.Errorf("variant = %q, want %q", content.VariantID, DefaultVariantID)
	}
}

// TestResolveContentVariantNotFound tests the unknown-variant failure
func TestResolveContentVariantNotFound(t *testing.T) {
	_, err := ResolveContent(variantRecipe(), "javascript", "prettier")
	if code := codeOf(t, err); code != CodeVariantNotFound {
		t.Errorf("error code = %q, want %q", code, CodeVariantNotFound)
	}
	if IsRunLevel(err) {
		t.Error("variant failures are target-level")
	}
}

// TestResolveContentEcosystemNotSupported tests the unsupported target failure
func TestResolveContentEcosystemNotSupported(t *testing.T) {
	_, err := ResolveContent(variantRecipe(), "rust", "")
	if code := codeOf(t, err); code != CodeEcosystemNotSupported {
		t.Errorf("error code = %q, want %q", code, CodeEcosystemNotSupported)
	}
}

// TestResolveContentMissingBaseFix tests the agnostic content failure
func TestResolveContentMissingBaseFix(t *testing.T) {
	rec := agnosticRecipe(recipe.LevelWorkspaceOnly)
	rec.BaseFixContent = ""

	_, err := ResolveContent(rec, "", "")
	if code := codeOf(t, err); code != CodeMissingFixContent {
		t.Errorf("error code = %q, want %q", code, CodeMissingFixContent)
	}
}

// TestResolveContentEmptyPrompt tests that fix content stands alone
func TestResolveContentEmptyPrompt(t *testing.T) {
	rec := variantRecipe()
	rec.PromptContent = ""

	content, err := ResolveContent(rec, "python", "")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if content.Content != "Install ruff." {
		t.Errorf("content = %q, want the bare fix content", content.Content)
	}
}
