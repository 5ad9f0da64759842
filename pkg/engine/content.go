package engine

import (
	"fmt"

	"github.com/recipeforge/recipeforge/pkg/recipe"
)

// DefaultVariantID is the last-resort variant id when neither the
// caller nor the ecosystem names one.
const DefaultVariantID = "default"

// ResolvedContent is the assembled instruction payload for one target.
type ResolvedContent struct {
	// Content is the shared prompt and the resolved fix content, in
	// that order, separated by a blank line.
	Content string

	// VariantID is the variant the fix content came from, empty for
	// ecosystem-agnostic recipes.
	VariantID string
}

// ResolveContent selects the fix content for a target's ecosystem and
// assembles the final instruction payload. Failures are target-level:
// they are recorded against the target and never abort other targets.
func ResolveContent(rec *recipe.Recipe, targetEcosystem, requestedVariant string) (*ResolvedContent, error) {
	if rec.IsEcosystemAgnostic() {
		if rec.BaseFixContent == "" {
			return nil, NewTargetError(CodeMissingFixContent,
				fmt.Sprintf("recipe %s has no base fix content", rec.ID), nil)
		}
		return &ResolvedContent{
			Content: joinContent(rec.PromptContent, rec.BaseFixContent),
		}, nil
	}

	eco := rec.Ecosystem(targetEcosystem)
	if eco == nil {
		return nil, NewTargetError(CodeEcosystemNotSupported,
			fmt.Sprintf("recipe %s does not support ecosystem %q", rec.ID, targetEcosystem), nil)
	}

	variantID := requestedVariant
	if variantID == "" {
		variantID = eco.DefaultVariant
	}
	if variantID == "" {
		variantID = DefaultVariantID
	}

	variant := eco.Variant(variantID)
	if variant == nil {
		return nil, NewTargetError(CodeVariantNotFound,
			fmt.Sprintf("recipe %s has no variant %q for ecosystem %q",
				rec.ID, variantID, targetEcosystem), nil)
	}

	return &ResolvedContent{
		Content:   joinContent(rec.PromptContent, variant.FixContent),
		VariantID: variantID,
	}, nil
}

func joinContent(prompt, fix string) string {
	if prompt == "" {
		return fix
	}
	return prompt + "\n\n" + fix
}
