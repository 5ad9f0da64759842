package executor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-sonnet-4-5"

	// defaultMaxTokens bounds a single fix response.
	defaultMaxTokens = 8192

	// executeMaxElapsed caps total retry time per target.
	executeMaxElapsed = 2 * time.Minute
)

// errAPIKeyRequired is returned when no API key is available.
var errAPIKeyRequired = errors.New("API key required")

// ClaudeConfig configures the Claude-backed executor.
type ClaudeConfig struct {
	// APIKey authenticates against the API. The ANTHROPIC_API_KEY
	// environment variable takes precedence.
	APIKey string

	// Model overrides the default model.
	Model string

	// MaxTokens overrides the default response budget.
	MaxTokens int64
}

// ClaudeExecutor delegates fix application to the Claude Messages API.
type ClaudeExecutor struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewClaudeExecutor creates the API-backed executor.
func NewClaudeExecutor(cfg ClaudeConfig) (*ClaudeExecutor, error) {
	apiKey := cfg.APIKey
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY or configure an api key", errAPIKeyRequired)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &ClaudeExecutor{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.Model(model),
		maxTokens: maxTokens,
	}, nil
}

// Execute implements Executor. Transient API failures are retried with
// exponential backoff; a definitive API error is returned as a failed
// outcome so the run can continue with the next target.
func (e *ClaudeExecutor) Execute(ctx context.Context, req *Request) (*Outcome, error) {
	prompt := e.renderPrompt(req)

	params := anthropic.MessageNewParams{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: e.renderSystemPrompt(req)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	var message *anthropic.Message
	var inputTokens, outputTokens int64

	operation := func() error {
		started := time.Now()
		resp, err := e.client.Messages.New(ctx, params)
		if err != nil {
			if !isRetryable(err) {
				return backoff.Permanent(err)
			}
			log.Warn().Err(err).
				Str("recipe", req.RecipeID).
				Str("target", req.TargetDescription()).
				Msg("Execution request failed, retrying")
			return err
		}
		log.Debug().
			Str("recipe", req.RecipeID).
			Dur("duration", time.Since(started)).
			Int64("input_tokens", resp.Usage.InputTokens).
			Int64("output_tokens", resp.Usage.OutputTokens).
			Msg("Execution request completed")
		message = resp
		inputTokens = resp.Usage.InputTokens
		outputTokens = resp.Usage.OutputTokens
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = executeMaxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &Outcome{
			Success:   false,
			Error:     fmt.Sprintf("execution service failed: %v", err),
			CostUnits: 0,
		}, nil
	}

	text, err := firstText(message)
	if err != nil {
		return &Outcome{
			Success:   false,
			Error:     err.Error(),
			CostUnits: costUnits(inputTokens, outputTokens),
		}, nil
	}

	return &Outcome{
		Success:   true,
		Output:    text,
		CostUnits: costUnits(inputTokens, outputTokens),
	}, nil
}

// renderSystemPrompt describes the execution role and target metadata.
func (e *ClaudeExecutor) renderSystemPrompt(req *Request) string {
	var b strings.Builder
	b.WriteString("You apply automated fix recipes to software workspaces. ")
	b.WriteString("Apply the fix instructions exactly; do not invent work beyond them.\n\n")
	fmt.Fprintf(&b, "Recipe: %s\n", req.RecipeID)
	if req.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", req.Summary)
	}
	fmt.Fprintf(&b, "Target: %s\n", req.TargetDescription())
	fmt.Fprintf(&b, "Workspace root: %s\n", req.WorkspaceRoot)
	fmt.Fprintf(&b, "Monorepo: %t\n", req.IsMonorepo)
	if req.VariantID != "" {
		fmt.Fprintf(&b, "Variant: %s\n", req.VariantID)
	}
	return b.String()
}

// renderPrompt is the user-turn payload: the assembled instruction content.
func (e *ClaudeExecutor) renderPrompt(req *Request) string {
	return req.Content
}

// firstText extracts the first text block from a response.
func firstText(message *anthropic.Message) (string, error) {
	if message == nil || len(message.Content) == 0 {
		return "", fmt.Errorf("unexpected response format: no content blocks")
	}
	content := message.Content[0]
	if content.Type != "text" {
		return "", fmt.Errorf("unexpected response format: not a text block (type=%s)", content.Type)
	}
	return content.Text, nil
}

// costUnits derives a cost figure from token usage. Output tokens are
// weighted heavier to track actual pricing shape.
func costUnits(inputTokens, outputTokens int64) float64 {
	return float64(inputTokens)/1000.0 + float64(outputTokens)*5/1000.0
}

// isRetryable reports whether an API failure is worth retrying.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}

	return false
}
