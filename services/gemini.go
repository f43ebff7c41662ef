package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"debatesite/internal/debate"
	"debatesite/models"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

func initGemini(ctx context.Context, apiKey string) (*genai.Client, error) {
	config := &genai.ClientConfig{Backend: genai.BackendGeminiAPI}
	if apiKey != "" {
		config.APIKey = apiKey
	}
	return genai.NewClient(ctx, config)
}

func cleanModelOutput(text string) string {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```JSON")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}

// generateFunc sends a prompt to a model and returns its text answer.
type generateFunc func(ctx context.Context, prompt string) (string, error)

// GeminiJudge adjudicates completed debates with a Gemini model.
type GeminiJudge struct {
	generate generateFunc
	timeout  time.Duration
	logger   *slog.Logger
}

// NewGeminiJudge creates a judge backed by the Gemini API.
func NewGeminiJudge(ctx context.Context, apiKey, model string, timeout time.Duration, logger *slog.Logger) (*GeminiJudge, error) {
	client, err := initGemini(ctx, apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	if model == "" {
		model = defaultGeminiModel
	}
	generate := func(ctx context.Context, prompt string) (string, error) {
		resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
		if err != nil {
			return "", err
		}
		return cleanModelOutput(resp.Text()), nil
	}
	return newJudge(generate, timeout, logger), nil
}

func newJudge(generate generateFunc, timeout time.Duration, logger *slog.Logger) *GeminiJudge {
	return &GeminiJudge{
		generate: generate,
		timeout:  timeout,
		logger:   logger.With("component", "judge"),
	}
}

type verdict struct {
	Winner string `json:"winner"`
	Reason string `json:"reason"`
}

// Judge returns the winning side, or an empty side for a draw.
func (j *GeminiJudge) Judge(ctx context.Context, t debate.Transcript) (models.Side, error) {
	if j == nil || j.generate == nil {
		return "", ErrJudgeUnavailable
	}
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	text, err := j.generate(ctx, judgePrompt(t))
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	side, v, err := parseVerdict(text)
	if err != nil {
		return "", err
	}
	j.logger.Info("debate judged", "session_id", t.SessionID, "winner", v.Winner, "reason", v.Reason)
	return side, nil
}

func judgePrompt(t debate.Transcript) string {
	var transcript strings.Builder
	for _, e := range t.Log {
		role := "For"
		if e.Side == models.SideAgainst {
			role = "Against"
		}
		if e.Skipped {
			fmt.Fprintf(&transcript, "%s (turn %d): [turn skipped]\n", role, e.TurnIndex+1)
			continue
		}
		fmt.Fprintf(&transcript, "%s (turn %d): %s\n", role, e.TurnIndex+1, e.Content)
	}

	return fmt.Sprintf(
		`Act as a professional debate judge. Analyze the following debate on the motion "%s" and decide the winner.

Judgment Criteria:
- Clarity of position and persuasiveness
- Quality of reasoning: validity, relevance, logical flow
- Responsiveness to the opponent's arguments
- Skipped turns count against the side that skipped them

Required Output Format:
{"winner": "for" | "against" | "draw", "reason": "text"}

Debate Transcript:
%s
Provide ONLY the JSON output without any additional text.`,
		t.Topic, transcript.String())
}

func parseVerdict(text string) (models.Side, verdict, error) {
	var v verdict
	if err := json.Unmarshal([]byte(cleanModelOutput(text)), &v); err != nil {
		return "", v, fmt.Errorf("%w: %v", ErrUnparsableVerdict, err)
	}
	switch strings.ToLower(strings.TrimSpace(v.Winner)) {
	case "for":
		return models.SideFor, v, nil
	case "against":
		return models.SideAgainst, v, nil
	case "draw", "none", "":
		return "", v, nil
	default:
		return "", v, fmt.Errorf("%w: unknown winner %q", ErrUnparsableVerdict, v.Winner)
	}
}
