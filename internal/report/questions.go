package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/KaramelBytes/finai-cli/internal/ai"
	"github.com/KaramelBytes/finai-cli/internal/prompts"
)

// ErrMalformedQuestions is returned when the question generator's reply
// cannot be read as a list of questions.
var ErrMalformedQuestions = errors.New("malformed question list")

// ResolveNumQuestions derives how many exploratory questions to ask for a
// dataset of rows rows: rows/perQuestion clamped to [lo, hi].
func ResolveNumQuestions(rows, perQuestion, lo, hi int) int {
	if perQuestion <= 0 {
		perQuestion = DefaultRowsPerQuestion
	}
	k := rows / perQuestion
	if k < lo {
		k = lo
	}
	if k > hi {
		k = hi
	}
	return k
}

// ParseQuestions reads a model reply into at most limit questions. Accepted
// shapes are {"questions": [...]}, a bare array of strings and an object of
// strings, optionally inside a Markdown code fence.
func ParseQuestions(reply string, limit int) ([]string, error) {
	body := stripFence(reply)
	if body == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrMalformedQuestions)
	}
	var qs []string
	if strings.HasPrefix(body, "{") {
		var wrapped struct {
			Questions []string `json:"questions"`
		}
		if err := json.Unmarshal([]byte(body), &wrapped); err == nil {
			qs = clean(wrapped.Questions)
		}
	}
	if len(qs) == 0 {
		decoded, err := prompts.DecodeStrings([]byte(body))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedQuestions, err)
		}
		qs = decoded
	}
	if len(qs) == 0 {
		return nil, fmt.Errorf("%w: no questions", ErrMalformedQuestions)
	}
	if limit > 0 && len(qs) > limit {
		qs = qs[:limit]
	}
	return qs, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func clean(in []string) []string {
	out := make([]string, 0, len(in))
	for _, q := range in {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}

// generateQuestions asks the model for k exploratory questions in JSON mode.
func (g *Generator) generateQuestions(ctx context.Context, rt ai.Runtime, in *input, k int) ([]string, error) {
	system, err := g.prompts.Render(prompts.GenQuestionsSystem, nil)
	if err != nil {
		return nil, err
	}
	user, err := g.prompts.Render(prompts.GenQuestionsUser, prompts.QuestionsData{
		Summary:      in.summary.String(),
		Head:         in.table.Head(10),
		NumQuestions: k,
	})
	if err != nil {
		return nil, err
	}
	resp, err := rt.Generate(ctx, ai.GenerateRequest{
		Model: g.opt.Model,
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: system},
			{Role: ai.RoleUser, Content: user},
		},
		MaxTokens:      g.opt.MaxTokens,
		Temperature:    g.opt.Temperature,
		ResponseFormat: ai.JSONResponse,
	})
	if err != nil {
		return nil, fmt.Errorf("generate questions: %w", err)
	}
	msg, err := resp.Message()
	if err != nil {
		return nil, fmt.Errorf("generate questions: %w", err)
	}
	qs, err := ParseQuestions(msg.Content, k)
	if err != nil {
		return nil, err
	}
	g.log.Info("questions generated", zap.Int("requested", k), zap.Int("received", len(qs)))
	return qs, nil
}
