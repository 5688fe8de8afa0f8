package report

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/KaramelBytes/finai-cli/internal/agent"
	"github.com/KaramelBytes/finai-cli/internal/prompts"
)

// Transcript headings.
const (
	PrimaryHeading   = "Primary questions"
	SecondaryHeading = "Secondary exploratory questions"
)

// Answer is one answered question with its displayed number.
type Answer struct {
	Number   int    `json:"number"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Section is a titled group of answers.
type Section struct {
	Heading string   `json:"heading"`
	Answers []Answer `json:"answers"`
}

// Markdown renders the section as a level-2 heading with one level-3 heading
// per answer.
func (s Section) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", s.Heading)
	for _, a := range s.Answers {
		fmt.Fprintf(&b, "### Question %d: %s\n\n%s\n\n", a.Number, a.Question, strings.TrimSpace(a.Answer))
	}
	return b.String()
}

// Transcript joins sections in order.
func Transcript(sections ...Section) string {
	var b strings.Builder
	for _, s := range sections {
		b.WriteString(s.Markdown())
	}
	return strings.TrimSpace(b.String())
}

// answerQuestions runs the Q&A agent over questions. A question that fails
// every attempt is skipped and the following ones are renumbered.
func (g *Generator) answerQuestions(ctx context.Context, qa *agent.Agent, in *input, heading string, questions []string) (Section, int, error) {
	sec := Section{Heading: heading}
	skipped := 0
	for i, q := range questions {
		answer, err := g.answerOne(ctx, qa, in, q)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return sec, skipped, ctxErr
			}
			skipped++
			g.log.Warn("question skipped", zap.String("section", heading), zap.String("question", q), zap.Error(err))
			continue
		}
		sec.Answers = append(sec.Answers, Answer{Number: i + 1 - skipped, Question: q, Answer: answer})
	}
	return sec, skipped, nil
}

func (g *Generator) answerOne(ctx context.Context, qa *agent.Agent, in *input, question string) (string, error) {
	system, err := g.prompts.Render(prompts.QASystem, nil)
	if err != nil {
		return "", err
	}
	user, err := g.prompts.Render(prompts.QuestionContext, prompts.ContextData{
		Head:     in.head,
		Describe: in.describe,
		Dtypes:   in.dtypes,
		Question: question,
	})
	if err != nil {
		return "", err
	}
	var lastErr error
	for attempt := 1; attempt <= g.opt.QAAttempts; attempt++ {
		res, err := qa.Run(ctx, system, user)
		if err == nil && strings.TrimSpace(res.Answer) != "" {
			g.log.Debug("question answered", zap.String("question", question), zap.Int("attempt", attempt),
				zap.Int("tool_calls", res.ToolCalls))
			return res.Answer, nil
		}
		if err == nil {
			err = fmt.Errorf("empty answer")
		}
		lastErr = err
		g.log.Debug("question attempt failed", zap.String("question", question), zap.Int("attempt", attempt), zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}
