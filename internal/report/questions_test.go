package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveNumQuestions(t *testing.T) {
	cases := map[int]int{0: 2, 10: 2, 99: 2, 100: 2, 150: 3, 500: 3}
	for rows, want := range cases {
		assert.Equal(t, want, ResolveNumQuestions(rows, 50, 2, 3), "rows=%d", rows)
	}
	assert.Equal(t, 2, ResolveNumQuestions(150, 0, 1, 2))
}

func TestParseQuestionsShapes(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		want  []string
	}{
		{"wrapped", `{"questions": ["a?", "b?"]}`, []string{"a?", "b?"}},
		{"array", `["a?", " ", "b?"]`, []string{"a?", "b?"}},
		{"object of strings", `{"q1": "first?", "q2": "second?"}`, []string{"first?", "second?"}},
		{"fenced", "```json\n{\"questions\": [\"a?\"]}\n```", []string{"a?"}},
		{"truncated to limit", `["a", "b", "c", "d"]`, []string{"a", "b", "c"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseQuestions(tc.reply, 3)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseQuestionsMalformed(t *testing.T) {
	for _, reply := range []string{"", "Here are some questions: 1. why", `{"questions": []}`, `[1, 2]`, `{"q": ["nested"]}`} {
		_, err := ParseQuestions(reply, 3)
		assert.ErrorIs(t, err, ErrMalformedQuestions, "reply %q", reply)
	}
}

func TestTranscriptLayout(t *testing.T) {
	got := Transcript(
		Section{Heading: PrimaryHeading, Answers: []Answer{{Number: 1, Question: "p?", Answer: "yes\n"}}},
		Section{Heading: SecondaryHeading, Answers: []Answer{{Number: 1, Question: "s?", Answer: "no"}}},
	)
	want := "## Primary questions\n\n### Question 1: p?\n\nyes\n\n" +
		"## Secondary exploratory questions\n\n### Question 1: s?\n\nno"
	assert.Equal(t, want, got)
}
