// Package prompts holds the prompt templates and the primary question list.
// Built-in copies are embedded in the binary; any file can be overridden from
// a directory on disk with the same name.
package prompts

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
)

//go:embed templates/*.tmpl primary_questions.json
var builtin embed.FS

// Template names.
const (
	GenQuestionsSystem = "gen_questions_system"
	GenQuestionsUser   = "gen_questions_user"
	QuestionContext    = "question_context"
	QASystem           = "qa_system"
	PlottingSystem     = "plotting_system"
	PlottingContext    = "plotting_context"
	ExecutiveSystem    = "executive_system"
	ExecutiveUser      = "executive_user"
	Chatbot            = "chatbot"
)

// Names lists every template the pipeline renders.
func Names() []string {
	return []string{
		GenQuestionsSystem, GenQuestionsUser, QuestionContext, QASystem,
		PlottingSystem, PlottingContext, ExecutiveSystem, ExecutiveUser, Chatbot,
	}
}

// QuestionsData feeds gen_questions_user.
type QuestionsData struct {
	Summary      string
	Head         string
	NumQuestions int
}

// ContextData feeds question_context and plotting_context.
type ContextData struct {
	Head     string
	Describe string
	Dtypes   string
	Question string
}

// ExecutiveData feeds executive_user.
type ExecutiveData struct {
	Head    string
	Summary string
	Report  string
}

// ChatData feeds chatbot.
type ChatData struct {
	Columns string
	Query   string
}

// Set resolves templates from an optional override directory, falling back
// to the embedded copies. Parsed templates are cached.
type Set struct {
	dir         string
	primaryFile string

	mu    sync.Mutex
	cache map[string]*template.Template
}

// New returns a Set. Empty arguments mean embedded defaults only.
func New(dir, primaryFile string) *Set {
	return &Set{dir: dir, primaryFile: primaryFile, cache: map[string]*template.Template{}}
}

// Default is the embedded-only set.
func Default() *Set { return New("", "") }

// Source returns the raw template text for name.
func (s *Set) Source(name string) (string, error) {
	file := name + ".tmpl"
	if s.dir != "" {
		b, err := os.ReadFile(filepath.Join(s.dir, file))
		if err == nil {
			return string(b), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("read prompt %s: %w", name, err)
		}
	}
	b, err := builtin.ReadFile("templates/" + file)
	if err != nil {
		return "", fmt.Errorf("unknown prompt %q", name)
	}
	return string(b), nil
}

func (s *Set) lookup(name string) (*template.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.cache[name]; ok {
		return t, nil
	}
	src, err := s.Source(name)
	if err != nil {
		return nil, err
	}
	t, err := template.New(name).Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse prompt %s: %w", name, err)
	}
	s.cache[name] = t
	return t, nil
}

// Render executes the named template with data.
func (s *Set) Render(name string, data any) (string, error) {
	t, err := s.lookup(name)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// PrimaryQuestions returns the fixed questions asked of every dataset.
func (s *Set) PrimaryQuestions() ([]string, error) {
	var raw []byte
	var err error
	if s.primaryFile != "" {
		raw, err = os.ReadFile(s.primaryFile)
		if err != nil {
			return nil, fmt.Errorf("read primary questions: %w", err)
		}
	} else {
		raw, err = builtin.ReadFile("primary_questions.json")
		if err != nil {
			return nil, err
		}
	}
	qs, err := DecodeStrings(raw)
	if err != nil {
		return nil, fmt.Errorf("primary questions: %w", err)
	}
	return qs, nil
}

// DecodeStrings reads a JSON array of strings, or an object whose values are
// strings, keeping document order. Blank entries are dropped.
func DecodeStrings(raw []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	delim, ok := tok.(json.Delim)
	if !ok || (delim != '[' && delim != '{') {
		return nil, errors.New("expected a JSON array or object")
	}
	var out []string
	for dec.More() {
		if delim == '{' {
			if _, err := dec.Token(); err != nil {
				return nil, fmt.Errorf("decode key: %w", err)
			}
		}
		var v string
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode value: %w", err)
		}
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return out, nil
}
