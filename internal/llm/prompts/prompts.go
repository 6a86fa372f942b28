package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/qbedit/internal/model"
)

//go:embed *.txt
var embedded embed.FS

// FS is the embedded set of prompt templates.
var FS fs.FS = embedded

var questionTextRegex = regexp.MustCompile(`(?i)</?\s*question-text\b[^>]*>`)

// Kind selects what the assistant drafts.
type Kind string

const (
	// KindAnswer drafts a model answer and grading criteria.
	KindAnswer Kind = "answer"
	// KindExplanation drafts the explanation of an MCQ.
	KindExplanation Kind = "explanation"
)

// KindFor returns the prompt kind for a question type.
func KindFor(t model.QuestionType) Kind {
	if t == model.TypeMCQ {
		return KindExplanation
	}
	return KindAnswer
}

const maxTextRunes = 10000

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[Kind]*template.Template
)

// Data holds template data for a prompt.
type Data struct {
	SubjectName   string
	Topic         string
	Type          model.QuestionType
	Marks         int
	Question      string
	ModelAnswer   string
	Explanation   string
	Option1       string
	Option2       string
	Option3       string
	Option4       string
	CorrectAnswer string
	ImageAttached bool
}

// Load parses the prompt templates from fsys. It runs only once.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		templates = make(map[Kind]*template.Template)
		for _, k := range []Kind{KindAnswer, KindExplanation} {
			file := string(k) + ".txt"
			content, err := fs.ReadFile(fsys, file)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", file, err)
				return
			}
			tmpl, err := template.New(string(k)).Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", file, err)
				return
			}
			templates[k] = tmpl
		}
	})
	return loadErr
}

// Build renders the prompt of the given kind for q.
func Build(kind Kind, subjectName string, q model.Question) (string, error) {
	if templates == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := templates[kind]
	if !ok {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("invalid prompt kind: " + string(kind))
	}

	data := Data{
		SubjectName:   subjectName,
		Topic:         q.Topic,
		Type:          q.QuestionType,
		Marks:         q.Marks,
		Question:      sanitize(q.Question),
		ModelAnswer:   sanitize(q.ModelAnswer),
		Explanation:   sanitize(q.Explanation),
		Option1:       sanitize(q.Option1),
		Option2:       sanitize(q.Option2),
		Option3:       sanitize(q.Option3),
		Option4:       sanitize(q.Option4),
		CorrectAnswer: q.CorrectAnswer,
		ImageAttached: q.QuestionImage != "",
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sanitize strips delimiter tags from user text and caps its length.
func sanitize(s string) string {
	s = questionTextRegex.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > maxTextRunes {
		s = string([]rune(s)[:maxTextRunes]) + "\n\n[truncated]"
	}
	return s
}
