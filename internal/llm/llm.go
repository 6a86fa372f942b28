package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pavelanni/qbedit/internal/llm/prompts"
	"github.com/pavelanni/qbedit/internal/model"
	"github.com/pavelanni/qbedit/internal/workflow"

	openai "github.com/sashabaranov/go-openai"
)

// ErrEmptySuggestion is returned when the model answered with nothing usable.
var ErrEmptySuggestion = errors.New("empty suggestion")

// SubjectNamer resolves a subject code to its display name.
type SubjectNamer interface {
	Name(code string) string
}

type suggestion struct {
	ModelAnswer     string `json:"model_answer"`
	GradingCriteria string `json:"grading_criteria"`
	Explanation     string `json:"explanation"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api      *openai.Client
	model    string
	subjects SubjectNamer
}

// New creates a new LLM client and loads the embedded prompt templates.
func New(baseURL, apiKey, modelName string, subjects SubjectNamer) (*Client, error) {
	if err := prompts.Load(prompts.FS); err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:      openai.NewClientWithConfig(config),
		model:    modelName,
		subjects: subjects,
	}, nil
}

// Suggest drafts text for q: an explanation for MCQs, a model answer with
// grading criteria for every other type.
func (c *Client) Suggest(ctx context.Context, q model.Question) (workflow.Suggestion, error) {
	kind := prompts.KindFor(q.QuestionType)
	name := q.Subject
	if c.subjects != nil {
		name = c.subjects.Name(q.Subject)
	}
	prompt, err := prompts.Build(kind, name, q)
	if err != nil {
		return workflow.Suggestion{}, fmt.Errorf("build prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.3,
	})
	if err != nil {
		return workflow.Suggestion{}, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return workflow.Suggestion{}, fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "kind", kind, "question", q.ID, "raw", raw)

	var s suggestion
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return workflow.Suggestion{}, fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}

	out := workflow.Suggestion{Explanation: s.Explanation}
	if kind == prompts.KindAnswer {
		out = workflow.Suggestion{ModelAnswer: s.ModelAnswer, GradingCriteria: s.GradingCriteria}
	}
	if out == (workflow.Suggestion{}) {
		return out, ErrEmptySuggestion
	}
	return out, nil
}
