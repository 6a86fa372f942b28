package model

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
)

// QuestionType is the kind of a question in the bank.
type QuestionType string

const (
	TypeVeryShortAnswer QuestionType = "VERY_SHORT_ANSWER"
	TypeShortAnswer     QuestionType = "SHORT_ANSWER"
	TypeLongAnswer      QuestionType = "LONG_ANSWER"
	TypeMCQ             QuestionType = "MCQ"
	TypeTrueFalse       QuestionType = "TRUEFALSE"
	TypeCaseStudy       QuestionType = "CASE_STUDY"
)

// QuestionTypes lists all question types in display order.
var QuestionTypes = []QuestionType{
	TypeVeryShortAnswer,
	TypeShortAnswer,
	TypeLongAnswer,
	TypeMCQ,
	TypeTrueFalse,
	TypeCaseStudy,
}

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	for _, qt := range QuestionTypes {
		if qt == t {
			return true
		}
	}
	return false
}

// Level is the difficulty of a question: 1 easy, 2 medium, 3 hard.
type Level int

const (
	LevelEasy   Level = 1
	LevelMedium Level = 2
	LevelHard   Level = 3
)

// CorrectAnswerTags are the only non-empty values accepted for Question.CorrectAnswer.
var CorrectAnswerTags = []string{"option1", "option2", "option3", "option4"}

// Question is a single record of the question bank. JSON names follow the
// backend's wire format, including its historical spellings.
type Question struct {
	ID               string       `json:"_id"`
	Question         string       `json:"question"`
	ModelAnswer      string       `json:"model_answer"`
	GradingCriteria  string       `json:"grading_criteria"`
	Explanation      string       `json:"explaination"`
	QuestionImage    string       `json:"question_image"`
	ExplanationImage string       `json:"explaination_image"`
	QuestionType     QuestionType `json:"question_type"`
	Subject          string       `json:"subject"`
	Topic            string       `json:"topic"`
	Subtopic         string       `json:"subtopic"`
	Level            int          `json:"level"`
	QuestionSet      string       `json:"questionset"`
	Marks            int          `json:"marks"`
	CreatedAt        string       `json:"created_at"`
	UpdatedAt        string       `json:"updated_at,omitempty"`
	Ignore           bool         `json:"ignore"`

	SourceImageURL     string `json:"source_image_url"`
	SourceImageViewURL string `json:"source_image_view_url"`
	SourceImageName    string `json:"source_image_name"`
	SourceFolderName   string `json:"source_folder_name"`
	SourceDirectoryURL string `json:"source_directory_url"`

	Option1       string `json:"option1"`
	Option2       string `json:"option2"`
	Option3       string `json:"option3"`
	Option4       string `json:"option4"`
	CorrectAnswer string `json:"correctanswer"`

	// Extra holds backend fields this client has no name for. They are
	// sent back unchanged on update.
	Extra map[string]json.RawMessage `json:"-"`
}

// IsMCQ reports whether the question is multiple choice.
func (q Question) IsMCQ() bool {
	return q.QuestionType == TypeMCQ
}

// questionFields has Question's fields without its JSON methods.
type questionFields Question

// questionKeys are the JSON names of Question's own fields.
var questionKeys = func() map[string]bool {
	keys := make(map[string]bool)
	t := reflect.TypeOf(Question{})
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name != "" && name != "-" {
			keys[name] = true
		}
	}
	return keys
}()

// UnmarshalJSON decodes the known fields and keeps the rest in Extra.
func (q *Question) UnmarshalJSON(data []byte) error {
	var fields questionFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for k := range all {
		if questionKeys[k] {
			delete(all, k)
		}
	}
	*q = Question(fields)
	q.Extra = nil
	if len(all) > 0 {
		q.Extra = all
	}
	return nil
}

// MarshalJSON encodes the known fields merged with Extra. A known field
// always wins over an extra one of the same name.
func (q Question) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(questionFields(q))
	if err != nil || len(q.Extra) == 0 {
		return data, err
	}
	merged := make(map[string]json.RawMessage, len(q.Extra)+len(questionKeys))
	for k, v := range q.Extra {
		if !questionKeys[k] {
			merged[k] = v
		}
	}
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	return json.Marshal(merged)
}

// SelectionCriteria picks the questions to fetch.
type SelectionCriteria struct {
	Subject string `json:"subject"`
	Topic   string `json:"topic"`
}

// Complete reports whether both subject and topic are set.
func (c SelectionCriteria) Complete() bool {
	return c.Subject != "" && c.Topic != ""
}

// Credentials are submitted to the login endpoint.
type Credentials struct {
	Identifier string `json:"mobilenumberoremail"`
	Password   string `json:"password"`
}

// LoginResponse is the body of a login response. The token itself travels
// in the X-Auth-Session header.
type LoginResponse struct {
	Message string `json:"Message"`
}

// FetchQuestionsRequest is the body of a fetch request.
type FetchQuestionsRequest = SelectionCriteria

// FetchQuestionsResponse is the body of a fetch response.
type FetchQuestionsResponse struct {
	Questions  []Question `json:"questions"`
	TotalCount int        `json:"total_count"`
	Subject    string     `json:"subject"`
	Topic      string     `json:"topic"`
}

// UpdateQuestionRequest carries the full record to the update endpoint.
type UpdateQuestionRequest struct {
	QuestionData Question `json:"question_data"`
}

// UpdateQuestionResponse is the body of an update response.
type UpdateQuestionResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	DocumentID string `json:"document_id"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

// ServerConfig holds runtime parameters of the editor UI set via CLI flags.
type ServerConfig struct {
	BasePath      string // URL prefix for sub-path deployments
	SecureCookies bool   // Set Secure flag on cookies (disable for local dev)
	AssistEnabled bool
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}
