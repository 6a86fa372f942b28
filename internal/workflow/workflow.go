// Package workflow implements the question curation workflow: the
// subject/topic selection form, the navigator over fetched questions and the
// editor that owns the draft of the current question.
//
// The types here are not safe for concurrent use on their own; Workspace
// serialises access to them.
package workflow

import (
	"context"
	"time"

	"github.com/pavelanni/qbedit/internal/model"
)

// Repository is the backend seen by the workflow.
type Repository interface {
	FetchQuestions(ctx context.Context, criteria model.SelectionCriteria) (*model.FetchQuestionsResponse, error)
	UpdateQuestion(ctx context.Context, q model.Question) (*model.UpdateQuestionResponse, error)
}

// MessageKind selects how a message is presented.
type MessageKind int

const (
	MessageInfo MessageKind = iota + 1
	MessageSuccess
	MessageError
)

// Message is a user-facing message identified by its translation ID.
// Detail carries untranslated text from the backend, if any.
type Message struct {
	Kind   MessageKind
	ID     string
	Detail string
}

// Empty reports whether there is no message.
func (m Message) Empty() bool { return m.ID == "" }

// Notice is a transient editor notification.
type Notice struct {
	Message
	ExpiresAt time.Time
}

const (
	// SuccessNoticeTTL is how long a save confirmation stays visible.
	SuccessNoticeTTL = 4 * time.Second
	// ErrorNoticeTTL is how long a save failure stays visible.
	ErrorNoticeTTL = 6 * time.Second
)
