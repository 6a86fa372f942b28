package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/pavelanni/qbedit/internal/catalog"
	"github.com/pavelanni/qbedit/internal/client"
	"github.com/pavelanni/qbedit/internal/model"
	"github.com/pavelanni/qbedit/internal/timefmt"
)

var (
	// ErrIncompleteSelection is returned when subject or topic is missing.
	ErrIncompleteSelection = errors.New("subject and topic are required")
	// ErrUnknownTopic is returned when a topic is not listed for the subject.
	ErrUnknownTopic = errors.New("topic not available for subject")
	// ErrFetchInProgress is returned when a fetch is already running.
	ErrFetchInProgress = errors.New("fetch already in progress")
	// ErrNoQuestions is the empty-result outcome of a fetch. It is not a failure.
	ErrNoQuestions = errors.New("no questions found")
)

// Selection is the subject/topic form.
type Selection struct {
	catalog *catalog.Catalog
	subject string
	topic   string
	topics  []string
	loading bool
	message Message
}

// NewSelection creates an empty form backed by the reference catalog.
func NewSelection(c *catalog.Catalog) *Selection {
	return &Selection{catalog: c}
}

// SetSubject changes the subject, clears the topic and reloads the topic
// list from the catalog.
func (s *Selection) SetSubject(code string) {
	s.subject = code
	s.topic = ""
	s.topics = s.catalog.Topics(code)
	s.message = Message{}
}

// SetTopic picks a topic from the current list. Empty clears it.
func (s *Selection) SetTopic(topic string) error {
	if topic == "" {
		s.topic = ""
		return nil
	}
	for _, t := range s.topics {
		if t == topic {
			s.topic = topic
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
}

func (s *Selection) Subject() string  { return s.subject }
func (s *Selection) Topic() string    { return s.topic }
func (s *Selection) Loading() bool    { return s.loading }
func (s *Selection) Message() Message { return s.message }

// Topics returns the allowed topics for the current subject.
func (s *Selection) Topics() []string {
	out := make([]string, len(s.topics))
	copy(out, s.topics)
	return out
}

// Criteria returns the current choice.
func (s *Selection) Criteria() model.SelectionCriteria {
	return model.SelectionCriteria{Subject: s.subject, Topic: s.topic}
}

// CanSubmit reports whether the submit control is enabled.
func (s *Selection) CanSubmit() bool {
	return s.Criteria().Complete() && !s.loading
}

// Reset returns the form to its initial state.
func (s *Selection) Reset() {
	*s = Selection{catalog: s.catalog}
}

// begin marks a fetch as started and returns the criteria to fetch with.
func (s *Selection) begin() (model.SelectionCriteria, error) {
	if s.loading {
		return model.SelectionCriteria{}, ErrFetchInProgress
	}
	c := s.Criteria()
	if !c.Complete() {
		return c, ErrIncompleteSelection
	}
	s.loading = true
	s.message = Message{}
	return c, nil
}

// finish records the outcome of a fetch. It returns the questions, with
// timestamps normalised to +05:30, only for a non-empty result.
func (s *Selection) finish(resp *model.FetchQuestionsResponse, err error) ([]model.Question, error) {
	s.loading = false
	if err != nil {
		s.message = fetchFailure(err)
		return nil, err
	}
	if resp == nil || len(resp.Questions) == 0 {
		s.message = Message{Kind: MessageInfo, ID: "NoQuestionsFound"}
		return nil, ErrNoQuestions
	}
	questions := make([]model.Question, len(resp.Questions))
	for i, q := range resp.Questions {
		q.CreatedAt = timefmt.ToIST(q.CreatedAt)
		q.UpdatedAt = timefmt.ToIST(q.UpdatedAt)
		questions[i] = q
	}
	return questions, nil
}

// Submit runs a complete fetch. It is the synchronous form of the
// begin/finish pair that Workspace drives.
func (s *Selection) Submit(ctx context.Context, repo Repository) ([]model.Question, error) {
	c, err := s.begin()
	if err != nil {
		return nil, err
	}
	resp, err := repo.FetchQuestions(ctx, c)
	return s.finish(resp, err)
}

func fetchFailure(err error) Message {
	if client.IsAuth(err) {
		return Message{Kind: MessageError, ID: "SessionExpired"}
	}
	return Message{Kind: MessageError, ID: "FetchFailed"}
}
