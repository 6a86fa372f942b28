package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pavelanni/qbedit/internal/catalog"
	"github.com/pavelanni/qbedit/internal/model"
)

// ErrAssistInProgress is returned when a writing suggestion is already
// being generated.
var ErrAssistInProgress = errors.New("assist already in progress")

// Suggestion is generated text for a draft. Empty fields are left alone.
type Suggestion struct {
	ModelAnswer     string
	GradingCriteria string
	Explanation     string
}

// Assistant drafts text for a question.
type Assistant interface {
	Suggest(ctx context.Context, q model.Question) (Suggestion, error)
}

// Snapshot is a consistent copy of the workspace for rendering.
type Snapshot struct {
	State State

	Subject          string
	Topic            string
	Topics           []string
	Loading          bool
	CanSubmit        bool
	SelectionMessage Message

	Criteria    model.SelectionCriteria
	Index       int // zero-based
	Total       int
	HasNext     bool
	HasPrevious bool

	Draft     model.Question
	Saving    bool
	Assisting bool
	Notice    *Notice
}

// Position returns the one-based position of the current question.
func (s Snapshot) Position() int { return s.Index + 1 }

// Workspace binds a selection form, a navigator and an editor for one
// signed-in user. Backend calls run without the lock held.
type Workspace struct {
	mu        sync.Mutex
	repo      Repository
	selection *Selection
	nav       Navigator
	editor    *Editor
	assisting bool
}

// NewWorkspace creates a workspace in the selecting state. now may be nil.
func NewWorkspace(repo Repository, c *catalog.Catalog, now func() time.Time) *Workspace {
	return &Workspace{
		repo:      repo,
		selection: NewSelection(c),
		editor:    NewEditor(now),
	}
}

// Snapshot returns the current state.
func (w *Workspace) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshot()
}

func (w *Workspace) snapshot() Snapshot {
	s := Snapshot{
		State:            w.nav.State(),
		Subject:          w.selection.Subject(),
		Topic:            w.selection.Topic(),
		Topics:           w.selection.Topics(),
		Loading:          w.selection.Loading(),
		CanSubmit:        w.selection.CanSubmit(),
		SelectionMessage: w.selection.Message(),
		Criteria:         w.nav.Criteria(),
		Index:            w.nav.Index(),
		Total:            w.nav.Len(),
		HasNext:          w.nav.HasNext(),
		HasPrevious:      w.nav.HasPrevious(),
		Saving:           w.editor.Saving(),
		Assisting:        w.assisting,
		Notice:           w.editor.Notice(),
	}
	if w.nav.State() == StateEditing {
		s.Draft = w.editor.Draft()
	}
	return s
}

// SetSubject changes the selected subject.
func (w *Workspace) SetSubject(code string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.selection.SetSubject(code)
}

// Select sets subject and topic in one step, as submitted by a form.
func (w *Workspace) Select(subject, topic string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if subject != w.selection.Subject() {
		w.selection.SetSubject(subject)
	}
	return w.selection.SetTopic(topic)
}

// Submit fetches questions for the current selection and, when any are
// found, enters the editor at the first one.
func (w *Workspace) Submit(ctx context.Context) error {
	w.mu.Lock()
	criteria, err := w.selection.begin()
	w.mu.Unlock()
	if err != nil {
		return err
	}

	resp, err := w.repo.FetchQuestions(ctx, criteria)

	w.mu.Lock()
	defer w.mu.Unlock()
	questions, err := w.selection.finish(resp, err)
	if err != nil {
		return err
	}
	if err := w.nav.Enter(criteria, questions); err != nil {
		return err
	}
	w.loadCurrent()
	return nil
}

// Next moves to the next question. It reports false at the end of the list.
func (w *Workspace) Next() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.nav.Next() {
		return false
	}
	w.loadCurrent()
	return true
}

// Previous moves to the previous question. It reports false at the start.
func (w *Workspace) Previous() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.nav.Previous() {
		return false
	}
	w.loadCurrent()
	return true
}

// Back returns to the selection form, keeping the chosen subject and topic.
func (w *Workspace) Back() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nav.Back()
	w.editor.Unload()
}

// Reset clears everything, as after logout.
func (w *Workspace) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nav.Back()
	w.editor.Unload()
	w.selection.Reset()
}

// Edit applies fn to the editor while holding the lock.
func (w *Workspace) Edit(fn func(e *Editor) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.nav.State() != StateEditing {
		return ErrNoDraft
	}
	return fn(w.editor)
}

// Save sends the draft to the backend. On success the saved record replaces
// its entry in the list, even when the user has moved on meanwhile: by
// position while the same list is shown, by id otherwise.
func (w *Workspace) Save(ctx context.Context) error {
	w.mu.Lock()
	if w.nav.State() != StateEditing {
		w.mu.Unlock()
		return ErrNoDraft
	}
	sent, err := w.editor.BeginSave()
	gen, index := w.nav.Generation(), w.nav.Index()
	w.mu.Unlock()
	if err != nil {
		return err
	}

	resp, err := w.repo.UpdateQuestion(ctx, sent)

	w.mu.Lock()
	defer w.mu.Unlock()
	saved, ok := w.editor.FinishSave(sent, resp, err)
	if !ok {
		if err == nil {
			err = errServerRejected(resp)
		}
		return err
	}
	w.nav.ReplaceAt(gen, index, sent.ID, saved)
	return nil
}

// Assist asks a for text suggestions for the draft and merges the result
// into the draft if the same question is still being edited.
func (w *Workspace) Assist(ctx context.Context, a Assistant) error {
	w.mu.Lock()
	if w.nav.State() != StateEditing {
		w.mu.Unlock()
		return ErrNoDraft
	}
	if w.assisting {
		w.mu.Unlock()
		return ErrAssistInProgress
	}
	w.assisting = true
	draft, gen := w.editor.Draft(), w.editor.Generation()
	w.mu.Unlock()

	s, err := a.Suggest(ctx, draft)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.assisting = false
	if w.editor.Generation() != gen {
		return err
	}
	if err != nil {
		w.editor.SetNotice(Message{Kind: MessageError, ID: "AssistFailed"}, ErrorNoticeTTL)
		return err
	}
	if s.ModelAnswer != "" {
		w.editor.SetText(FieldModelAnswer, s.ModelAnswer)
	}
	if s.GradingCriteria != "" {
		w.editor.SetText(FieldGradingCriteria, s.GradingCriteria)
	}
	if s.Explanation != "" {
		w.editor.SetText(FieldExplanation, s.Explanation)
	}
	w.editor.SetNotice(Message{Kind: MessageSuccess, ID: "AssistDone"}, SuccessNoticeTTL)
	return nil
}

// Questions returns a copy of the fetched list.
func (w *Workspace) Questions() []model.Question {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nav.Questions()
}

// loadCurrent shows the question at the current position. Moving always
// reloads, so unsaved edits are dropped even between questions sharing an id.
func (w *Workspace) loadCurrent() {
	if q, ok := w.nav.Current(); ok {
		w.editor.Show(q)
	}
}
