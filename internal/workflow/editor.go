package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/qbedit/internal/client"
	"github.com/pavelanni/qbedit/internal/model"
	"github.com/pavelanni/qbedit/internal/timefmt"
)

var (
	// ErrSaveInProgress is returned when a save is already running.
	ErrSaveInProgress = errors.New("save already in progress")
	// ErrNoDraft is returned when the editor holds no question.
	ErrNoDraft = errors.New("no question loaded")
	// ErrInvalidValue is returned for an enumerated field given a value
	// outside its set.
	ErrInvalidValue = errors.New("invalid value")
)

// Editor owns the draft of the current question.
type Editor struct {
	draft  model.Question
	loaded bool
	saving bool
	notice *Notice
	now    func() time.Time

	// gen counts draft replacements; saveGen is gen when the running save
	// began.
	gen     uint64
	saveGen uint64
}

// NewEditor creates an editor. now may be nil; it defaults to time.Now.
func NewEditor(now func() time.Time) *Editor {
	if now == nil {
		now = time.Now
	}
	return &Editor{now: now}
}

// Load resets the draft to q when q is a different question than the one
// held. Loading the same question again keeps unsaved edits. Questions
// without an id are never taken to be the same.
func (e *Editor) Load(q model.Question) {
	if e.loaded && q.ID != "" && e.draft.ID == q.ID {
		return
	}
	e.Show(q)
}

// Show replaces the draft with q unconditionally, discarding unsaved edits.
func (e *Editor) Show(q model.Question) {
	e.draft = q
	e.loaded = true
	e.notice = nil
	e.gen++
}

// Generation changes every time the draft is replaced.
func (e *Editor) Generation() uint64 { return e.gen }

// Unload discards the draft.
func (e *Editor) Unload() {
	e.draft = model.Question{}
	e.loaded = false
	e.notice = nil
	e.gen++
}

// Draft returns a copy of the draft.
func (e *Editor) Draft() model.Question { return e.draft }

// Loaded reports whether a question is held.
func (e *Editor) Loaded() bool { return e.loaded }

// Saving reports whether a save is in flight.
func (e *Editor) Saving() bool { return e.saving }

// Visible reports whether a text field is shown for the draft's type.
func (e *Editor) Visible(f TextField) bool {
	return f.Visible(e.draft.QuestionType)
}

// CorrectAnswerVisible reports whether the correct answer selector is shown.
func (e *Editor) CorrectAnswerVisible() bool {
	return e.draft.IsMCQ()
}

// SetText writes a text field verbatim.
func (e *Editor) SetText(f TextField, v string) {
	if p := f.ref(&e.draft); p != nil {
		*p = v
	}
}

// SetNumber writes an integer field, coercing unparseable input to 0.
func (e *Editor) SetNumber(f NumberField, raw string) {
	if p := f.ref(&e.draft); p != nil {
		*p = coerceInt(raw)
	}
}

// SetQuestionType changes the type. Fields hidden by the new type keep
// their values.
func (e *Editor) SetQuestionType(t model.QuestionType) error {
	if !t.Valid() {
		return fmt.Errorf("%w: question type %q", ErrInvalidValue, t)
	}
	e.draft.QuestionType = t
	return nil
}

// SetCorrectAnswer picks one of the option tags. Empty clears it.
func (e *Editor) SetCorrectAnswer(tag string) error {
	if tag == "" {
		e.draft.CorrectAnswer = ""
		return nil
	}
	for _, t := range model.CorrectAnswerTags {
		if t == tag {
			e.draft.CorrectAnswer = tag
			return nil
		}
	}
	return fmt.Errorf("%w: correct answer %q", ErrInvalidValue, tag)
}

// SetImage stores an encoded image payload. Empty clears the slot.
func (e *Editor) SetImage(f ImageField, payload string) {
	if p := f.ref(&e.draft); p != nil {
		*p = payload
	}
}

// BeginSave marks a save as started and returns the snapshot to send.
func (e *Editor) BeginSave() (model.Question, error) {
	if !e.loaded {
		return model.Question{}, ErrNoDraft
	}
	if e.saving {
		return model.Question{}, ErrSaveInProgress
	}
	e.saving = true
	e.saveGen = e.gen
	return e.draft, nil
}

// FinishSave records the outcome of saving sent. On success it returns the
// reconciled record, sent with the server's id and timestamp adopted, and
// true. On failure the draft is left as it is. The draft and notice are
// only touched while the editor still holds the question that was sent.
func (e *Editor) FinishSave(sent model.Question, resp *model.UpdateQuestionResponse, err error) (model.Question, bool) {
	e.saving = false
	holds := e.loaded && (e.gen == e.saveGen || (sent.ID != "" && e.draft.ID == sent.ID))
	if err == nil && (resp == nil || !resp.Success) {
		err = errServerRejected(resp)
	}
	if err != nil {
		if holds {
			e.setNotice(saveFailure(err), ErrorNoticeTTL)
		}
		return model.Question{}, false
	}

	saved := sent
	if resp.DocumentID != "" {
		saved.ID = resp.DocumentID
	}
	saved.UpdatedAt = resp.UpdatedAt
	if saved.UpdatedAt == "" {
		saved.UpdatedAt = timefmt.Now(e.now())
	}

	if holds {
		e.draft.ID = saved.ID
		e.draft.UpdatedAt = saved.UpdatedAt
		e.setNotice(Message{Kind: MessageSuccess, ID: "SaveSuccess"}, SuccessNoticeTTL)
	}
	return saved, true
}

// Save runs a complete save against repo. It is the synchronous form of the
// BeginSave/FinishSave pair that Workspace drives.
func (e *Editor) Save(ctx context.Context, repo Repository) (model.Question, error) {
	sent, err := e.BeginSave()
	if err != nil {
		return model.Question{}, err
	}
	resp, err := repo.UpdateQuestion(ctx, sent)
	saved, ok := e.FinishSave(sent, resp, err)
	if !ok {
		if err == nil {
			err = errServerRejected(resp)
		}
		return model.Question{}, err
	}
	return saved, nil
}

// Notice returns the current notification, or nil once it has expired.
func (e *Editor) Notice() *Notice {
	if e.notice == nil {
		return nil
	}
	if !e.now().Before(e.notice.ExpiresAt) {
		e.notice = nil
		return nil
	}
	n := *e.notice
	return &n
}

// SetNotice shows a message for ttl.
func (e *Editor) SetNotice(m Message, ttl time.Duration) {
	e.setNotice(m, ttl)
}

func (e *Editor) setNotice(m Message, ttl time.Duration) {
	e.notice = &Notice{Message: m, ExpiresAt: e.now().Add(ttl)}
}

func saveFailure(err error) Message {
	var cerr *client.Error
	switch {
	case client.IsAuth(err):
		return Message{Kind: MessageError, ID: "SessionExpired"}
	case client.IsServer(err):
		m := Message{Kind: MessageError, ID: "SaveFailed"}
		if errors.As(err, &cerr) {
			m.Detail = cerr.Message
		}
		return m
	default:
		return Message{Kind: MessageError, ID: "SaveError"}
	}
}

func errServerRejected(resp *model.UpdateQuestionResponse) error {
	msg := ""
	if resp != nil {
		msg = resp.Message
	}
	return &client.Error{Kind: client.KindServer, Op: "update", Message: msg}
}
