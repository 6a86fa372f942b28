package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/qbedit/internal/media"
	"github.com/pavelanni/qbedit/internal/model"
	"github.com/pavelanni/qbedit/internal/workflow"
)

// edits is one editor form submission, decoded before the workspace lock
// is taken.
type edits struct {
	text          map[workflow.TextField]string
	numbers       map[workflow.NumberField]string
	questionType  *model.QuestionType
	correctAnswer *string
	images        map[workflow.ImageField]string
	imageErr      error
	action        string
}

func parseEdits(r *http.Request) (*edits, error) {
	e := &edits{
		text:    make(map[workflow.TextField]string),
		numbers: make(map[workflow.NumberField]string),
		images:  make(map[workflow.ImageField]string),
		action:  r.PostFormValue("action"),
	}
	for _, f := range workflow.TextFields {
		if v, ok := r.PostForm[f.Name()]; ok && len(v) > 0 {
			e.text[f] = v[0]
		}
	}
	for _, f := range workflow.NumberFields {
		if v, ok := r.PostForm[f.Name()]; ok && len(v) > 0 {
			e.numbers[f] = v[0]
		}
	}
	if v, ok := r.PostForm["question_type"]; ok && len(v) > 0 {
		t := model.QuestionType(v[0])
		e.questionType = &t
	}
	if v, ok := r.PostForm["correctanswer"]; ok && len(v) > 0 {
		e.correctAnswer = &v[0]
	}

	for _, slot := range []workflow.ImageField{workflow.ImageQuestion, workflow.ImageExplanation} {
		payload, err := uploadedImage(r, "image_"+slot.Name())
		if err != nil {
			e.imageErr = err
			continue
		}
		if payload != "" {
			e.images[slot] = payload
		}
	}

	if kind, name, ok := strings.Cut(e.action, ":"); ok {
		slot, known := workflow.ImageFieldByName(name)
		if !known {
			return nil, fmt.Errorf("unknown image slot %q", name)
		}
		switch kind {
		case "clear":
			e.images[slot] = ""
		case "paste":
			payload, err := media.FromClipboard(r.PostFormValue("paste_" + name))
			if err != nil {
				e.imageErr = err
			} else {
				e.images[slot] = payload
			}
		default:
			return nil, fmt.Errorf("unknown action %q", e.action)
		}
	}
	return e, nil
}

// uploadedImage encodes the file posted under field, or returns "" when no
// file was chosen.
func uploadedImage(r *http.Request, field string) (string, error) {
	if r.MultipartForm == nil {
		return "", nil
	}
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", field, err)
	}
	defer file.Close()
	if header.Size == 0 {
		return "", nil
	}
	payload, err := media.FromReader(file)
	if err != nil {
		slog.Info("rejected image upload", "field", field, "filename", header.Filename, "error", err)
		return "", err
	}
	return payload, nil
}

func (e *edits) apply(ed *workflow.Editor) error {
	// The type goes first so that visibility of the other fields is judged
	// against the submitted type.
	if e.questionType != nil {
		if err := ed.SetQuestionType(*e.questionType); err != nil {
			return err
		}
	}
	for f, v := range e.text {
		ed.SetText(f, v)
	}
	for f, v := range e.numbers {
		ed.SetNumber(f, v)
	}
	if e.correctAnswer != nil {
		if err := ed.SetCorrectAnswer(*e.correctAnswer); err != nil {
			return err
		}
	}
	for slot, payload := range e.images {
		ed.SetImage(slot, payload)
	}
	if e.imageErr != nil {
		ed.SetNotice(imageMessage(e.imageErr), workflow.ErrorNoticeTTL)
	}
	return nil
}

func imageMessage(err error) workflow.Message {
	id := "ImageInvalid"
	switch {
	case errors.Is(err, media.ErrTooLarge):
		id = "ImageTooLarge"
	case errors.Is(err, media.ErrNoClipboardImage):
		id = "NoClipboardImage"
	}
	return workflow.Message{Kind: workflow.MessageError, ID: id}
}

// handleImage serves an image slot of the current draft.
func (h *Handler) handleImage(w http.ResponseWriter, r *http.Request) {
	slot, ok := workflow.ImageFieldByName(chi.URLParam(r, "slot"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	payload := slot.Get(h.ws.Snapshot().Draft)
	if payload == "" {
		http.NotFound(w, r)
		return
	}
	mime, data, err := media.Decode(payload)
	if err != nil {
		slog.Warn("stored image is not a data URL", "slot", slot.Name(), "error", err)
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	_, _ = w.Write(data)
}
