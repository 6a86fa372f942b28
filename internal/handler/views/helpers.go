package views

import (
	"context"
	"strconv"
	"time"

	appI18n "github.com/pavelanni/qbedit/internal/i18n"
	"github.com/pavelanni/qbedit/internal/model"
	"github.com/pavelanni/qbedit/internal/workflow"
)

var (
	levels = []model.Level{model.LevelEasy, model.LevelMedium, model.LevelHard}

	optionFields = []workflow.TextField{
		workflow.FieldOption1, workflow.FieldOption2, workflow.FieldOption3, workflow.FieldOption4,
	}
	placementFields = []workflow.TextField{
		workflow.FieldSubject, workflow.FieldTopic, workflow.FieldSubtopic, workflow.FieldQuestionSet,
	}
)

// path prefixes p with the base path in ctx.
func path(ctx context.Context, p string) string {
	return model.BasePathFromContext(ctx) + p
}

func messageKind(k workflow.MessageKind) string {
	switch k {
	case workflow.MessageSuccess:
		return "success"
	case workflow.MessageError:
		return "error"
	}
	return "info"
}

func messageText(ctx context.Context, m workflow.Message) string {
	text := appI18n.T(ctx, m.ID)
	if m.Detail != "" {
		text += " " + m.Detail
	}
	return text
}

func positionText(ctx context.Context, s workflow.Snapshot) string {
	return appI18n.Td(ctx, "QuestionNofM", map[string]any{"N": s.Position(), "Total": s.Total})
}

// expiresIn is the notice lifetime left, in milliseconds, for the page
// script to remove it.
func expiresIn(n *workflow.Notice, now time.Time) string {
	return strconv.FormatInt(n.ExpiresAt.Sub(now).Milliseconds(), 10)
}

func busyLabel(ctx context.Context, busy bool, busyID, idleID string) string {
	if busy {
		return appI18n.T(ctx, busyID)
	}
	return appI18n.T(ctx, idleID)
}

// mcqOnly and nonMCQOnly mark fields the type selector toggles without a
// round trip.
func mcqOnly(f workflow.TextField) bool {
	return f.Visible(model.TypeMCQ) && !f.Visible(model.TypeShortAnswer)
}

func nonMCQOnly(f workflow.TextField) bool {
	return !f.Visible(model.TypeMCQ)
}

func knownLevel(level int) bool {
	for _, l := range levels {
		if int(l) == level {
			return true
		}
	}
	return false
}

func levelLabel(ctx context.Context, l model.Level) string {
	v := strconv.Itoa(int(l))
	return v + " · " + appI18n.Tk(ctx, "Level", v)
}

// imageURL addresses the slot's image; the payload length busts caches
// when the image changes.
func imageURL(ctx context.Context, q model.Question, slot workflow.ImageField) string {
	return path(ctx, "/editor/image/"+slot.Name()) + "?n=" + strconv.Itoa(len(slot.Get(q)))
}
