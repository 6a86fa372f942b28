package views

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"

	"github.com/pavelanni/qbedit/internal/catalog"
	appI18n "github.com/pavelanni/qbedit/internal/i18n"
	"github.com/pavelanni/qbedit/internal/model"
	"github.com/pavelanni/qbedit/internal/workflow"
)

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	ctx := model.ContextWithBasePath(context.Background(), "/qb")
	ctx = model.ContextWithCSRFToken(ctx, "tok-1")
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	return buf.String()
}

func TestLoginPage(t *testing.T) {
	body := render(t, LoginPage(`a"<b>`, "InvalidCredentials"))
	for _, want := range []string{
		`action="/qb/login"`,
		`name="csrf_token" value="tok-1"`,
		`value="a&#34;&lt;b&gt;"`,
		`data-kind="error"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("login page missing %s", want)
		}
	}
	if strings.Contains(body, `action="/qb/logout"`) {
		t.Error("logout control shown before sign-in")
	}
}

func TestSelectPage(t *testing.T) {
	body := render(t, SelectPage(SelectData{
		Subjects: []catalog.Subject{{Code: "x-mathematics", Name: "Mathematics"}},
		Snapshot: workflow.Snapshot{Subject: "x-mathematics", Topics: []string{"Polynomials"}, Topic: "Polynomials"},
	}))
	for _, want := range []string{
		`<option value="x-mathematics" selected>Mathematics</option>`,
		`<option value="Polynomials" selected>Polynomials</option>`,
		`action="/qb/logout"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("select page missing %s", want)
		}
	}
	if strings.Contains(body, `name="topic" disabled`) {
		t.Error("topic must be enabled once a subject is chosen")
	}
}

func TestEditorPage(t *testing.T) {
	now := time.Date(2025, 3, 1, 6, 30, 0, 0, time.UTC)
	q := model.Question{
		ID: "q1", Question: "\nIndented <b>", QuestionType: model.TypeShortAnswer,
		Option1: "kept", Level: 7, Marks: 2,
		QuestionImage:  "data:image/png;base64,AAAA",
		SourceImageURL: "javascript:alert(1)",
	}
	body := render(t, EditorPage(EditorData{
		SubjectName: "Mathematics",
		Snapshot: workflow.Snapshot{
			State: workflow.StateEditing, Index: 0, Total: 2, HasNext: true,
			Criteria: model.SelectionCriteria{Subject: "x-mathematics", Topic: "Polynomials"},
			Draft:    q,
			Notice: &workflow.Notice{
				Message:   workflow.Message{Kind: workflow.MessageSuccess, ID: "SaveSuccess"},
				ExpiresAt: now.Add(4 * time.Second),
			},
		},
		Now: now,
	}))
	for _, want := range []string{
		"Question 1 of 2",
		`<textarea id="question" name="question">` + "\n\nIndented &lt;b&gt;</textarea>",
		`data-expires="4000"`,
		`<option value="7" selected>7</option>`,
		`src="/qb/editor/image/question?n=26"`,
		`value="clear:question"`,
		`action="/qb/nav/prev"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("editor page missing %s", want)
		}
	}
	if !strings.Contains(body, `<div data-mcq hidden><label for="option1">`) {
		t.Error("options must be hidden for a non-MCQ question")
	}
	if strings.Contains(body, "javascript:") {
		t.Error("unsafe source URL rendered")
	}
	if strings.Contains(body, `value="assist"`) {
		t.Error("assist shown while disabled")
	}
}
