package workflow

import (
	"strings"

	"github.com/pavelanni/qbedit/internal/model"
)

// TextField identifies a free-text field of a question draft.
type TextField int

const (
	FieldQuestion TextField = iota
	FieldModelAnswer
	FieldGradingCriteria
	FieldExplanation
	FieldOption1
	FieldOption2
	FieldOption3
	FieldOption4
	FieldSubject
	FieldTopic
	FieldSubtopic
	FieldQuestionSet
)

// TextFields lists every TextField in form order.
var TextFields = []TextField{
	FieldQuestion, FieldModelAnswer, FieldGradingCriteria, FieldExplanation,
	FieldOption1, FieldOption2, FieldOption3, FieldOption4,
	FieldSubject, FieldTopic, FieldSubtopic, FieldQuestionSet,
}

// Name is the form field name, matching the backend's JSON key.
func (f TextField) Name() string {
	switch f {
	case FieldQuestion:
		return "question"
	case FieldModelAnswer:
		return "model_answer"
	case FieldGradingCriteria:
		return "grading_criteria"
	case FieldExplanation:
		return "explaination"
	case FieldOption1:
		return "option1"
	case FieldOption2:
		return "option2"
	case FieldOption3:
		return "option3"
	case FieldOption4:
		return "option4"
	case FieldSubject:
		return "subject"
	case FieldTopic:
		return "topic"
	case FieldSubtopic:
		return "subtopic"
	case FieldQuestionSet:
		return "questionset"
	}
	return ""
}

func (f TextField) ref(q *model.Question) *string {
	switch f {
	case FieldQuestion:
		return &q.Question
	case FieldModelAnswer:
		return &q.ModelAnswer
	case FieldGradingCriteria:
		return &q.GradingCriteria
	case FieldExplanation:
		return &q.Explanation
	case FieldOption1:
		return &q.Option1
	case FieldOption2:
		return &q.Option2
	case FieldOption3:
		return &q.Option3
	case FieldOption4:
		return &q.Option4
	case FieldSubject:
		return &q.Subject
	case FieldTopic:
		return &q.Topic
	case FieldSubtopic:
		return &q.Subtopic
	case FieldQuestionSet:
		return &q.QuestionSet
	}
	return nil
}

// Get returns the field's value in q.
func (f TextField) Get(q model.Question) string {
	if p := f.ref(&q); p != nil {
		return *p
	}
	return ""
}

// Visible reports whether the field is presented for a question type.
// Hidden fields keep their values.
func (f TextField) Visible(t model.QuestionType) bool {
	switch f {
	case FieldOption1, FieldOption2, FieldOption3, FieldOption4:
		return t == model.TypeMCQ
	case FieldModelAnswer, FieldGradingCriteria:
		return t != model.TypeMCQ
	}
	return true
}

// Required reports whether the field is marked required for a question type.
func (f TextField) Required(t model.QuestionType) bool {
	switch f {
	case FieldQuestion:
		return true
	case FieldModelAnswer, FieldGradingCriteria, FieldExplanation:
		return t != model.TypeMCQ
	}
	return false
}

// NumberField identifies an integer field of a question draft.
type NumberField int

const (
	FieldLevel NumberField = iota
	FieldMarks
)

// NumberFields lists every NumberField in form order.
var NumberFields = []NumberField{FieldLevel, FieldMarks}

// Name is the form field name.
func (f NumberField) Name() string {
	switch f {
	case FieldLevel:
		return "level"
	case FieldMarks:
		return "marks"
	}
	return ""
}

func (f NumberField) ref(q *model.Question) *int {
	switch f {
	case FieldLevel:
		return &q.Level
	case FieldMarks:
		return &q.Marks
	}
	return nil
}

// ImageField identifies an image slot of a question draft.
type ImageField int

const (
	ImageQuestion ImageField = iota
	ImageExplanation
)

// Name is the slot name used in URLs and forms.
func (f ImageField) Name() string {
	switch f {
	case ImageQuestion:
		return "question"
	case ImageExplanation:
		return "explanation"
	}
	return ""
}

// ImageFieldByName resolves a slot name.
func ImageFieldByName(name string) (ImageField, bool) {
	switch name {
	case "question":
		return ImageQuestion, true
	case "explanation":
		return ImageExplanation, true
	}
	return 0, false
}

func (f ImageField) ref(q *model.Question) *string {
	switch f {
	case ImageQuestion:
		return &q.QuestionImage
	case ImageExplanation:
		return &q.ExplanationImage
	}
	return nil
}

// Get returns the slot's payload in q.
func (f ImageField) Get(q model.Question) string {
	if p := f.ref(&q); p != nil {
		return *p
	}
	return ""
}

// coerceInt parses the leading integer of raw. Anything without leading
// digits yields 0.
func coerceInt(raw string) int {
	s := strings.TrimSpace(raw)
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	n := 0
	for i := 0; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		n = n*10 + int(s[i]-'0')
		if n > 1<<31 {
			return 0
		}
	}
	if neg {
		return -n
	}
	return n
}
