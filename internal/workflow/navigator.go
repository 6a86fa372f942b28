package workflow

import (
	"errors"

	"github.com/pavelanni/qbedit/internal/model"
)

// ErrEmptyList is returned when entering the editor with no questions.
var ErrEmptyList = errors.New("question list is empty")

// State is the navigator's screen.
type State int

const (
	StateSelecting State = iota
	StateEditing
)

func (s State) String() string {
	if s == StateEditing {
		return "editing"
	}
	return "selecting"
}

// Navigator holds the fetched list and the current position. While
// editing, the list is never empty and 0 <= index < len(list).
type Navigator struct {
	state    State
	criteria model.SelectionCriteria
	list     []model.Question
	index    int
	// gen identifies the list entered last and survives Back.
	gen uint64
}

// Enter switches to editing at the first question.
func (n *Navigator) Enter(criteria model.SelectionCriteria, list []model.Question) error {
	if len(list) == 0 {
		return ErrEmptyList
	}
	n.state = StateEditing
	n.criteria = criteria
	n.list = make([]model.Question, len(list))
	copy(n.list, list)
	n.index = 0
	n.gen++
	return nil
}

func (n *Navigator) State() State                      { return n.state }
func (n *Navigator) Criteria() model.SelectionCriteria { return n.criteria }
func (n *Navigator) Index() int                        { return n.index }
func (n *Navigator) Len() int                          { return len(n.list) }
func (n *Navigator) Generation() uint64                { return n.gen }

// Current returns the question at the current position.
func (n *Navigator) Current() (model.Question, bool) {
	if n.state != StateEditing {
		return model.Question{}, false
	}
	return n.list[n.index], true
}

// Questions returns a copy of the list.
func (n *Navigator) Questions() []model.Question {
	out := make([]model.Question, len(n.list))
	copy(out, n.list)
	return out
}

// HasNext reports whether Next would move.
func (n *Navigator) HasNext() bool {
	return n.state == StateEditing && n.index < len(n.list)-1
}

// HasPrevious reports whether Previous would move.
func (n *Navigator) HasPrevious() bool {
	return n.state == StateEditing && n.index > 0
}

// Next moves forward; it is a no-op at the last question.
func (n *Navigator) Next() bool {
	if !n.HasNext() {
		return false
	}
	n.index++
	return true
}

// Previous moves back; it is a no-op at the first question.
func (n *Navigator) Previous() bool {
	if !n.HasPrevious() {
		return false
	}
	n.index--
	return true
}

// Back returns to selection and discards the list.
func (n *Navigator) Back() {
	*n = Navigator{gen: n.gen}
}

// Replace swaps the question with the given id for q, keeping its position
// and the current index. It reports false when id is empty or not in the
// list.
func (n *Navigator) Replace(id string, q model.Question) bool {
	if id == "" {
		return false
	}
	for i := range n.list {
		if n.list[i].ID == id {
			n.list[i] = q
			return true
		}
	}
	return false
}

// ReplaceAt swaps the entry at index for q when the list of generation gen
// is still shown and the entry still has the given id. Otherwise it falls
// back to Replace by id.
func (n *Navigator) ReplaceAt(gen uint64, index int, id string, q model.Question) bool {
	if n.state == StateEditing && gen == n.gen &&
		index >= 0 && index < len(n.list) && n.list[index].ID == id {
		n.list[index] = q
		return true
	}
	return n.Replace(id, q)
}
