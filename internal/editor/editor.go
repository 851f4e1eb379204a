// Package editor owns the single active form and every local mutation on it.
package editor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"formgenie/internal/form"
)

const DefaultQuestionTitle = "Untitled Question"

var (
	ErrNoForm             = errors.New("no active form")
	ErrQuestionNotFound   = errors.New("question not found")
	ErrOptionIndex        = errors.New("option index out of range")
	ErrEmptyInstruction   = errors.New("refine instruction is empty")
	ErrInFlight           = errors.New("refine already in progress")
	ErrPositionOutOfRange = errors.New("question position out of range")
)

// Refiner rewrites a structure according to a natural-language instruction.
type Refiner interface {
	Refine(ctx context.Context, current form.Structure, instruction string) (form.Structure, error)
}

type Editor struct {
	mu       sync.Mutex
	current  *form.Structure
	refiner  Refiner
	newID    func() string
	refining atomic.Bool
}

func New(refiner Refiner, newID func() string) *Editor {
	if newID == nil {
		newID = form.NewID
	}
	return &Editor{refiner: refiner, newID: newID}
}

// Load replaces the active form with a private copy of s.
func (e *Editor) Load(s form.Structure) {
	c := s.Clone()
	c.Normalize()
	e.mu.Lock()
	e.current = &c
	e.mu.Unlock()
}

func (e *Editor) Current() (form.Structure, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return form.Structure{}, false
	}
	return e.current.Clone(), true
}

func (e *Editor) Reset() {
	e.mu.Lock()
	e.current = nil
	e.mu.Unlock()
}

func (e *Editor) Refining() bool {
	return e.refining.Load()
}

// update applies fn to a copy of the active form and swaps the copy in only
// when fn succeeds.
func (e *Editor) update(fn func(s *form.Structure) error) (form.Structure, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return form.Structure{}, ErrNoForm
	}
	next := e.current.Clone()
	if err := fn(&next); err != nil {
		return form.Structure{}, err
	}
	e.current = &next
	return next.Clone(), nil
}

func (e *Editor) updateQuestion(id string, fn func(q *form.Question) error) (form.Structure, error) {
	return e.update(func(s *form.Structure) error {
		i := s.Index(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrQuestionNotFound, id)
		}
		return fn(&s.Questions[i])
	})
}

func (e *Editor) SetTitle(title string) (form.Structure, error) {
	return e.update(func(s *form.Structure) error {
		s.Title = title
		return nil
	})
}

func (e *Editor) SetDescription(desc string) (form.Structure, error) {
	return e.update(func(s *form.Structure) error {
		s.Description = desc
		return nil
	})
}

// AddQuestion appends an optional short-answer question with a fresh id.
func (e *Editor) AddQuestion() (form.Structure, error) {
	return e.update(func(s *form.Structure) error {
		s.Questions = append(s.Questions, form.Question{
			ID:    e.newID(),
			Title: DefaultQuestionTitle,
			Kind:  form.ShortAnswer,
		})
		return nil
	})
}

// RemoveQuestion drops the question with id; an unknown id leaves the form as is.
func (e *Editor) RemoveQuestion(id string) (form.Structure, error) {
	return e.update(func(s *form.Structure) error {
		if i := s.Index(id); i >= 0 {
			s.Questions = append(s.Questions[:i], s.Questions[i+1:]...)
		}
		return nil
	})
}

// MoveQuestion moves a question to position to, shifting the others.
func (e *Editor) MoveQuestion(id string, to int) (form.Structure, error) {
	return e.update(func(s *form.Structure) error {
		i := s.Index(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrQuestionNotFound, id)
		}
		if to < 0 || to >= len(s.Questions) {
			return fmt.Errorf("%w: %d", ErrPositionOutOfRange, to)
		}
		q := s.Questions[i]
		rest := append(s.Questions[:i:i], s.Questions[i+1:]...)
		out := make([]form.Question, 0, len(s.Questions))
		out = append(out, rest[:to]...)
		out = append(out, q)
		out = append(out, rest[to:]...)
		s.Questions = out
		return nil
	})
}

func (e *Editor) SetQuestionTitle(id, title string) (form.Structure, error) {
	return e.updateQuestion(id, func(q *form.Question) error {
		q.Title = title
		return nil
	})
}

// SetQuestionKind switches the kind; options already on the question stay.
func (e *Editor) SetQuestionKind(id string, kind form.Kind) (form.Structure, error) {
	if !kind.Valid() {
		return form.Structure{}, fmt.Errorf("%w: %q", form.ErrUnknownKind, kind)
	}
	return e.updateQuestion(id, func(q *form.Question) error {
		q.Kind = kind
		return nil
	})
}

func (e *Editor) SetRequired(id string, required bool) (form.Structure, error) {
	return e.updateQuestion(id, func(q *form.Question) error {
		q.Required = required
		return nil
	})
}

func (e *Editor) SetHelpText(id, text string) (form.Structure, error) {
	return e.updateQuestion(id, func(q *form.Question) error {
		q.HelpText = text
		return nil
	})
}

// AddOption appends "Option N" where N is the new option count.
func (e *Editor) AddOption(id string) (form.Structure, error) {
	return e.updateQuestion(id, func(q *form.Question) error {
		q.Options = append(q.Options, fmt.Sprintf("Option %d", len(q.Options)+1))
		return nil
	})
}

func (e *Editor) EditOption(id string, index int, value string) (form.Structure, error) {
	return e.updateQuestion(id, func(q *form.Question) error {
		if index < 0 || index >= len(q.Options) {
			return fmt.Errorf("%w: %d", ErrOptionIndex, index)
		}
		q.Options[index] = value
		return nil
	})
}

func (e *Editor) RemoveOption(id string, index int) (form.Structure, error) {
	return e.updateQuestion(id, func(q *form.Question) error {
		if index < 0 || index >= len(q.Options) {
			return fmt.Errorf("%w: %d", ErrOptionIndex, index)
		}
		q.Options = append(q.Options[:index], q.Options[index+1:]...)
		return nil
	})
}

// Refine sends the active form and instruction to the refiner and replaces the
// form with the result. Edits made while the call runs are overwritten.
func (e *Editor) Refine(ctx context.Context, instruction string) (form.Structure, error) {
	if strings.TrimSpace(instruction) == "" {
		return form.Structure{}, ErrEmptyInstruction
	}
	if !e.refining.CompareAndSwap(false, true) {
		return form.Structure{}, ErrInFlight
	}
	defer e.refining.Store(false)

	current, ok := e.Current()
	if !ok {
		return form.Structure{}, ErrNoForm
	}
	refined, err := e.refiner.Refine(ctx, current, instruction)
	if err != nil {
		return form.Structure{}, fmt.Errorf("refine form: %w", err)
	}
	e.Load(refined)
	out, _ := e.Current()
	return out, nil
}
