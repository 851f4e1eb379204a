package editor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"formgenie/internal/form"
)

type refinerFunc func(ctx context.Context, current form.Structure, instruction string) (form.Structure, error)

func (f refinerFunc) Refine(ctx context.Context, current form.Structure, instruction string) (form.Structure, error) {
	return f(ctx, current, instruction)
}

func sample() form.Structure {
	return form.Structure{
		Title:       "Event",
		Description: "Signup",
		Questions: []form.Question{
			{ID: "a", Title: "Name", Kind: form.ShortAnswer, Required: true},
			{ID: "b", Title: "Meal", Kind: form.MultipleChoice, Options: []string{"Veg", "Meat"}},
			{ID: "c", Title: "Notes", Kind: form.Paragraph},
		},
	}
}

func newEditor(r Refiner) *Editor {
	n := 0
	return New(r, func() string {
		n++
		return fmt.Sprintf("new-%d", n)
	})
}

func ids(s form.Structure) []string {
	out := make([]string, len(s.Questions))
	for i, q := range s.Questions {
		out[i] = q.ID
	}
	return out
}

func TestMutatorsRequireForm(t *testing.T) {
	e := newEditor(nil)
	_, err := e.SetTitle("x")
	require.ErrorIs(t, err, ErrNoForm)
	_, ok := e.Current()
	require.False(t, ok)
}

func TestAddQuestionDefaults(t *testing.T) {
	e := newEditor(nil)
	e.Load(sample())
	s, err := e.AddQuestion()
	require.NoError(t, err)
	last := s.Questions[len(s.Questions)-1]
	require.Equal(t, form.Question{ID: "new-1", Title: "Untitled Question", Kind: form.ShortAnswer}, last)
}

func TestAddOptionNumbering(t *testing.T) {
	e := newEditor(nil)
	e.Load(sample())
	s, err := e.AddOption("b")
	require.NoError(t, err)
	require.Equal(t, []string{"Veg", "Meat", "Option 3"}, s.Questions[1].Options)
}

func TestRemoveQuestionPreservesOrderAndIDs(t *testing.T) {
	e := newEditor(nil)
	e.Load(sample())
	s, err := e.RemoveQuestion("b")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c"}, ids(s))
}

func TestRemoveUnknownQuestionIsNoop(t *testing.T) {
	e := newEditor(nil)
	e.Load(sample())
	s, err := e.RemoveQuestion("missing")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, ids(s))
}

func TestMoveQuestion(t *testing.T) {
	e := newEditor(nil)
	e.Load(sample())
	s, err := e.MoveQuestion("c", 0)
	require.NoError(t, err)
	require.Equal(t, []string{"c", "a", "b"}, ids(s))
	s, err = e.MoveQuestion("c", 2)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, ids(s))
	_, err = e.MoveQuestion("c", 3)
	require.ErrorIs(t, err, ErrPositionOutOfRange)
	_, err = e.MoveQuestion("zz", 0)
	require.ErrorIs(t, err, ErrQuestionNotFound)
}

func TestSetQuestionKindKeepsOptions(t *testing.T) {
	e := newEditor(nil)
	e.Load(sample())
	s, err := e.SetQuestionKind("b", form.ShortAnswer)
	require.NoError(t, err)
	require.Equal(t, form.ShortAnswer, s.Questions[1].Kind)
	require.Equal(t, []string{"Veg", "Meat"}, s.Questions[1].Options)

	_, err = e.SetQuestionKind("b", form.Kind("SCALE"))
	require.ErrorIs(t, err, form.ErrUnknownKind)
}

func TestOptionIndexBounds(t *testing.T) {
	e := newEditor(nil)
	e.Load(sample())
	_, err := e.EditOption("b", 2, "x")
	require.ErrorIs(t, err, ErrOptionIndex)
	_, err = e.RemoveOption("b", -1)
	require.ErrorIs(t, err, ErrOptionIndex)

	s, err := e.EditOption("b", 0, "Vegan")
	require.NoError(t, err)
	require.Equal(t, []string{"Vegan", "Meat"}, s.Questions[1].Options)
	s, err = e.RemoveOption("b", 1)
	require.NoError(t, err)
	require.Equal(t, []string{"Vegan"}, s.Questions[1].Options)
}

func TestFailedMutationLeavesFormUntouched(t *testing.T) {
	e := newEditor(nil)
	e.Load(sample())
	_, err := e.SetRequired("missing", true)
	require.ErrorIs(t, err, ErrQuestionNotFound)
	cur, _ := e.Current()
	require.Equal(t, sample(), cur)
}

func TestPreviousSnapshotNeverMutated(t *testing.T) {
	e := newEditor(nil)
	e.Load(sample())
	before, _ := e.Current()
	_, err := e.SetHelpText("a", "first and last")
	require.NoError(t, err)
	_, err = e.RemoveOption("b", 0)
	require.NoError(t, err)
	require.Equal(t, sample(), before)
}

func TestLoadCopiesInput(t *testing.T) {
	e := newEditor(nil)
	src := sample()
	e.Load(src)
	src.Questions[1].Options[0] = "changed"
	cur, _ := e.Current()
	require.Equal(t, "Veg", cur.Questions[1].Options[0])
}

func TestRefineReplacesForm(t *testing.T) {
	e := newEditor(refinerFunc(func(_ context.Context, cur form.Structure, instruction string) (form.Structure, error) {
		cur.Title = instruction
		return cur, nil
	}))
	e.Load(sample())
	s, err := e.Refine(context.Background(), "Renamed")
	require.NoError(t, err)
	require.Equal(t, "Renamed", s.Title)
	require.False(t, e.Refining())
}

func TestRefineEmptyInstruction(t *testing.T) {
	called := false
	e := newEditor(refinerFunc(func(context.Context, form.Structure, string) (form.Structure, error) {
		called = true
		return form.Structure{}, nil
	}))
	e.Load(sample())
	_, err := e.Refine(context.Background(), "  \n")
	require.ErrorIs(t, err, ErrEmptyInstruction)
	require.False(t, called)
}

func TestRefineFailureKeepsForm(t *testing.T) {
	boom := errors.New("boom")
	e := newEditor(refinerFunc(func(context.Context, form.Structure, string) (form.Structure, error) {
		return form.Structure{}, boom
	}))
	e.Load(sample())
	_, err := e.Refine(context.Background(), "add a question")
	require.ErrorIs(t, err, boom)
	cur, _ := e.Current()
	require.Equal(t, sample(), cur)
	require.False(t, e.Refining())
}

func TestRefineRejectsConcurrentCall(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	e := newEditor(refinerFunc(func(_ context.Context, cur form.Structure, _ string) (form.Structure, error) {
		close(started)
		<-release
		return cur, nil
	}))
	e.Load(sample())

	done := make(chan error, 1)
	go func() {
		_, err := e.Refine(context.Background(), "first")
		done <- err
	}()
	<-started
	require.True(t, e.Refining())
	_, err := e.Refine(context.Background(), "second")
	require.ErrorIs(t, err, ErrInFlight)

	close(release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("refine did not finish")
	}
	require.False(t, e.Refining())
}
