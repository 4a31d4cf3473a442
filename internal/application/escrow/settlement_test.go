package escrow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettlement_UndoesAppliedStepsInReverse(t *testing.T) {
	var trail []string
	rec := func(s string, err error) func(context.Context) error {
		return func(context.Context) error {
			trail = append(trail, s)
			return err
		}
	}

	s := newSettlement("finalizeSale", 1)
	s.add("a", rec("apply a", nil), rec("undo a", nil))
	s.add("b", rec("apply b", nil), rec("undo b", nil))
	s.add("c", rec("apply c", errDown), rec("undo c", nil))

	commitCalled := false
	err := s.run(context.Background(), func(context.Context) error {
		commitCalled = true
		return nil
	})

	require.Error(t, err)
	assert.True(t, IsCollaborator(err))
	assert.ErrorIs(t, err, errDown)
	assert.False(t, commitCalled)
	assert.Equal(t, []string{"apply a", "apply b", "apply c", "undo b", "undo a"}, trail)
}

func TestSettlement_CommitFailureUndoesEverything(t *testing.T) {
	var undone []string
	s := newSettlement("cancelSale", 1)
	for _, name := range []string{"a", "b"} {
		name := name
		s.add(name, func(context.Context) error { return nil }, func(context.Context) error {
			undone = append(undone, name)
			return nil
		})
	}

	err := s.run(context.Background(), func(context.Context) error { return ErrConcurrentUpdate })
	assert.ErrorIs(t, err, ErrConcurrentUpdate)
	assert.Equal(t, KindUnknown, KindOf(err))
	assert.Equal(t, []string{"b", "a"}, undone)
}

func TestSettlement_UndoFailureIsJoined(t *testing.T) {
	undoErr := errors.New("undo failed")
	s := newSettlement("finalizeSale", 1)
	s.add("a", func(context.Context) error { return nil }, func(context.Context) error { return undoErr })
	s.add("b", func(context.Context) error { return errDown }, nil)

	err := s.run(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, errDown)
	assert.ErrorIs(t, err, undoErr)
	assert.True(t, IsCollaborator(err))
}

func TestSettlement_NoStepsJustCommits(t *testing.T) {
	s := newSettlement("updateInspectionStatus", 1)
	assert.NoError(t, s.run(context.Background(), func(context.Context) error { return nil }))
}
