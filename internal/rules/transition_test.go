package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from    RuleStatus
		move    Transition
		allowed bool
	}{
		{StatusDraft, TransitionUpdate, true},
		{StatusDraft, TransitionActivate, true},
		{StatusDraft, TransitionArchive, true},
		{StatusDraft, TransitionRestore, false},
		{StatusDraft, TransitionRollback, true},
		{StatusDraft, TransitionDelete, true},

		{StatusActive, TransitionUpdate, false},
		{StatusActive, TransitionActivate, false},
		{StatusActive, TransitionArchive, true},
		{StatusActive, TransitionRestore, false},
		{StatusActive, TransitionRollback, false},
		{StatusActive, TransitionDelete, false},

		{StatusArchived, TransitionUpdate, false},
		{StatusArchived, TransitionActivate, false},
		{StatusArchived, TransitionArchive, false},
		{StatusArchived, TransitionRestore, true},
		{StatusArchived, TransitionRollback, true},
		{StatusArchived, TransitionDelete, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allowed, CanTransition(tc.from, tc.move),
			"%s from %s", tc.move, tc.from)
	}
}

func TestTransitionTargets(t *testing.T) {
	assert.Equal(t, StatusActive, transitionTarget(StatusDraft, TransitionActivate))
	assert.Equal(t, StatusArchived, transitionTarget(StatusActive, TransitionArchive))
	assert.Equal(t, StatusDraft, transitionTarget(StatusArchived, TransitionRestore))
	assert.Equal(t, StatusDraft, transitionTarget(StatusArchived, TransitionRollback))
	assert.Equal(t, StatusDraft, transitionTarget(StatusDraft, TransitionUpdate))
}

func TestInvalidTransitionErrorMessage(t *testing.T) {
	err := ensureTransition(StatusActive, TransitionUpdate)
	assert.EqualError(t, err, "rules: cannot update a rule in status ACTIVE")
}
