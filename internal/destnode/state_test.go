package destnode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateTransitionMonotonic(t *testing.T) {
	s := StateNew
	var err error
	s, err = s.Transition(StateSynced)
	require.NoError(t, err)
	s, err = s.Transition(StateActive)
	require.NoError(t, err)
	s, err = s.Transition(StateDraining)
	require.NoError(t, err)
	s, err = s.Transition(StateClosed)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, s)
}

func TestStateTransitionRejectsBackEdge(t *testing.T) {
	s := StateActive
	_, err := s.Transition(StateNew)
	assert.Error(t, err)
}

func TestStateTransitionAllowsActiveIdempotent(t *testing.T) {
	s := StateActive
	next, err := s.Transition(StateActive)
	require.NoError(t, err)
	assert.Equal(t, StateActive, next)
}

func TestStateTransitionAllowsSkippingSynced(t *testing.T) {
	s := StateNew
	next, err := s.Transition(StateActive)
	require.NoError(t, err)
	assert.Equal(t, StateActive, next)
}
