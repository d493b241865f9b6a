package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_InitialState(t *testing.T) {
	assert.Equal(t, State{Step: StepCredentials, Progress: 10}, NewController(RegistrationGraph).State())
	assert.Equal(t, State{Step: StepUserDetails, Progress: 10}, NewController(OnboardingGraph).State())
}

func TestController_ProgressFollowsStep(t *testing.T) {
	c := NewController(RegistrationGraph)
	require.NoError(t, c.Transition(StepConfirmation))
	assert.Equal(t, State{Step: StepConfirmation, Progress: 60}, c.State())
	require.NoError(t, c.Transition(StepComplete))
	assert.Equal(t, State{Step: StepComplete, Progress: 100}, c.State())
	assert.True(t, c.Done())
}

func TestController_RejectsUnlistedTransitions(t *testing.T) {
	tests := []struct {
		graph Graph
		path  []Step
		to    Step
	}{
		{RegistrationGraph, nil, StepComplete},
		{RegistrationGraph, nil, StepPhoneConfirmation},
		{RegistrationGraph, []Step{StepConfirmation, StepComplete}, StepCredentials},
		{OnboardingGraph, nil, StepCredentials},
		{OnboardingGraph, []Step{StepComplete}, StepUserDetails},
		{OnboardingGraph, []Step{StepPhoneConfirmation}, StepConfirmation},
	}
	for _, tt := range tests {
		c := NewController(tt.graph)
		for _, s := range tt.path {
			require.NoError(t, c.Transition(s))
		}
		before := c.State()
		gen := c.Generation()

		assert.ErrorIs(t, c.Transition(tt.to), ErrInvalidTransition, "%s: %v -> %s", tt.graph.Name, before.Step, tt.to)
		assert.Equal(t, before, c.State())
		assert.Equal(t, gen, c.Generation())
	}
}

func TestController_SelfTransitionIsNoop(t *testing.T) {
	c := NewController(RegistrationGraph)
	calls := 0
	c.Observe(func(State) { calls++ })

	require.NoError(t, c.Transition(StepConfirmation))
	gen := c.Generation()
	require.NoError(t, c.Move(StepConfirmation, func() { t.Fatal("mutate must not run") }))
	assert.Equal(t, gen, c.Generation())
	assert.Equal(t, 1, calls)
}

func TestController_ObserversSeeNewState(t *testing.T) {
	c := NewController(OnboardingGraph)
	var seen []State
	c.Observe(func(s State) { seen = append(seen, s) })

	require.NoError(t, c.Transition(StepPhoneConfirmation))
	require.NoError(t, c.Transition(StepUserDetails))
	require.NoError(t, c.Transition(StepComplete))

	assert.Equal(t, []State{
		{Step: StepPhoneConfirmation, Progress: 60},
		{Step: StepUserDetails, Progress: 10},
		{Step: StepComplete, Progress: 100},
	}, seen)
}

func TestController_CommitDetectsStaleGeneration(t *testing.T) {
	c := NewController(RegistrationGraph)
	require.NoError(t, c.Transition(StepConfirmation))
	gen := c.Generation()

	require.NoError(t, c.Transition(StepCredentials))
	require.NoError(t, c.Transition(StepConfirmation))

	ran := false
	err := c.commit(StepConfirmation, gen, StepComplete, func() { ran = true })
	assert.ErrorIs(t, err, errStale)
	assert.False(t, ran)
	assert.Equal(t, StepConfirmation, c.Step())
}

func TestController_AtRunsOnlyWhileCurrent(t *testing.T) {
	c := NewController(RegistrationGraph)
	gen := c.Generation()

	ran := false
	assert.True(t, c.at(StepCredentials, gen, func() { ran = true }))
	assert.True(t, ran)

	require.NoError(t, c.Transition(StepConfirmation))
	assert.False(t, c.at(StepCredentials, gen, func() { t.Fatal("must not run after a transition") }))
	assert.False(t, c.at(StepConfirmation, gen, func() { t.Fatal("must not run for an old generation") }))
}
