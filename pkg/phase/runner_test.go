package phase

import (
	"errors"
	"testing"

	"github.com/bedrock-install/bedrock/pkg/bedrock_err"
	"github.com/bedrock-install/bedrock/pkg/bedrock_io"
	"github.com/bedrock-install/bedrock/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_IdempotentAcrossInvocations(t *testing.T) {
	rc := testutil.TestRuntimeContext(t)
	runner := NewRunner(NewMemoryMarkerStore())

	bodyRuns := 0
	spec := Spec{
		Phase: Partition,
		Body: func(_ *bedrock_io.RuntimeContext) error {
			bodyRuns++
			return nil
		},
	}

	status, err := runner.Run(rc, spec)
	require.NoError(t, err)
	assert.Equal(t, Completed, status)

	status, err = runner.Run(rc, spec)
	require.NoError(t, err)
	assert.Equal(t, AlreadyCompleted, status)
	assert.Equal(t, 1, bodyRuns, "destructive body must run at most once")
}

func TestRunner_MarkerUnsetOnBodyFailure(t *testing.T) {
	rc := testutil.TestRuntimeContext(t)
	markers := NewMemoryMarkerStore()
	runner := NewRunner(markers)

	bodyErr := errors.New("sgdisk exploded")
	_, err := runner.Run(rc, Spec{
		Phase: Partition,
		Body:  func(_ *bedrock_io.RuntimeContext) error { return bodyErr },
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, bodyErr)

	done, merr := markers.IsSet(Partition)
	require.NoError(t, merr)
	assert.False(t, done, "marker must never record a failed body")
}

func TestRunner_PreconditionUnmetRunsNoBody(t *testing.T) {
	rc := testutil.TestRuntimeContext(t)
	runner := NewRunner(NewMemoryMarkerStore())

	bodyRan := false
	_, err := runner.Run(rc, Spec{
		Phase: Encrypt,
		Preconditions: []Precondition{{
			Description: "container device present",
			Check: func(_ *bedrock_io.RuntimeContext) error {
				return errors.New("missing")
			},
		}},
		Body: func(_ *bedrock_io.RuntimeContext) error {
			bodyRan = true
			return nil
		},
	})

	require.Error(t, err)
	var unmet *bedrock_err.PreconditionUnmet
	require.ErrorAs(t, err, &unmet)
	assert.Equal(t, "encrypt", unmet.Phase)
	assert.False(t, bodyRan, "no partial mutation may be attempted")
}

func TestRunner_RequirePhaseOrdering(t *testing.T) {
	rc := testutil.TestRuntimeContext(t)
	markers := NewMemoryMarkerStore()
	runner := NewRunner(markers)

	// Encrypt requires Partition to have completed first.
	_, err := runner.Run(rc, Spec{
		Phase:         Encrypt,
		Preconditions: []Precondition{RequirePhase(markers, Partition)},
		Body:          func(_ *bedrock_io.RuntimeContext) error { return nil },
	})
	require.Error(t, err)

	require.NoError(t, markers.Set(Partition))
	status, err := runner.Run(rc, Spec{
		Phase:         Encrypt,
		Preconditions: []Precondition{RequirePhase(markers, Partition)},
		Body:          func(_ *bedrock_io.RuntimeContext) error { return nil },
	})
	require.NoError(t, err)
	assert.Equal(t, Completed, status)
}

func TestFileMarkerStore_RoundTrip(t *testing.T) {
	store := NewFileMarkerStore(t.TempDir())

	for _, p := range Order() {
		done, err := store.IsSet(p)
		require.NoError(t, err)
		assert.False(t, done)
	}

	require.NoError(t, store.Set(Mount))
	done, err := store.IsSet(Mount)
	require.NoError(t, err)
	assert.True(t, done)

	require.NoError(t, store.Clear(Mount))
	done, err = store.IsSet(Mount)
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, store.Set(Partition))
	require.NoError(t, store.Set(Encrypt))
	require.NoError(t, store.Reset())
	for _, p := range Order() {
		done, err := store.IsSet(p)
		require.NoError(t, err)
		assert.False(t, done, "reset must clear %s", p)
	}
}

func TestPhase_ParseRoundTrip(t *testing.T) {
	for _, p := range Order() {
		parsed, err := Parse(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}

	_, err := Parse("defragment")
	assert.Error(t, err)
}
