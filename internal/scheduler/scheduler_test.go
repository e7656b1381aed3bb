package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeView is a minimal View for tests, independent of graph validation.
type fakeView struct {
	ids  []string
	deps map[string][]string
}

func (v *fakeView) IDs() []string                  { return v.ids }
func (v *fakeView) Dependencies(id string) []string { return v.deps[id] }

func TestWaves_Diamond(t *testing.T) {
	t.Parallel()
	v := &fakeView{
		ids: []string{"a", "b", "c", "d"},
		deps: map[string][]string{
			"b": {"a"},
			"c": {"a"},
			"d": {"b", "c"},
		},
	}

	waves, err := Waves(v)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a"}, {"b", "c"}, {"d"}}, waves)
}

func TestWaves_EveryStageAfterItsDependencies(t *testing.T) {
	t.Parallel()
	v := &fakeView{
		ids: []string{"w", "x", "y", "z", "independent"},
		deps: map[string][]string{
			"x": {"w"},
			"y": {"w"},
			"z": {"x", "y", "independent"},
		},
	}

	waves, err := Waves(v)
	require.NoError(t, err)

	waveOf := map[string]int{}
	total := 0
	for i, wave := range waves {
		for _, id := range wave {
			waveOf[id] = i
			total++
		}
	}
	assert.Equal(t, len(v.ids), total, "every stage appears in exactly one wave")

	for id, deps := range v.deps {
		for _, dep := range deps {
			assert.Less(t, waveOf[dep], waveOf[id], "%s must be scheduled before %s", dep, id)
		}
	}
}

func TestWaves_Deterministic(t *testing.T) {
	t.Parallel()
	v := &fakeView{
		ids: []string{"m", "a", "z", "k"},
		deps: map[string][]string{
			"z": {"a"},
		},
	}

	first, err := Waves(v)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Waves(v)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	// Stages within a wave come out sorted.
	assert.Equal(t, []string{"a", "k", "m"}, first[0])
}

func TestWaves_CycleIsInternalConsistencyError(t *testing.T) {
	t.Parallel()
	v := &fakeView{
		ids: []string{"a", "b", "c"},
		deps: map[string][]string{
			"b": {"c"},
			"c": {"b"},
		},
	}

	_, err := Waves(v)
	require.Error(t, err)

	var ice *InternalConsistencyError
	require.ErrorAs(t, err, &ice)
	assert.Equal(t, []string{"b", "c"}, ice.Remaining)
	assert.Contains(t, ice.Error(), "internal consistency error")
}

func TestWaves_Empty(t *testing.T) {
	t.Parallel()
	waves, err := Waves(&fakeView{})
	require.NoError(t, err)
	assert.Empty(t, waves)
}
