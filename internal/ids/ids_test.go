package ids

import (
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEntity_IsUUID(t *testing.T) {
	id := NewEntity()
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.NotEqual(t, id, NewEntity())
}

func TestNewRun_SortsInCreationOrder(t *testing.T) {
	var got []string
	for i := 0; i < 50; i++ {
		got = append(got, NewRun())
	}
	assert.True(t, sort.StringsAreSorted(got))
}

func TestRunTime(t *testing.T) {
	before := time.Now().UTC().Add(-time.Second)
	ts, err := RunTime(NewRun())
	require.NoError(t, err)
	assert.True(t, ts.After(before))

	_, err = RunTime("not-a-ulid")
	assert.Error(t, err)
}

func TestRunFloor(t *testing.T) {
	old := NewRun()
	time.Sleep(2 * time.Millisecond)
	cut := time.Now()
	time.Sleep(2 * time.Millisecond)
	fresh := NewRun()

	floor := RunFloor(cut)
	assert.Less(t, old, floor)
	assert.GreaterOrEqual(t, fresh, floor)
}
