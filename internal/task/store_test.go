package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tender-analyzer/internal/tender"
)

func running(id string) tender.TaskState {
	return tender.TaskState{ID: id, Status: tender.TaskRunning, Started: time.Unix(0, 0)}
}

func TestStoreGetMissing(t *testing.T) {
	t.Parallel()

	_, err := NewStore().Get("nope")
	require.ErrorIs(t, err, tender.ErrTaskNotFound)
}

func TestStoreTryStartRejectsRunningDuplicate(t *testing.T) {
	t.Parallel()

	s := NewStore()
	_, ok := s.TryStart(running("1"))
	require.True(t, ok)

	second := running("1")
	second.RunID = "other"
	held, ok := s.TryStart(second)
	require.False(t, ok)
	require.Empty(t, held.RunID)
	require.Equal(t, 1, s.Len())
}

func TestStoreTryStartReplacesTerminalTask(t *testing.T) {
	t.Parallel()

	s := NewStore()
	done := running("1")
	done.Status = tender.TaskCompleted
	done.Progress = 100
	s.Put(done)

	state, ok := s.TryStart(running("1"))
	require.True(t, ok)
	require.Equal(t, tender.TaskRunning, state.Status)
	require.Zero(t, state.Progress)
}

func TestStoreUpdateKeepsProgressMonotonic(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Put(running("1"))

	state, err := s.Update("1", func(st *tender.TaskState) { st.Progress = 40 })
	require.NoError(t, err)
	require.Equal(t, 40, state.Progress)

	state, err = s.Update("1", func(st *tender.TaskState) { st.Progress = 10 })
	require.NoError(t, err)
	require.Equal(t, 40, state.Progress)

	state, err = s.Update("1", func(st *tender.TaskState) { st.Progress = 100 })
	require.NoError(t, err)
	require.Equal(t, 99, state.Progress, "100 is reserved for completed tasks")

	state, err = s.Update("1", func(st *tender.TaskState) {
		st.Status = tender.TaskCompleted
		st.Progress = 250
	})
	require.NoError(t, err)
	require.Equal(t, 100, state.Progress)
}

func TestStoreUpdateIgnoresTerminalTasks(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Put(running("1"))
	_, err := s.Update("1", func(st *tender.TaskState) { st.Status = tender.TaskError })
	require.NoError(t, err)

	state, err := s.Update("1", func(st *tender.TaskState) {
		st.Status = tender.TaskRunning
		st.Message = "late"
	})
	require.NoError(t, err)
	require.Equal(t, tender.TaskError, state.Status)
	require.NotEqual(t, "late", state.Message)

	_, err = s.Update("missing", func(*tender.TaskState) {})
	require.ErrorIs(t, err, tender.ErrTaskNotFound)
}

func TestStoreReturnsCopies(t *testing.T) {
	t.Parallel()

	s := NewStore()
	result := "goszakup_1.json"
	st := running("1")
	st.Result = &result
	s.Put(st)

	got, err := s.Get("1")
	require.NoError(t, err)
	*got.Result = "mutated"

	again, err := s.Get("1")
	require.NoError(t, err)
	require.Equal(t, "goszakup_1.json", *again.Result)
}
