// Package task tracks acquisition runs and drives the pipeline for each.
package task

import (
	"sync"

	"github.com/JakeFAU/tender-analyzer/internal/tender"
)

// Store is the process-wide task table. Entries never expire and live only in
// memory: every task is forgotten when the process restarts.
//
// Callers always receive copies; a state is only changed through Update or
// TryStart, each applied atomically with respect to Get.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]tender.TaskState
}

// NewStore constructs a Store.
func NewStore() *Store {
	return &Store{tasks: make(map[string]tender.TaskState)}
}

// Get returns a snapshot of the task.
func (s *Store) Get(id string) (tender.TaskState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.tasks[id]
	if !ok {
		return tender.TaskState{}, tender.ErrTaskNotFound
	}
	return clone(state), nil
}

// Put stores state unconditionally.
func (s *Store) Put(state tender.TaskState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[state.ID] = clone(state)
}

// TryStart stores initial unless a task with the same id is running. It
// returns the state now held for the id and whether initial was stored.
func (s *Store) TryStart(initial tender.TaskState) (tender.TaskState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.tasks[initial.ID]; ok && current.Status == tender.TaskRunning {
		return clone(current), false
	}
	s.tasks[initial.ID] = clone(initial)
	return clone(initial), true
}

// Update applies fn to the task under the write lock. Terminal tasks are left
// untouched. Progress is clamped to [0,100], never moves backwards, and only
// reaches 100 once the task is completed.
func (s *Store) Update(id string, fn func(*tender.TaskState)) (tender.TaskState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.tasks[id]
	if !ok {
		return tender.TaskState{}, tender.ErrTaskNotFound
	}
	if current.Status.Terminal() {
		return clone(current), nil
	}

	next := clone(current)
	fn(&next)
	next.ID = current.ID
	next.Progress = max(min(next.Progress, 100), current.Progress, 0)
	if next.Status != tender.TaskCompleted && next.Progress == 100 {
		next.Progress = 99
	}
	s.tasks[id] = next
	return clone(next), nil
}

// Len returns the number of tracked tasks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

func clone(state tender.TaskState) tender.TaskState {
	out := state
	if state.Result != nil {
		v := *state.Result
		out.Result = &v
	}
	if state.Error != nil {
		v := *state.Error
		out.Error = &v
	}
	if state.Finished != nil {
		v := *state.Finished
		out.Finished = &v
	}
	return out
}
