package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dukex/automation/pkg/persistence"
)

// ScheduleRepository keeps all scheduler state in a single <root>/schedules.json document.
type ScheduleRepository struct {
	path string
	mu   sync.Mutex
}

// NewScheduleRepository creates a new scheduler state repository.
func NewScheduleRepository(root string) *ScheduleRepository {
	return &ScheduleRepository{path: filepath.Join(root, "schedules.json")}
}

func (sr *ScheduleRepository) read() (map[string]*persistence.ScheduleState, error) {
	states := map[string]*persistence.ScheduleState{}

	err := readJSON(sr.path, &states)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read schedule states: %w", err)
	}

	return states, nil
}

func (sr *ScheduleRepository) Save(_ context.Context, state *persistence.ScheduleState) error {
	if err := validateID(state.WorkflowID); err != nil {
		return err
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()

	states, err := sr.read()
	if err != nil {
		return err
	}

	stored := *state
	states[state.WorkflowID] = &stored

	return writeJSON(sr.path, states)
}

func (sr *ScheduleRepository) Get(_ context.Context, workflowID string) (*persistence.ScheduleState, error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	states, err := sr.read()
	if err != nil {
		return nil, err
	}

	state, ok := states[workflowID]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, persistence.ErrScheduleStateNotFound)
	}

	return state, nil
}

func (sr *ScheduleRepository) Delete(_ context.Context, workflowID string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	states, err := sr.read()
	if err != nil {
		return err
	}

	if _, ok := states[workflowID]; !ok {
		return nil
	}

	delete(states, workflowID)

	return writeJSON(sr.path, states)
}

func (sr *ScheduleRepository) List(_ context.Context) ([]*persistence.ScheduleState, error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	states, err := sr.read()
	if err != nil {
		return nil, err
	}

	out := make([]*persistence.ScheduleState, 0, len(states))
	for _, state := range states {
		out = append(out, state)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].WorkflowID < out[j].WorkflowID })

	return out, nil
}
