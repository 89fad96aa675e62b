// Package models defines the workflow automation domain: the workflow
// aggregate, its triggers, schedules and typed actions, and execution records.
package models

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/dukex/automation/pkg/conditions"
)

// Workflow is a tenant-owned automation definition. It is mutated only
// through its methods; each mutator returns the facts it produced.
type Workflow struct {
	ID          string                 `json:"id"`
	TenantID    string                 `json:"tenant_id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Trigger     WorkflowTrigger        `json:"trigger"`
	Actions     []WorkflowAction       `json:"actions"`
	Conditions  []conditions.Condition `json:"conditions,omitempty"`
	IsActive    bool                   `json:"is_active"`

	ExecutionCount int64      `json:"execution_count"`
	FailureCount   int64      `json:"failure_count"`
	LastExecutedAt *time.Time `json:"last_executed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewWorkflowParams are the inputs of NewWorkflow.
type NewWorkflowParams struct {
	TenantID    string
	Name        string
	Description string
	Trigger     WorkflowTrigger
	Actions     []WorkflowAction
	Conditions  []conditions.Condition

	// Inactive creates the workflow deactivated. Workflows start active by default.
	Inactive bool
}

// NewWorkflow validates the definition, assigns ids to the workflow and its
// actions, and sorts actions by order.
func NewWorkflow(ids IDGenerator, now time.Time, params NewWorkflowParams) (*Workflow, []Fact, error) {
	const op = "CreateWorkflow"

	if strings.TrimSpace(params.TenantID) == "" {
		return nil, nil, newValidationError(op, "tenant id is required")
	}

	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, nil, newValidationError(op, "name is required")
	}

	if len(params.Actions) == 0 {
		return nil, nil, newValidationError(op, "at least one action is required")
	}

	if err := params.Trigger.Validate(); err != nil {
		return nil, nil, err
	}

	if err := conditions.ValidateAll(params.Conditions); err != nil {
		return nil, nil, wrapValidationError(op, "invalid workflow condition", err)
	}

	seen := make(map[int]struct{}, len(params.Actions))
	actions := make([]WorkflowAction, 0, len(params.Actions))

	for _, action := range params.Actions {
		if _, dup := seen[action.Order]; dup {
			return nil, nil, newValidationError(op, "duplicate action order %d", action.Order)
		}

		seen[action.Order] = struct{}{}

		if err := action.Validate(); err != nil {
			return nil, nil, err
		}

		action = action.clone()
		action.ID = ids.NewID()
		actions = append(actions, action)
	}

	w := &Workflow{
		ID:          ids.NewID(),
		TenantID:    params.TenantID,
		Name:        name,
		Description: params.Description,
		Trigger:     params.Trigger.clone(),
		Actions:     actions,
		Conditions:  append([]conditions.Condition(nil), params.Conditions...),
		IsActive:    !params.Inactive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	w.sortActions()

	return w, []Fact{w.fact(FactWorkflowCreated, now, map[string]any{
		"name":         w.Name,
		"trigger_type": w.Trigger.Type,
		"actions":      len(w.Actions),
	})}, nil
}

// UpdateDetails renames the workflow and replaces its description.
func (w *Workflow) UpdateDetails(now time.Time, name, description string) ([]Fact, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, newValidationError("UpdateDetails", "name is required")
	}

	w.Name = name
	w.Description = description
	w.touch(now)

	return []Fact{w.fact(FactWorkflowDetailsUpdated, now, map[string]any{"name": name})}, nil
}

// AddAction appends an action. The order must not already be in use.
func (w *Workflow) AddAction(ids IDGenerator, now time.Time, action WorkflowAction) ([]Fact, error) {
	const op = "AddAction"

	if w.orderTaken(action.Order, "") {
		return nil, newConflictError(op, "action order %d is already used", action.Order)
	}

	if err := action.Validate(); err != nil {
		return nil, err
	}

	action = action.clone()
	action.ID = ids.NewID()

	w.Actions = append(w.Actions, action)
	w.sortActions()
	w.touch(now)

	return []Fact{w.fact(FactActionAdded, now, map[string]any{
		"action_id": action.ID,
		"type":      action.Type,
		"order":     action.Order,
	})}, nil
}

// UpdateAction applies update to the action with the given id. Changing the
// type requires a matching config.
func (w *Workflow) UpdateAction(now time.Time, id string, update ActionUpdate) ([]Fact, error) {
	const op = "UpdateAction"

	idx := w.actionIndex(id)
	if idx < 0 {
		return nil, newNotFoundError(op, "action %s not found", id)
	}

	next := w.Actions[idx].clone()

	if update.Order != nil && *update.Order != next.Order {
		if w.orderTaken(*update.Order, id) {
			return nil, newConflictError(op, "action order %d is already used", *update.Order)
		}

		next.Order = *update.Order
	}

	if update.Type != nil && *update.Type != next.Type {
		if update.Config == nil {
			return nil, newValidationError(op, "changing the action type requires a new config")
		}

		next.Type = *update.Type
	}

	if update.Config != nil {
		next.Config = update.Config
	}

	if update.Conditions != nil {
		next.Conditions = append([]conditions.Condition(nil), (*update.Conditions)...)
	}

	if update.ClearDelay {
		next.Delay = nil
	} else if update.Delay != nil {
		delay := *update.Delay
		next.Delay = &delay
	}

	if err := next.Validate(); err != nil {
		return nil, err
	}

	w.Actions[idx] = next
	w.sortActions()
	w.touch(now)

	return []Fact{w.fact(FactActionUpdated, now, map[string]any{
		"action_id": id,
		"order":     next.Order,
	})}, nil
}

// RemoveAction drops the action with the given id. The last action of an
// active workflow cannot be removed.
func (w *Workflow) RemoveAction(now time.Time, id string) ([]Fact, error) {
	const op = "RemoveAction"

	idx := w.actionIndex(id)
	if idx < 0 {
		return nil, newNotFoundError(op, "action %s not found", id)
	}

	if w.IsActive && len(w.Actions) == 1 {
		return nil, newBusinessRuleError(op, "cannot remove the last action of an active workflow")
	}

	w.Actions = slices.Delete(w.Actions, idx, idx+1)
	w.touch(now)

	return []Fact{w.fact(FactActionRemoved, now, map[string]any{"action_id": id})}, nil
}

// ReorderActions assigns new orders in bulk. All ids must exist and the
// resulting orders must stay unique; nothing changes on failure.
func (w *Workflow) ReorderActions(now time.Time, orders []ActionOrder) ([]Fact, error) {
	const op = "ReorderActions"

	next := make(map[string]int, len(w.Actions))
	for _, action := range w.Actions {
		next[action.ID] = action.Order
	}

	for _, o := range orders {
		if _, ok := next[o.ID]; !ok {
			return nil, newNotFoundError(op, "action %s not found", o.ID)
		}

		next[o.ID] = o.Order
	}

	used := make(map[int]string, len(next))
	for id, order := range next {
		if other, dup := used[order]; dup {
			return nil, newConflictError(op, "actions %s and %s would share order %d", other, id, order)
		}

		used[order] = id
	}

	for i := range w.Actions {
		w.Actions[i].Order = next[w.Actions[i].ID]
	}

	w.sortActions()
	w.touch(now)

	ids := make([]string, len(w.Actions))
	for i, action := range w.Actions {
		ids[i] = action.ID
	}

	return []Fact{w.fact(FactActionsReordered, now, map[string]any{"action_ids": ids})}, nil
}

// UpdateTrigger replaces the trigger after re-validating it.
func (w *Workflow) UpdateTrigger(now time.Time, trigger WorkflowTrigger) ([]Fact, error) {
	if err := trigger.Validate(); err != nil {
		return nil, err
	}

	w.Trigger = trigger.clone()
	w.touch(now)

	return []Fact{w.fact(FactTriggerUpdated, now, map[string]any{"trigger_type": trigger.Type})}, nil
}

// UpdateConditions replaces the workflow-level conditions.
func (w *Workflow) UpdateConditions(now time.Time, conds []conditions.Condition) ([]Fact, error) {
	if err := conditions.ValidateAll(conds); err != nil {
		return nil, wrapValidationError("UpdateConditions", "invalid workflow condition", err)
	}

	w.Conditions = append([]conditions.Condition(nil), conds...)
	w.touch(now)

	return []Fact{w.fact(FactConditionsUpdated, now, map[string]any{"conditions": len(conds)})}, nil
}

// Activate makes the workflow eligible for dispatch.
func (w *Workflow) Activate(now time.Time) ([]Fact, error) {
	if len(w.Actions) == 0 {
		return nil, newBusinessRuleError("Activate", "workflow %s has no actions", w.ID)
	}

	if w.IsActive {
		return nil, nil
	}

	w.IsActive = true
	w.touch(now)

	return []Fact{w.fact(FactWorkflowActivated, now, nil)}, nil
}

// Deactivate stops future dispatch. Idempotent; a fact is produced only on change.
func (w *Workflow) Deactivate(now time.Time) []Fact {
	if !w.IsActive {
		return nil
	}

	w.IsActive = false
	w.touch(now)

	return []Fact{w.fact(FactWorkflowDeactivated, now, nil)}
}

// CanBeTriggered is false for inactive workflows; otherwise every trigger
// condition and every workflow condition must hold for payload.
func (w *Workflow) CanBeTriggered(payload map[string]any) bool {
	if !w.IsActive {
		return false
	}

	return conditions.Evaluate(w.Trigger.Conditions, payload) &&
		conditions.Evaluate(w.Conditions, payload)
}

// RecordExecution applies the outcome of a drained pipeline to the execution
// counters and returns the matching WorkflowExecuted or WorkflowFailed fact.
// The definition and the activation state are left untouched.
func (w *Workflow) RecordExecution(now time.Time, execution *WorkflowExecution) []Fact {
	w.ExecutionCount++

	if !execution.Success {
		w.FailureCount++
	}

	executedAt := execution.ExecutedAt(now)
	w.LastExecutedAt = &executedAt

	return w.ExecutionFacts(now, execution)
}

// ExecutionFacts is the fact RecordExecution emits, for callers whose store
// applied the counters itself.
func (w *Workflow) ExecutionFacts(now time.Time, execution *WorkflowExecution) []Fact {
	factType := FactWorkflowExecuted
	if !execution.Success {
		factType = FactWorkflowFailed
	}

	return []Fact{w.fact(factType, now, map[string]any{
		"execution_id":     execution.ID,
		"actions_executed": execution.ActionsExecuted,
		"errors":           execution.Errors,
	})}
}

// Action returns the action with the given id.
func (w *Workflow) Action(id string) (WorkflowAction, bool) {
	idx := w.actionIndex(id)
	if idx < 0 {
		return WorkflowAction{}, false
	}

	return w.Actions[idx], true
}

// Clone returns a deep copy safe to hand to a long running execution.
func (w *Workflow) Clone() *Workflow {
	out := *w
	out.Trigger = w.Trigger.clone()
	out.Conditions = append([]conditions.Condition(nil), w.Conditions...)

	out.Actions = make([]WorkflowAction, len(w.Actions))
	for i, action := range w.Actions {
		out.Actions[i] = action.clone()
	}

	if w.LastExecutedAt != nil {
		last := *w.LastExecutedAt
		out.LastExecutedAt = &last
	}

	return &out
}

func (w *Workflow) actionIndex(id string) int {
	return slices.IndexFunc(w.Actions, func(a WorkflowAction) bool { return a.ID == id })
}

func (w *Workflow) orderTaken(order int, exceptID string) bool {
	return slices.ContainsFunc(w.Actions, func(a WorkflowAction) bool {
		return a.Order == order && a.ID != exceptID
	})
}

func (w *Workflow) sortActions() {
	slices.SortStableFunc(w.Actions, func(a, b WorkflowAction) int { return cmp.Compare(a.Order, b.Order) })
}

func (w *Workflow) touch(now time.Time) {
	w.UpdatedAt = now
}
