// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dukex/automation/pkg/conditions"
	"github.com/dukex/automation/pkg/models"
	"github.com/stretchr/testify/require"
)

// T0 is the creation time of workflows built by CreateTestWorkflow.
var T0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// IDs is shared by the builders so ids never repeat within a test binary.
var IDs = NewSequenceIDs("id")

// SequenceIDs generates predictable ids: <prefix>-1, <prefix>-2, ...
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

func NewSequenceIDs(prefix string) *SequenceIDs {
	return &SequenceIDs{prefix: prefix}
}

func (s *SequenceIDs) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.n++

	return fmt.Sprintf("%s-%d", s.prefix, s.n)
}

// CreateTestWorkflow creates an active APPOINTMENT_COMPLETED workflow of
// tenant-1 with a single email action. Overrides adjust the params before validation.
func CreateTestWorkflow(t testing.TB, overrides ...func(*models.NewWorkflowParams)) *models.Workflow {
	t.Helper()

	params := models.NewWorkflowParams{
		TenantID: "tenant-1",
		Name:     "Test Workflow",
		Trigger:  models.WorkflowTrigger{Type: models.TriggerAppointmentCompleted},
		Actions:  []models.WorkflowAction{EmailAction(1)},
	}

	for _, override := range overrides {
		override(&params)
	}

	workflow, _, err := models.NewWorkflow(IDs, T0, params)
	require.NoError(t, err)

	return workflow
}

func WithTenant(tenantID string) func(*models.NewWorkflowParams) {
	return func(p *models.NewWorkflowParams) { p.TenantID = tenantID }
}

func WithName(name string) func(*models.NewWorkflowParams) {
	return func(p *models.NewWorkflowParams) { p.Name = name }
}

func WithTrigger(trigger models.WorkflowTrigger) func(*models.NewWorkflowParams) {
	return func(p *models.NewWorkflowParams) { p.Trigger = trigger }
}

func WithActions(actions ...models.WorkflowAction) func(*models.NewWorkflowParams) {
	return func(p *models.NewWorkflowParams) { p.Actions = actions }
}

func WithConditions(conds ...conditions.Condition) func(*models.NewWorkflowParams) {
	return func(p *models.NewWorkflowParams) { p.Conditions = conds }
}

func Inactive() func(*models.NewWorkflowParams) {
	return func(p *models.NewWorkflowParams) { p.Inactive = true }
}

// ScheduledTrigger builds a SCHEDULED trigger.
func ScheduledTrigger(schedule models.Schedule) models.WorkflowTrigger {
	return models.WorkflowTrigger{Type: models.TriggerScheduled, Schedule: &schedule}
}

func EmailAction(order int) models.WorkflowAction {
	return models.WorkflowAction{
		Type:   models.ActionSendEmail,
		Order:  order,
		Config: &models.SendEmailConfig{To: "{{client.email}}", Subject: "Thanks for your visit"},
	}
}

func TagAction(order int) models.WorkflowAction {
	return models.WorkflowAction{
		Type:   models.ActionAddClientTag,
		Order:  order,
		Config: &models.AddClientTagConfig{Tag: "returning"},
	}
}

func TaskAction(order int) models.WorkflowAction {
	return models.WorkflowAction{
		Type:   models.ActionCreateTask,
		Order:  order,
		Config: &models.CreateTaskConfig{Title: "Call the client"},
	}
}

// WaitAction is a WAIT_DELAY step of the given minutes.
func WaitAction(order, minutes int) models.WorkflowAction {
	return models.WorkflowAction{
		Type:   models.ActionWaitDelay,
		Order:  order,
		Config: &models.WaitDelayConfig{},
		Delay:  &models.Delay{Value: minutes, Unit: models.DelayMinutes},
	}
}

// Delayed sets a delay on action.
func Delayed(action models.WorkflowAction, value int, unit models.DelayUnit) models.WorkflowAction {
	action.Delay = &models.Delay{Value: value, Unit: unit}

	return action
}

// When sets per-action conditions on action.
func When(action models.WorkflowAction, conds ...conditions.Condition) models.WorkflowAction {
	action.Conditions = conds

	return action
}
