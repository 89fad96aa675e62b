package models

import (
	"github.com/dukex/automation/pkg/conditions"
)

// TriggerType is the business event a workflow reacts to.
type TriggerType string

const (
	TriggerAppointmentCreated   TriggerType = "APPOINTMENT_CREATED"
	TriggerAppointmentCompleted TriggerType = "APPOINTMENT_COMPLETED"
	TriggerAppointmentCancelled TriggerType = "APPOINTMENT_CANCELLED"
	TriggerClientCreated        TriggerType = "CLIENT_CREATED"
	TriggerClientBirthday       TriggerType = "CLIENT_BIRTHDAY"
	TriggerSaleCompleted        TriggerType = "SALE_COMPLETED"
	TriggerReviewReceived       TriggerType = "REVIEW_RECEIVED"
	TriggerStockLow             TriggerType = "STOCK_LOW"
	TriggerScheduled            TriggerType = "SCHEDULED"
	TriggerWebhook              TriggerType = "WEBHOOK"
)

// TriggerTypes lists every supported trigger type.
var TriggerTypes = []TriggerType{
	TriggerAppointmentCreated,
	TriggerAppointmentCompleted,
	TriggerAppointmentCancelled,
	TriggerClientCreated,
	TriggerClientBirthday,
	TriggerSaleCompleted,
	TriggerReviewReceived,
	TriggerStockLow,
	TriggerScheduled,
	TriggerWebhook,
}

func (t TriggerType) Valid() bool {
	for _, known := range TriggerTypes {
		if known == t {
			return true
		}
	}

	return false
}

// WorkflowTrigger is the entry condition for dispatch.
type WorkflowTrigger struct {
	Type       TriggerType            `json:"type"`
	Conditions []conditions.Condition `json:"conditions,omitempty"`
	Schedule   *Schedule              `json:"schedule,omitempty"`
}

// Validate checks the trigger type and conditions, and that SCHEDULED triggers carry a valid schedule.
func (t *WorkflowTrigger) Validate() error {
	const op = "ValidateTrigger"

	if !t.Type.Valid() {
		return newValidationError(op, "unknown trigger type %q", t.Type)
	}

	if err := conditions.ValidateAll(t.Conditions); err != nil {
		return wrapValidationError(op, "invalid trigger condition", err)
	}

	if t.Type == TriggerScheduled {
		if t.Schedule == nil {
			return newValidationError(op, "SCHEDULED trigger requires a schedule")
		}

		return t.Schedule.Validate()
	}

	if t.Schedule != nil {
		return newValidationError(op, "schedule is only allowed on SCHEDULED triggers")
	}

	return nil
}

// HasSchedule reports whether the trigger is driven by the scheduler.
func (t *WorkflowTrigger) HasSchedule() bool {
	return t.Type == TriggerScheduled && t.Schedule != nil
}

func (t WorkflowTrigger) clone() WorkflowTrigger {
	out := t
	out.Conditions = append([]conditions.Condition(nil), t.Conditions...)

	if t.Schedule != nil {
		schedule := *t.Schedule
		if t.Schedule.Date != nil {
			date := *t.Schedule.Date
			schedule.Date = &date
		}

		out.Schedule = &schedule
	}

	return out
}
