package models

import (
	"encoding/json"
	"time"

	"github.com/dukex/automation/pkg/conditions"
)

// ActionType is the closed set of effects a workflow step can perform.
type ActionType string

const (
	ActionSendEmail         ActionType = "SEND_EMAIL"
	ActionSendSMS           ActionType = "SEND_SMS"
	ActionSendWhatsApp      ActionType = "SEND_WHATSAPP"
	ActionCreateTask        ActionType = "CREATE_TASK"
	ActionUpdateClient      ActionType = "UPDATE_CLIENT"
	ActionCreateAppointment ActionType = "CREATE_APPOINTMENT"
	ActionSendReviewRequest ActionType = "SEND_REVIEW_REQUEST"
	ActionAddClientTag      ActionType = "ADD_CLIENT_TAG"
	ActionWebhookCall       ActionType = "WEBHOOK_CALL"
	ActionWaitDelay         ActionType = "WAIT_DELAY"
)

// ActionTypes lists every supported action type.
var ActionTypes = []ActionType{
	ActionSendEmail,
	ActionSendSMS,
	ActionSendWhatsApp,
	ActionCreateTask,
	ActionUpdateClient,
	ActionCreateAppointment,
	ActionSendReviewRequest,
	ActionAddClientTag,
	ActionWebhookCall,
	ActionWaitDelay,
}

func (t ActionType) Valid() bool {
	_, ok := configFactories[t]

	return ok
}

// DelayUnit is the unit of an action delay.
type DelayUnit string

const (
	DelayMinutes DelayUnit = "MINUTES"
	DelayHours   DelayUnit = "HOURS"
	DelayDays    DelayUnit = "DAYS"
)

// Delay postpones an action relative to the moment the pipeline reaches it.
type Delay struct {
	Value int       `json:"value" validate:"gt=0"`
	Unit  DelayUnit `json:"unit"  validate:"required,oneof=MINUTES HOURS DAYS"`
}

// Duration converts the delay into a time.Duration. Days are 24 hours.
func (d Delay) Duration() time.Duration {
	switch d.Unit {
	case DelayMinutes:
		return time.Duration(d.Value) * time.Minute
	case DelayHours:
		return time.Duration(d.Value) * time.Hour
	case DelayDays:
		return time.Duration(d.Value) * 24 * time.Hour
	default:
		return 0
	}
}

// WorkflowAction is one step of the action pipeline.
type WorkflowAction struct {
	ID         string                 `json:"id"`
	Type       ActionType             `json:"type"`
	Order      int                    `json:"order"`
	Config     ActionConfig           `json:"config"`
	Conditions []conditions.Condition `json:"conditions,omitempty"`
	Delay      *Delay                 `json:"delay,omitempty"`
}

// UnmarshalJSON picks the config variant from the action type.
func (a *WorkflowAction) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         string                 `json:"id"`
		Type       ActionType             `json:"type"`
		Order      int                    `json:"order"`
		Config     json.RawMessage        `json:"config"`
		Conditions []conditions.Condition `json:"conditions,omitempty"`
		Delay      *Delay                 `json:"delay,omitempty"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	cfg, err := DecodeActionConfig(raw.Type, raw.Config)
	if err != nil {
		return err
	}

	*a = WorkflowAction{
		ID:         raw.ID,
		Type:       raw.Type,
		Order:      raw.Order,
		Config:     cfg,
		Conditions: raw.Conditions,
		Delay:      raw.Delay,
	}

	return nil
}

// Validate checks the type, config variant, delay and per-action conditions.
func (a *WorkflowAction) Validate() error {
	const op = "ValidateAction"

	if !a.Type.Valid() {
		return newValidationError(op, "unknown action type %q", a.Type)
	}

	if err := ValidateActionConfig(a.Type, a.Config); err != nil {
		return err
	}

	if a.Delay != nil {
		if err := configValidator.Struct(a.Delay); err != nil {
			return wrapValidationError(op, "invalid delay", err)
		}
	} else if a.Type == ActionWaitDelay {
		return newValidationError(op, "WAIT_DELAY action requires a delay")
	}

	if err := conditions.ValidateAll(a.Conditions); err != nil {
		return wrapValidationError(op, "invalid action condition", err)
	}

	return nil
}

// Suspends reports whether reaching this action pauses the pipeline.
func (a *WorkflowAction) Suspends() bool {
	return a.Delay != nil && a.Delay.Duration() > 0
}

// ActionUpdate carries the fields changed by UpdateAction. Nil fields are left untouched.
type ActionUpdate struct {
	Type       *ActionType             `json:"type,omitempty"`
	Order      *int                    `json:"order,omitempty"`
	Config     ActionConfig            `json:"-"`
	Conditions *[]conditions.Condition `json:"conditions,omitempty"`
	Delay      *Delay                  `json:"delay,omitempty"`
	ClearDelay bool                    `json:"clear_delay,omitempty"`
}

// ActionOrder assigns a new order to an action in ReorderActions.
type ActionOrder struct {
	ID    string `json:"id"    validate:"required"`
	Order int    `json:"order"`
}

func (a WorkflowAction) clone() WorkflowAction {
	out := a
	out.Conditions = append([]conditions.Condition(nil), a.Conditions...)

	if a.Delay != nil {
		delay := *a.Delay
		out.Delay = &delay
	}

	return out
}
