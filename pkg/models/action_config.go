package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ActionConfig is the typed configuration of one action. Each ActionType has
// exactly one config variant.
type ActionConfig interface {
	ActionType() ActionType
}

type SendEmailConfig struct {
	To         string `json:"to"                    validate:"required"`
	Subject    string `json:"subject,omitempty"     validate:"required_without=TemplateID"`
	Body       string `json:"body,omitempty"`
	TemplateID string `json:"template_id,omitempty"`
}

type SendSMSConfig struct {
	To      string `json:"to"      validate:"required"`
	Message string `json:"message" validate:"required,max=1600"`
}

type SendWhatsAppConfig struct {
	To         string            `json:"to"                    validate:"required"`
	Message    string            `json:"message,omitempty"     validate:"required_without=TemplateID"`
	TemplateID string            `json:"template_id,omitempty"`
	Variables  map[string]string `json:"variables,omitempty"`
}

type CreateTaskConfig struct {
	Title       string `json:"title"                 validate:"required"`
	Description string `json:"description,omitempty"`
	AssigneeID  string `json:"assignee_id,omitempty"`
	DueInDays   int    `json:"due_in_days,omitempty" validate:"gte=0"`
	Priority    string `json:"priority,omitempty"    validate:"omitempty,oneof=low medium high"`
}

type UpdateClientConfig struct {
	ClientIDField string         `json:"client_id_field,omitempty"`
	Fields        map[string]any `json:"fields"                    validate:"required,min=1"`
}

type CreateAppointmentConfig struct {
	ServiceID       string `json:"service_id"                validate:"required"`
	StaffID         string `json:"staff_id,omitempty"`
	DaysFromNow     int    `json:"days_from_now,omitempty"   validate:"gte=0"`
	DurationMinutes int    `json:"duration_minutes"          validate:"required,gt=0"`
	Notes           string `json:"notes,omitempty"`
}

type SendReviewRequestConfig struct {
	Channel   string `json:"channel"              validate:"required,oneof=email sms whatsapp"`
	ReviewURL string `json:"review_url,omitempty" validate:"omitempty,url"`
	Message   string `json:"message,omitempty"`
}

type AddClientTagConfig struct {
	Tag string `json:"tag" validate:"required,max=64"`
}

type WebhookCallConfig struct {
	URL     string            `json:"url"               validate:"required,url"`
	Method  string            `json:"method,omitempty"  validate:"omitempty,oneof=GET POST PUT PATCH DELETE"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// WaitDelayConfig carries no settings. The wait itself is the action's Delay.
type WaitDelayConfig struct {
	Note string `json:"note,omitempty"`
}

func (SendEmailConfig) ActionType() ActionType { return ActionSendEmail }

func (SendSMSConfig) ActionType() ActionType { return ActionSendSMS }

func (SendWhatsAppConfig) ActionType() ActionType { return ActionSendWhatsApp }

func (CreateTaskConfig) ActionType() ActionType { return ActionCreateTask }

func (UpdateClientConfig) ActionType() ActionType { return ActionUpdateClient }

func (CreateAppointmentConfig) ActionType() ActionType { return ActionCreateAppointment }

func (SendReviewRequestConfig) ActionType() ActionType { return ActionSendReviewRequest }

func (AddClientTagConfig) ActionType() ActionType { return ActionAddClientTag }

func (WebhookCallConfig) ActionType() ActionType { return ActionWebhookCall }

func (WaitDelayConfig) ActionType() ActionType { return ActionWaitDelay }

var configFactories = map[ActionType]func() ActionConfig{
	ActionSendEmail:         func() ActionConfig { return &SendEmailConfig{} },
	ActionSendSMS:           func() ActionConfig { return &SendSMSConfig{} },
	ActionSendWhatsApp:      func() ActionConfig { return &SendWhatsAppConfig{} },
	ActionCreateTask:        func() ActionConfig { return &CreateTaskConfig{} },
	ActionUpdateClient:      func() ActionConfig { return &UpdateClientConfig{} },
	ActionCreateAppointment: func() ActionConfig { return &CreateAppointmentConfig{} },
	ActionSendReviewRequest: func() ActionConfig { return &SendReviewRequestConfig{} },
	ActionAddClientTag:      func() ActionConfig { return &AddClientTagConfig{} },
	ActionWebhookCall:       func() ActionConfig { return &WebhookCallConfig{} },
	ActionWaitDelay:         func() ActionConfig { return &WaitDelayConfig{} },
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// DecodeActionConfig decodes raw JSON into the config variant of actionType.
// Unknown fields are rejected. An empty payload yields the zero variant.
func DecodeActionConfig(actionType ActionType, raw json.RawMessage) (ActionConfig, error) {
	factory, ok := configFactories[actionType]
	if !ok {
		return nil, newValidationError("DecodeActionConfig", "unknown action type %q", actionType)
	}

	cfg := factory()

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return cfg, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(cfg); err != nil {
		return nil, wrapValidationError("DecodeActionConfig", fmt.Sprintf("invalid %s config", actionType), err)
	}

	return cfg, nil
}

// ActionConfigFromMap converts a loosely typed config map into its variant.
func ActionConfigFromMap(actionType ActionType, values map[string]any) (ActionConfig, error) {
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, wrapValidationError("ActionConfigFromMap", "config is not serialisable", err)
	}

	return DecodeActionConfig(actionType, raw)
}

// ValidateActionConfig checks that cfg is the variant of actionType and that
// its required fields are present.
func ValidateActionConfig(actionType ActionType, cfg ActionConfig) error {
	const op = "ValidateActionConfig"

	if cfg == nil {
		return newValidationError(op, "%s action requires a config", actionType)
	}

	if cfg.ActionType() != actionType {
		return newValidationError(op, "config for %s does not match action type %s", cfg.ActionType(), actionType)
	}

	if err := configValidator.Struct(cfg); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			first := validationErrors[0]

			return wrapValidationError(op,
				fmt.Sprintf("%s config field %s failed %q", actionType, first.Field(), first.Tag()), err)
		}

		return wrapValidationError(op, fmt.Sprintf("invalid %s config", actionType), err)
	}

	return nil
}

// ConfigToMap renders a config variant as a plain map, used by executors
// that only need generic access.
func ConfigToMap(cfg ActionConfig) map[string]any {
	if cfg == nil {
		return map[string]any{}
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return map[string]any{}
	}

	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}

	return out
}
