package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDefinition = `{
	"name": "Birthday greeting",
	"trigger": {"type": "CLIENT_BIRTHDAY"},
	"conditions": [{"field": "client.opt_in", "operator": "equals", "value": true}],
	"actions": [
		{"type": "SEND_WHATSAPP", "order": 1, "config": {"to": "{{client.phone}}", "message": "Happy birthday!"}},
		{"type": "ADD_CLIENT_TAG", "order": 2, "config": {"tag": "birthday-greeted"}, "delay": {"value": 1, "unit": "HOURS"}}
	]
}`

func TestValidateDefinitions(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		invalid bool
	}{
		{"valid", validDefinition, false},
		{"missing actions", `{"name": "x", "trigger": {"type": "CLIENT_CREATED"}}`, true},
		{"unknown trigger", `{"name": "x", "trigger": {"type": "FULL_MOON"}, "actions": [{"type": "SEND_EMAIL", "order": 1}]}`, true},
		{"unknown operator", `{"name": "x", "trigger": {"type": "CLIENT_CREATED"}, "conditions": [{"field": "a", "operator": "like"}],
			"actions": [{"type": "ADD_CLIENT_TAG", "order": 1, "config": {"tag": "t"}}]}`, true},
		{"config rejected by model", `{"name": "x", "trigger": {"type": "CLIENT_CREATED"},
			"actions": [{"type": "ADD_CLIENT_TAG", "order": 1, "config": {}}]}`, true},
		{"scheduled without schedule", `{"name": "x", "trigger": {"type": "SCHEDULED"},
			"actions": [{"type": "ADD_CLIENT_TAG", "order": 1, "config": {"tag": "t"}}]}`, true},
		{"duplicate order", `{"name": "x", "trigger": {"type": "CLIENT_CREATED"}, "actions": [
			{"type": "ADD_CLIENT_TAG", "order": 1, "config": {"tag": "a"}},
			{"type": "ADD_CLIENT_TAG", "order": 1, "config": {"tag": "b"}}]}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reports, err := validateDefinitions([]byte(tt.doc), formatJSON)
			require.NoError(t, err)
			require.Len(t, reports, 1)

			if tt.invalid {
				assert.NotEmpty(t, reports[0].Errors)
			} else {
				assert.Empty(t, reports[0].Errors)
			}
		})
	}
}

func TestValidateDefinitions_Array(t *testing.T) {
	reports, err := validateDefinitions([]byte(`[` + validDefinition + `, {"trigger": {"type": "CLIENT_CREATED"}}]`), formatJSON)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.Equal(t, "Birthday greeting", reports[0].Name)
	assert.Equal(t, "#2", reports[1].Name)

	var out bytes.Buffer
	assert.Equal(t, 1, printReports(&out, "defs.json", reports))
	assert.Contains(t, out.String(), "✓ Birthday greeting")
}

const yamlDefinitions = `
- name: Welcome
  trigger:
    type: CLIENT_CREATED
  actions:
    - type: ADD_CLIENT_TAG
      order: 1
      config:
        tag: new
- name: Weekly digest
  trigger:
    type: SCHEDULED
    schedule:
      type: RECURRING
      interval: WEEKS
      interval_value: 0
  actions:
    - type: SEND_EMAIL
      order: 1
      config:
        to: "{{client.email}}"
        subject: Digest
        body: Hello
`

func TestValidateDefinitions_YAML(t *testing.T) {
	reports, err := validateDefinitions([]byte(yamlDefinitions), formatYAML)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.Equal(t, "Welcome", reports[0].Name)
	assert.Empty(t, reports[0].Errors)
	assert.Equal(t, "Weekly digest", reports[1].Name)
	assert.NotEmpty(t, reports[1].Errors)

	assert.Equal(t, formatYAML, formatOf("defs.YML"))
	assert.Equal(t, formatJSON, formatOf("defs.json"))

	_, err = validateDefinitions([]byte("name: [unclosed"), formatYAML)
	require.Error(t, err)
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")
	bad := filepath.Join(dir, "bad.json")

	require.NoError(t, os.WriteFile(good, []byte(validDefinition), 0o600))
	require.NoError(t, os.WriteFile(bad, []byte(`{"name": ""}`), 0o600))

	require.NoError(t, NewValidateCommand().Run(t.Context(), []string{"validate", good}))
	require.ErrorIs(t, NewValidateCommand().Run(t.Context(), []string{"validate", good, bad}), ErrInvalidDefinitions)

	_, err := validateDefinitions([]byte(`{not json`), formatJSON)
	require.Error(t, err)
}
