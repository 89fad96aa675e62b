package conditions

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_EmptyListIsTrue(t *testing.T) {
	assert.True(t, Evaluate(nil, map[string]any{"status": "DONE"}))
	assert.True(t, Evaluate([]Condition{}, nil))
}

func TestEvaluate_Equals(t *testing.T) {
	cond := []Condition{{Field: "status", Operator: OperatorEquals, Value: "DONE"}}

	assert.True(t, Evaluate(cond, map[string]any{"status": "DONE"}))
	assert.False(t, Evaluate(cond, map[string]any{"status": "PENDING"}))
	assert.False(t, Evaluate(cond, map[string]any{}), "absent field never equals")
}

func TestEvaluate_Operators(t *testing.T) {
	payload := map[string]any{
		"status": "DONE",
		"count":  "7",
		"total":  12.5,
		"name":   "Maria Silva",
		"notes":  nil,
		"tags":   []any{"vip", "new"},
		"client": map[string]any{
			"id":   42,
			"tier": "gold",
			"address": map[string]any{
				"city": "Lisbon",
			},
		},
		"items": []any{
			map[string]any{"sku": "A-1", "qty": 2},
		},
	}

	tests := []struct {
		name     string
		cond     Condition
		expected bool
	}{
		{"not_equals different", Condition{"status", OperatorNotEquals, "PENDING"}, true},
		{"not_equals same", Condition{"status", OperatorNotEquals, "DONE"}, false},
		{"not_equals absent", Condition{"missing", OperatorNotEquals, "x"}, true},
		{"equals null", Condition{"notes", OperatorEquals, nil}, true},
		{"equals int vs float", Condition{"client.id", OperatorEquals, 42.0}, true},
		{"equals nested", Condition{"client.address.city", OperatorEquals, "Lisbon"}, true},
		{"equals array index", Condition{"items.0.sku", OperatorEquals, "A-1"}, true},
		{"equals array structural", Condition{"tags", OperatorEquals, []string{"vip", "new"}}, true},
		{"greater_than numeric string", Condition{"count", OperatorGreaterThan, 5}, true},
		{"greater_than float", Condition{"total", OperatorGreaterThan, "10"}, true},
		{"greater_than equal is false", Condition{"count", OperatorGreaterThan, 7}, false},
		{"less_than", Condition{"items.0.qty", OperatorLessThan, 3}, true},
		{"less_than absent", Condition{"missing", OperatorLessThan, 3}, false},
		{"less_than non numeric operand", Condition{"total", OperatorLessThan, "lots"}, false},
		{"contains substring", Condition{"name", OperatorContains, "Silva"}, true},
		{"contains number coerced", Condition{"total", OperatorContains, "12"}, true},
		{"contains missing", Condition{"missing", OperatorContains, "x"}, false},
		{"contains array rendered", Condition{"tags", OperatorContains, "vip"}, true},
		{"not_contains", Condition{"name", OperatorNotContains, "Souza"}, true},
		{"not_contains present", Condition{"name", OperatorNotContains, "Maria"}, false},
		{"not_contains null", Condition{"notes", OperatorNotContains, "x"}, false},
		{"in list", Condition{"client.tier", OperatorIn, []any{"silver", "gold"}}, true},
		{"in list miss", Condition{"client.tier", OperatorIn, []any{"silver"}}, false},
		{"in non list value", Condition{"client.tier", OperatorIn, "gold"}, false},
		{"in absent", Condition{"missing", OperatorIn, []any{"gold"}}, false},
		{"not_in list", Condition{"client.tier", OperatorNotIn, []string{"bronze"}}, true},
		{"not_in list hit", Condition{"client.tier", OperatorNotIn, []string{"gold"}}, false},
		{"not_in non list value", Condition{"client.tier", OperatorNotIn, "bronze"}, false},
		{"is_null explicit", Condition{"notes", OperatorIsNull, nil}, true},
		{"is_null absent", Condition{"missing", OperatorIsNull, "ignored"}, true},
		{"is_null present", Condition{"status", OperatorIsNull, nil}, false},
		{"is_not_null present", Condition{"status", OperatorIsNotNull, nil}, true},
		{"is_not_null null", Condition{"notes", OperatorIsNotNull, nil}, false},
		{"path through scalar", Condition{"status.value", OperatorIsNotNull, nil}, false},
		{"bad array index", Condition{"items.x.sku", OperatorIsNull, nil}, true},
		{"unknown operator", Condition{"status", Operator("matches"), "DONE"}, false},
		{"empty field", Condition{"", OperatorIsNull, nil}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Evaluate([]Condition{tt.cond}, payload))
		})
	}
}

func TestEvaluate_NumericCoercion(t *testing.T) {
	cond := []Condition{{Field: "count", Operator: OperatorGreaterThan, Value: 5}}

	assert.True(t, Evaluate(cond, map[string]any{"count": "7"}))
	assert.False(t, Evaluate(cond, map[string]any{"count": "abc"}))
	assert.False(t, Evaluate(cond, map[string]any{"count": true}))
}

func TestEvaluate_AllConditionsAreANDed(t *testing.T) {
	payload := map[string]any{"status": "DONE", "total": 150}

	passing := Condition{Field: "status", Operator: OperatorEquals, Value: "DONE"}
	failing := Condition{Field: "total", Operator: OperatorLessThan, Value: 100}

	assert.True(t, Evaluate([]Condition{passing}, payload))
	assert.False(t, Evaluate([]Condition{passing, failing}, payload))
	assert.False(t, Evaluate([]Condition{failing, passing}, payload))
}

func TestEvaluate_DecodedJSONPayload(t *testing.T) {
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"appointment":{"price":80,"service":"haircut"}}`), &payload))

	conds := []Condition{
		{Field: "appointment.price", Operator: OperatorGreaterThan, Value: 50},
		{Field: "appointment.service", Operator: OperatorIn, Value: []any{"haircut", "beard"}},
	}

	assert.True(t, Evaluate(conds, payload))
}

func TestEvaluate_UnsupportedGoTypesDoNotPanic(t *testing.T) {
	payload := map[string]any{"ch": make(chan int), "fn": func() {}}

	assert.NotPanics(t, func() {
		Evaluate([]Condition{{Field: "ch", Operator: OperatorEquals, Value: 1}}, payload)
		Evaluate([]Condition{{Field: "fn.x", Operator: OperatorContains, Value: struct{}{}}}, payload)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cond    Condition
		wantErr error
	}{
		{"valid equals", Condition{Field: "status", Operator: OperatorEquals, Value: "DONE"}, nil},
		{"valid is_null without value", Condition{Field: "notes", Operator: OperatorIsNull}, nil},
		{"valid in", Condition{Field: "tier", Operator: OperatorIn, Value: []any{"a"}}, nil},
		{"empty field", Condition{Field: " ", Operator: OperatorEquals}, ErrEmptyField},
		{"unknown operator", Condition{Field: "x", Operator: "like"}, ErrUnknownOperator},
		{"in needs list", Condition{Field: "x", Operator: OperatorIn, Value: "a"}, ErrCollectionNeeded},
		{"not_in needs list", Condition{Field: "x", Operator: OperatorNotIn}, ErrCollectionNeeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.cond)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidateAll_ReportsPosition(t *testing.T) {
	err := ValidateAll([]Condition{
		{Field: "a", Operator: OperatorEquals, Value: 1},
		{Field: "b", Operator: "nope"},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownOperator)
	assert.Contains(t, err.Error(), "condition 1")
}
