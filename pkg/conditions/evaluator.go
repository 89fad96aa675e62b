package conditions

import (
	"errors"
	"fmt"
	"strings"
)

// Operator is the comparison applied by a Condition.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "not_equals"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
	OperatorContains    Operator = "contains"
	OperatorNotContains Operator = "not_contains"
	OperatorIn          Operator = "in"
	OperatorNotIn       Operator = "not_in"
	OperatorIsNull      Operator = "is_null"
	OperatorIsNotNull   Operator = "is_not_null"
)

// Operators lists every supported operator.
var Operators = []Operator{
	OperatorEquals,
	OperatorNotEquals,
	OperatorGreaterThan,
	OperatorLessThan,
	OperatorContains,
	OperatorNotContains,
	OperatorIn,
	OperatorNotIn,
	OperatorIsNull,
	OperatorIsNotNull,
}

var (
	ErrEmptyField       = errors.New("condition field is required")
	ErrUnknownOperator  = errors.New("unknown condition operator")
	ErrCollectionNeeded = errors.New("condition value must be a list")
)

// Condition is a single predicate over a dot separated path into the payload.
type Condition struct {
	Field    string   `json:"field"           validate:"required"`
	Operator Operator `json:"operator"        validate:"required"`
	Value    any      `json:"value,omitempty"`
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %v", c.Field, c.Operator, c.Value)
}

// Validate checks a condition at definition time. Evaluation never fails;
// conditions that would not pass Validate simply evaluate to false.
func Validate(c Condition) error {
	if strings.TrimSpace(c.Field) == "" {
		return ErrEmptyField
	}

	if !knownOperator(c.Operator) {
		return fmt.Errorf("%w: %q", ErrUnknownOperator, c.Operator)
	}

	if c.Operator == OperatorIn || c.Operator == OperatorNotIn {
		if _, ok := FromAny(c.Value).Items(); !ok {
			return fmt.Errorf("%w for operator %s", ErrCollectionNeeded, c.Operator)
		}
	}

	return nil
}

// ValidateAll validates every condition and reports the first failure with its position.
func ValidateAll(list []Condition) error {
	for i, c := range list {
		if err := Validate(c); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}

	return nil
}

// Evaluate ANDs all conditions against payload. An empty list is true.
func Evaluate(list []Condition, payload map[string]any) bool {
	if len(list) == 0 {
		return true
	}

	root := FromAny(payload)
	if payload == nil {
		root = Object(nil)
	}

	for _, c := range list {
		if !EvaluateOne(c, root) {
			return false
		}
	}

	return true
}

// EvaluateOne evaluates a single condition against an already converted payload.
func EvaluateOne(c Condition, root Value) (result bool) {
	defer func() {
		if recover() != nil {
			result = false
		}
	}()

	if strings.TrimSpace(c.Field) == "" {
		return false
	}

	actual := root.Resolve(c.Field)
	expected := FromAny(c.Value)

	switch c.Operator {
	case OperatorEquals:
		return equals(actual, expected)
	case OperatorNotEquals:
		return !equals(actual, expected)
	case OperatorGreaterThan:
		return compare(actual, expected, func(a, b float64) bool { return a > b })
	case OperatorLessThan:
		return compare(actual, expected, func(a, b float64) bool { return a < b })
	case OperatorContains:
		if actual.IsNullish() {
			return false
		}

		return strings.Contains(actual.AsString(), expected.AsString())
	case OperatorNotContains:
		if actual.IsNullish() {
			return false
		}

		return !strings.Contains(actual.AsString(), expected.AsString())
	case OperatorIn:
		found, ok := member(actual, expected)

		return ok && found
	case OperatorNotIn:
		found, ok := member(actual, expected)

		return ok && !found
	case OperatorIsNull:
		return actual.IsNullish()
	case OperatorIsNotNull:
		return !actual.IsNullish()
	default:
		return false
	}
}

// equals treats a missing field as distinct from an explicit null.
func equals(actual, expected Value) bool {
	if actual.IsAbsent() {
		return false
	}

	return actual.Equal(expected)
}

func compare(actual, expected Value, cmp func(a, b float64) bool) bool {
	a, ok := actual.AsNumber()
	if !ok {
		return false
	}

	b, ok := expected.AsNumber()
	if !ok {
		return false
	}

	return cmp(a, b)
}

// member reports membership of actual in the expected list. ok is false
// when expected is not a list.
func member(actual, expected Value) (found bool, ok bool) {
	items, ok := expected.Items()
	if !ok {
		return false, false
	}

	for _, item := range items {
		if equals(actual, item) {
			return true, true
		}
	}

	return false, true
}

func knownOperator(op Operator) bool {
	for _, known := range Operators {
		if known == op {
			return true
		}
	}

	return false
}
