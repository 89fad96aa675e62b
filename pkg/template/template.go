// Package template renders {{path.to.value}} placeholders against an execution context.
package template

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/dukex/automation/pkg/conditions"
)

var placeholder = regexp.MustCompile(`\{\{\s*\.?([A-Za-z0-9_.\-]+)\s*\}\}`)

// NeedsTemplating reports whether input contains at least one placeholder.
func NeedsTemplating(input string) bool {
	return placeholder.MatchString(input)
}

// Render replaces each placeholder with the string form of the value found at its
// dotted path. Absent and null values render as empty strings, arrays and
// objects as JSON.
func Render(input string, data map[string]any) string {
	return render(input, data, func(value string) string { return value })
}

// RenderJSON is Render for JSON documents: each substituted value is escaped
// as the contents of a JSON string, so placeholders belong inside quotes.
func RenderJSON(input string, data map[string]any) string {
	return render(input, data, escapeJSON)
}

func render(input string, data map[string]any, escape func(string) string) string {
	if !strings.Contains(input, "{{") {
		return input
	}

	root := conditions.FromAny(data)

	return placeholder.ReplaceAllStringFunc(input, func(match string) string {
		path := placeholder.FindStringSubmatch(match)[1]

		return escape(root.Resolve(path).AsString())
	})
}

func escapeJSON(value string) string {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(value); err != nil {
		return ""
	}

	quoted := bytes.TrimSpace(buf.Bytes())

	return string(quoted[1 : len(quoted)-1])
}

// RenderMap renders every value of values, leaving keys untouched.
func RenderMap(values map[string]string, data map[string]any) map[string]string {
	if values == nil {
		return nil
	}

	out := make(map[string]string, len(values))
	for key, value := range values {
		out[key] = Render(value, data)
	}

	return out
}
