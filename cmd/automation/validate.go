package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dukex/automation/pkg/conditions"
	"github.com/dukex/automation/pkg/models"
	"github.com/dukex/automation/pkg/web"
	cli "github.com/urfave/cli/v3"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

var ErrInvalidDefinitions = errors.New("invalid workflow definitions found")

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Validate workflow definition files",
		ArgsUsage: "<file.json|file.yaml> [file...]",
		Action: func(_ context.Context, command *cli.Command) error {
			if command.Args().Len() == 0 {
				return errors.New("at least one definition file is required")
			}

			invalid := 0

			for _, path := range command.Args().Slice() {
				data, err := os.ReadFile(filepath.Clean(path))
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}

				reports, err := validateDefinitions(data, formatOf(path))
				if err != nil {
					return fmt.Errorf("failed to validate %s: %w", path, err)
				}

				invalid += printReports(os.Stdout, path, reports)
			}

			if invalid > 0 {
				return fmt.Errorf("%w: %d", ErrInvalidDefinitions, invalid)
			}

			return nil
		},
	}
}

// definitionReport is the validation outcome of one workflow definition.
type definitionReport struct {
	Name   string
	Errors []string
}

type definitionFormat int

const (
	formatJSON definitionFormat = iota
	formatYAML
)

func formatOf(path string) definitionFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML
	default:
		return formatJSON
	}
}

func decodeDocument(data []byte, format definitionFormat) (any, error) {
	var document any

	if format == formatYAML {
		if err := yaml.Unmarshal(data, &document); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}

		return document, nil
	}

	if err := json.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	return document, nil
}

// validateDefinitions accepts a single definition or an array of them. Each
// one is checked against the definition schema first and then by the
// workflow model itself.
func validateDefinitions(data []byte, format definitionFormat) ([]definitionReport, error) {
	document, err := decodeDocument(data, format)
	if err != nil {
		return nil, err
	}

	items, ok := document.([]any)
	if !ok {
		items = []any{document}
	}

	schema := gojsonschema.NewGoLoader(definitionSchema())
	reports := make([]definitionReport, 0, len(items))

	for i, item := range items {
		report := definitionReport{Name: fmt.Sprintf("#%d", i+1)}

		if obj, ok := item.(map[string]any); ok {
			if name, ok := obj["name"].(string); ok && name != "" {
				report.Name = name
			}
		}

		result, err := gojsonschema.Validate(schema, gojsonschema.NewGoLoader(item))
		if err != nil {
			return nil, err
		}

		if !result.Valid() {
			for _, desc := range result.Errors() {
				report.Errors = append(report.Errors, desc.String())
			}

			reports = append(reports, report)

			continue
		}

		if err := validateModel(item); err != nil {
			report.Errors = append(report.Errors, err.Error())
		}

		reports = append(reports, report)
	}

	return reports, nil
}

func validateModel(item any) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return err
	}

	var req web.CreateWorkflowRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return err
	}

	_, _, err = models.NewWorkflow(models.UUIDGenerator{}, time.Now().UTC(), models.NewWorkflowParams{
		TenantID:    "validate",
		Name:        req.Name,
		Description: req.Description,
		Trigger:     req.Trigger,
		Actions:     req.Actions,
		Conditions:  req.Conditions,
	})

	return err
}

func printReports(w io.Writer, path string, reports []definitionReport) int {
	invalid := 0

	_, _ = fmt.Fprintf(w, "%s\n", path)

	for _, report := range reports {
		if len(report.Errors) == 0 {
			_, _ = fmt.Fprintf(w, "  ✓ %s\n", report.Name)

			continue
		}

		invalid++

		_, _ = fmt.Fprintf(w, "  ✗ %s\n      %s\n", report.Name, strings.Join(report.Errors, "\n      "))
	}

	return invalid
}

func definitionSchema() map[string]any {
	condition := map[string]any{
		"type":     "object",
		"required": []string{"field", "operator"},
		"properties": map[string]any{
			"field":    map[string]any{"type": "string", "minLength": 1},
			"operator": map[string]any{"enum": conditions.Operators},
		},
	}

	conditionList := map[string]any{"type": "array", "items": condition}

	return map[string]any{
		"$schema":  "http://json-schema.org/draft-07/schema#",
		"type":     "object",
		"required": []string{"name", "trigger", "actions"},
		"properties": map[string]any{
			"name":        map[string]any{"type": "string", "minLength": 1},
			"description": map[string]any{"type": "string"},
			"conditions":  conditionList,
			"trigger": map[string]any{
				"type":     "object",
				"required": []string{"type"},
				"properties": map[string]any{
					"type":       map[string]any{"enum": models.TriggerTypes},
					"conditions": conditionList,
					"schedule": map[string]any{
						"type":     "object",
						"required": []string{"type"},
						"properties": map[string]any{
							"type":           map[string]any{"enum": []models.ScheduleType{models.ScheduleTypeOnce, models.ScheduleTypeRecurring}},
							"interval_value": map[string]any{"type": "integer", "minimum": 1},
							"cron":           map[string]any{"type": "string"},
							"timezone":       map[string]any{"type": "string"},
						},
					},
				},
			},
			"actions": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": map[string]any{
					"type":     "object",
					"required": []string{"type", "order"},
					"properties": map[string]any{
						"type":       map[string]any{"enum": models.ActionTypes},
						"order":      map[string]any{"type": "integer"},
						"config":     map[string]any{"type": "object"},
						"conditions": conditionList,
						"delay": map[string]any{
							"type":     "object",
							"required": []string{"value", "unit"},
							"properties": map[string]any{
								"value": map[string]any{"type": "integer", "minimum": 1},
								"unit":  map[string]any{"enum": []models.DelayUnit{models.DelayMinutes, models.DelayHours, models.DelayDays}},
							},
						},
					},
				},
			},
		},
	}
}
