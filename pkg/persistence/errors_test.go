package persistence_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dukex/automation/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		workflowErr := persistence.NewWorkflowError("GetByID", "tenant-1", "workflow-123", persistence.ErrWorkflowNotFound)

		assert.True(t, persistence.IsWorkflowNotFound(workflowErr))
		assert.False(t, persistence.IsWorkflowAlreadyExists(workflowErr))
		assert.True(t, errors.Is(workflowErr, persistence.ErrWorkflowNotFound))
	})

	t.Run("wrapped errors are still detected", func(t *testing.T) {
		err := fmt.Errorf("loading: %w", persistence.NewWorkflowError("Update", "", "wf", persistence.ErrWorkflowNotFound))

		assert.True(t, persistence.IsWorkflowNotFound(err))
	})

	t.Run("workflow error contains context", func(t *testing.T) {
		err := persistence.NewWorkflowError("Update", "tenant-1", "workflow-123", persistence.ErrWorkflowNotFound)

		assert.Contains(t, err.Error(), "Update")
		assert.Contains(t, err.Error(), "workflow-123")
		assert.Contains(t, err.Error(), "tenant-1")
		assert.Contains(t, err.Error(), "workflow not found")
	})
}

func TestListWorkflowsOptions_Normalize(t *testing.T) {
	t.Parallel()

	opts := persistence.ListWorkflowsOptions{Limit: 500, Offset: -3}
	assert.NoError(t, opts.Normalize())
	assert.Equal(t, 20, opts.Limit)
	assert.Equal(t, 0, opts.Offset)
	assert.Equal(t, "created_at", opts.SortBy)
	assert.Equal(t, "desc", opts.SortOrder)

	bad := persistence.ListWorkflowsOptions{SortBy: "name; DROP TABLE workflows; --"}
	assert.True(t, persistence.IsInvalidSortField(bad.Normalize()))

	badOrder := persistence.ListWorkflowsOptions{SortOrder: "sideways"}
	assert.True(t, persistence.IsInvalidSortOrder(badOrder.Normalize()))
}
