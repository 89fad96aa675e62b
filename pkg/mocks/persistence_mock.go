package mocks

import (
	"context"
	"time"

	"github.com/dukex/automation/pkg/models"
	"github.com/dukex/automation/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockWorkflowRepository is a mock implementation of persistence.WorkflowRepository interface.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) Update(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) RecordExecution(
	ctx context.Context, execution *models.WorkflowExecution, now time.Time,
) (*models.Workflow, error) {
	args := m.Called(ctx, execution, now)

	workflow, _ := args.Get(0).(*models.Workflow)

	return workflow, args.Error(1)
}

func (m *MockWorkflowRepository) Delete(ctx context.Context, tenantID, workflowID string) error {
	args := m.Called(ctx, tenantID, workflowID)

	return args.Error(0)
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, tenantID, workflowID string) (*models.Workflow, error) {
	args := m.Called(ctx, tenantID, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) ListWorkflows(ctx context.Context, opts persistence.ListWorkflowsOptions) (*persistence.WorkflowListResult, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*persistence.WorkflowListResult), args.Error(1)
}

func (m *MockWorkflowRepository) FindByTriggerType(ctx context.Context, tenantID string, triggerType models.TriggerType) ([]*models.Workflow, error) {
	return m.workflows(m.Called(ctx, tenantID, triggerType))
}

func (m *MockWorkflowRepository) FindActiveWorkflows(ctx context.Context, tenantID string, triggerType models.TriggerType) ([]*models.Workflow, error) {
	return m.workflows(m.Called(ctx, tenantID, triggerType))
}

func (m *MockWorkflowRepository) FindScheduledWorkflows(ctx context.Context, tenantID string) ([]*models.Workflow, error) {
	return m.workflows(m.Called(ctx, tenantID))
}

func (m *MockWorkflowRepository) workflows(args mock.Arguments) ([]*models.Workflow, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

// MockExecutionRepository is a mock implementation of persistence.ExecutionRepository interface.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) Append(ctx context.Context, execution *models.WorkflowExecution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) GetByWorkflow(ctx context.Context, tenantID, workflowID string, limit int) ([]*models.WorkflowExecution, error) {
	args := m.Called(ctx, tenantID, workflowID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowExecution), args.Error(1)
}

func (m *MockExecutionRepository) Stats(ctx context.Context, tenantID, workflowID string) (models.ExecutionStats, error) {
	args := m.Called(ctx, tenantID, workflowID)

	return args.Get(0).(models.ExecutionStats), args.Error(1)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	workflowRepo  *MockWorkflowRepository
	executionRepo *MockExecutionRepository
}

// NewMockPersistence creates a new MockPersistence with all mock repositories.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		workflowRepo:  &MockWorkflowRepository{},
		executionRepo: &MockExecutionRepository{},
	}
}

// GetMockWorkflowRepository returns the underlying mock workflow repository for setting up expectations.
func (m *MockPersistence) GetMockWorkflowRepository() *MockWorkflowRepository {
	return m.workflowRepo
}

func (m *MockPersistence) GetMockExecutionRepository() *MockExecutionRepository {
	return m.executionRepo
}

func (m *MockPersistence) WorkflowRepository() persistence.WorkflowRepository {
	return m.workflowRepo
}

func (m *MockPersistence) ExecutionRepository() persistence.ExecutionRepository {
	return m.executionRepo
}

// ScheduleRepository is not mocked; the scheduler is tested against real storage.
func (m *MockPersistence) ScheduleRepository() persistence.ScheduleRepository {
	return nil
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
