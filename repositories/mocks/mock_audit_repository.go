package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/blogem/otel-poc/models"
)

// MockAuditRepository is a testify mock of repositories.AuditRepository
type MockAuditRepository struct {
	mock.Mock
}

// NewMockAuditRepository creates a mock that asserts its expectations on cleanup
func NewMockAuditRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockAuditRepository {
	m := &MockAuditRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Create provides a mock function
func (m *MockAuditRepository) Create(ctx context.Context, entry *models.AuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// GetByID provides a mock function
func (m *MockAuditRepository) GetByID(ctx context.Context, id int64) (*models.AuditEntry, error) {
	args := m.Called(ctx, id)
	entry, _ := args.Get(0).(*models.AuditEntry)
	return entry, args.Error(1)
}

// List provides a mock function
func (m *MockAuditRepository) List(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	args := m.Called(ctx, limit)
	entries, _ := args.Get(0).([]models.AuditEntry)
	return entries, args.Error(1)
}

// Count provides a mock function
func (m *MockAuditRepository) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}
