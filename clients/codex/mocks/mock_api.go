package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/blogem/otel-poc/models"
)

// MockAPI is a testify mock of codex.API
type MockAPI struct {
	mock.Mock
}

// NewMockAPI creates a mock that asserts its expectations on cleanup
func NewMockAPI(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockAPI {
	m := &MockAPI{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// GetThema provides a mock function
func (m *MockAPI) GetThema(ctx context.Context, id int) (*models.Thema, error) {
	args := m.Called(ctx, id)
	thema, _ := args.Get(0).(*models.Thema)
	return thema, args.Error(1)
}
