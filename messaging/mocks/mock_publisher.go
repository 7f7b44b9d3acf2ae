package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/blogem/otel-poc/models"
)

// MockPublisher is a testify mock of messaging.Publisher
type MockPublisher struct {
	mock.Mock
}

// NewMockPublisher creates a mock that asserts its expectations on cleanup
func NewMockPublisher(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockPublisher {
	m := &MockPublisher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Publish provides a mock function
func (m *MockPublisher) Publish(ctx context.Context, msg models.SomeMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}
