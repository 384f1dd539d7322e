package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/run-bigpig/llmatscale/pkg/interfaces"
)

// MockModerator is a testify mock of interfaces.Moderator
type MockModerator struct {
	mock.Mock
}

func (m *MockModerator) Moderate(ctx context.Context, input string) (*interfaces.ModerationResult, error) {
	args := m.Called(ctx, input)
	result, _ := args.Get(0).(*interfaces.ModerationResult)
	return result, args.Error(1)
}
