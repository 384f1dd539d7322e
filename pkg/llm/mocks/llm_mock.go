package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/run-bigpig/llmatscale/pkg/interfaces"
)

// MockLLM is a testify mock of interfaces.LLM
type MockLLM struct {
	mock.Mock
	ModelName string
}

func (m *MockLLM) Generate(ctx context.Context, prompt string, options ...interfaces.GenerateOption) (string, error) {
	args := m.Called(ctx, prompt, options)
	return args.String(0), args.Error(1)
}

func (m *MockLLM) Name() string {
	if m.ModelName == "" {
		return "mock"
	}
	return m.ModelName
}

// Options applies the options captured by a call so tests can inspect them
func Options(raw interface{}) *interfaces.GenerateOptions {
	params := &interfaces.GenerateOptions{LLMConfig: &interfaces.LLMConfig{}}
	if options, ok := raw.([]interfaces.GenerateOption); ok {
		for _, option := range options {
			option(params)
		}
	}
	return params
}
