package llm

import "github.com/run-bigpig/llmatscale/pkg/interfaces"

// ApplyOptions builds GenerateOptions starting from the given temperature
func ApplyOptions(defaultTemperature float64, options ...interfaces.GenerateOption) *interfaces.GenerateOptions {
	params := &interfaces.GenerateOptions{
		LLMConfig: &interfaces.LLMConfig{
			Temperature: defaultTemperature,
		},
	}

	for _, option := range options {
		if option != nil {
			option(params)
		}
	}

	if params.LLMConfig == nil {
		params.LLMConfig = &interfaces.LLMConfig{Temperature: defaultTemperature}
	}

	return params
}

func ensureConfig(options *interfaces.GenerateOptions) {
	if options.LLMConfig == nil {
		options.LLMConfig = &interfaces.LLMConfig{}
	}
}

// WithTemperature creates a GenerateOption to set the temperature
func WithTemperature(temperature float64) interfaces.GenerateOption {
	return func(options *interfaces.GenerateOptions) {
		ensureConfig(options)
		options.LLMConfig.Temperature = temperature
	}
}

// WithTopP creates a GenerateOption to set the top_p
func WithTopP(topP float64) interfaces.GenerateOption {
	return func(options *interfaces.GenerateOptions) {
		ensureConfig(options)
		options.LLMConfig.TopP = topP
	}
}

// WithMaxTokens creates a GenerateOption to cap the completion length
func WithMaxTokens(maxTokens int) interfaces.GenerateOption {
	return func(options *interfaces.GenerateOptions) {
		ensureConfig(options)
		options.LLMConfig.MaxTokens = maxTokens
	}
}

// WithStopSequences creates a GenerateOption to set the stop sequences
func WithStopSequences(stopSequences []string) interfaces.GenerateOption {
	return func(options *interfaces.GenerateOptions) {
		ensureConfig(options)
		options.LLMConfig.StopSequences = stopSequences
	}
}

// WithSystemMessage creates a GenerateOption to set the system message
func WithSystemMessage(systemMessage string) interfaces.GenerateOption {
	return func(options *interfaces.GenerateOptions) {
		options.SystemMessage = systemMessage
	}
}

// WithResponseFormat creates a GenerateOption to set the response format
func WithResponseFormat(format interfaces.ResponseFormat) interfaces.GenerateOption {
	return func(options *interfaces.GenerateOptions) {
		options.ResponseFormat = &format
	}
}

// WithJSONResponse asks the provider for a bare JSON object
func WithJSONResponse() interfaces.GenerateOption {
	return WithResponseFormat(interfaces.ResponseFormat{Type: interfaces.ResponseFormatJSON})
}
