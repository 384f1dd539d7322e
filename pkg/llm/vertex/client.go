package vertex

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/run-bigpig/llmatscale/pkg/interfaces"
	"github.com/run-bigpig/llmatscale/pkg/llm"
	"github.com/run-bigpig/llmatscale/pkg/logging"
	"github.com/run-bigpig/llmatscale/pkg/retry"
)

// VertexAI model constants
const (
	ModelGemini15Pro   = "gemini-1.5-pro"
	ModelGemini15Flash = "gemini-1.5-flash"
	ModelGemini20Flash = "gemini-2.0-flash"
)

// DefaultModel is the default Vertex AI model
const DefaultModel = ModelGemini15Pro

// Client represents a Vertex AI client
type Client struct {
	client          *genai.Client
	model           string
	projectID       string
	location        string
	credentialsFile string
	logger          logging.Logger
	retryExecutor   *retry.Executor
}

// ClientOption is a function that configures the Client
type ClientOption func(*Client)

// WithModel sets the model for the client
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithLocation sets the location for the client
func WithLocation(location string) ClientOption {
	return func(c *Client) {
		if location != "" {
			c.location = location
		}
	}
}

// WithRetry configures retry policy for the client
func WithRetry(opts ...retry.Option) ClientOption {
	return func(c *Client) {
		c.retryExecutor = retry.NewExecutor(retry.NewPolicy(opts...))
	}
}

// WithLogger sets the logger for the client
func WithLogger(logger logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithCredentialsFile sets the path to the service account credentials file
func WithCredentialsFile(credentialsFile string) ClientOption {
	return func(c *Client) {
		c.credentialsFile = credentialsFile
	}
}

func newClient(projectID string, options ...ClientOption) *Client {
	client := &Client{
		model:         DefaultModel,
		projectID:     projectID,
		location:      "us-central1",
		logger:        logging.New(),
		retryExecutor: retry.NewExecutor(nil),
	}

	for _, opt := range options {
		opt(client)
	}

	return client
}

// NewClient creates a new Vertex AI client
func NewClient(ctx context.Context, projectID string, options ...ClientOption) (*Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}

	client := newClient(projectID, options...)

	var clientOptions []option.ClientOption
	if client.credentialsFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(client.credentialsFile))
	}

	vertexClient, err := genai.NewClient(ctx, projectID, client.location, clientOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}

	client.client = vertexClient
	return client, nil
}

// Name returns the client name
func (c *Client) Name() string {
	return fmt.Sprintf("vertex:%s", c.model)
}

// configure builds a GenerativeModel carrying the generation parameters
func (c *Client) configure(system string, temperature, topP float64, maxTokens int, stop []string) *genai.GenerativeModel {
	model := c.client.GenerativeModel(c.model)

	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	// Vertex treats an unset temperature as the model default, so zero is sent explicitly
	temp := float32(temperature)
	model.Temperature = &temp

	if topP > 0 {
		p := float32(topP)
		model.TopP = &p
	}
	if maxTokens > 0 {
		model.SetMaxOutputTokens(int32(maxTokens))
	}
	if len(stop) > 0 {
		model.StopSequences = stop
	}

	return model
}

// Generate implements interfaces.LLM.Generate
func (c *Client) Generate(ctx context.Context, prompt string, options ...interfaces.GenerateOption) (string, error) {
	params := llm.ApplyOptions(0.7, options...)

	model := c.configure(
		params.SystemMessage,
		params.LLMConfig.Temperature,
		params.LLMConfig.TopP,
		params.LLMConfig.MaxTokens,
		params.LLMConfig.StopSequences,
	)

	if params.ResponseFormat != nil && params.ResponseFormat.Type != interfaces.ResponseFormatText {
		model.ResponseMIMEType = "application/json"
	}

	var response *genai.GenerateContentResponse
	err := c.retryExecutor.Execute(ctx, func() error {
		var genErr error
		response, genErr = model.GenerateContent(ctx, genai.Text(prompt))
		if genErr != nil {
			return classify(genErr)
		}
		return nil
	})
	if err != nil {
		c.logger.Error(ctx, "Error from Vertex AI", map[string]interface{}{
			"error": err.Error(),
			"model": c.model,
		})
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	return responseText(response)
}

// Chat replays the history into a chat session and sends the last message
func (c *Client) Chat(ctx context.Context, messages []llm.Message, params *llm.GenerateParams) (string, error) {
	if params == nil {
		params = llm.DefaultGenerateParams()
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("no messages to send")
	}

	var system string
	for _, msg := range messages {
		if msg.Role == "system" {
			system = msg.Content
		}
	}

	history, err := c.convertMessages(messages)
	if err != nil {
		return "", err
	}
	if len(history) == 0 {
		return "", fmt.Errorf("no user message to send")
	}

	model := c.configure(system, params.Temperature, params.TopP, params.MaxTokens, params.StopSequences)
	cs := model.StartChat()
	cs.History = history[:len(history)-1]
	last := history[len(history)-1]

	var response *genai.GenerateContentResponse
	err = c.retryExecutor.Execute(ctx, func() error {
		var sendErr error
		response, sendErr = cs.SendMessage(ctx, last.Parts...)
		if sendErr != nil {
			return classify(sendErr)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to send chat message: %w", err)
	}

	return responseText(response)
}

// convertMessages converts llm.Message values to Vertex AI contents.
// System messages are carried by SystemInstruction instead.
func (c *Client) convertMessages(messages []llm.Message) ([]*genai.Content, error) {
	var contents []*genai.Content

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			continue
		case "user":
			contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(msg.Content)}})
		case "assistant":
			contents = append(contents, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(msg.Content)}})
		default:
			return nil, fmt.Errorf("unsupported message role: %s", msg.Role)
		}
	}

	return contents, nil
}

func responseText(response *genai.GenerateContentResponse) (string, error) {
	if response == nil || len(response.Candidates) == 0 {
		return "", fmt.Errorf("vertex: %w", llm.ErrEmptyResponse)
	}

	candidate := response.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("vertex: %w", llm.ErrEmptyResponse)
	}

	var result strings.Builder
	for _, part := range candidate.Content.Parts {
		if textPart, ok := part.(genai.Text); ok {
			result.WriteString(string(textPart))
		}
	}

	return result.String(), nil
}

// classify maps gRPC status codes onto llm.APIError
func classify(err error) error {
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		return err
	}

	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	var code int
	switch st.Code() {
	case codes.ResourceExhausted:
		code = http.StatusTooManyRequests
	case codes.Unauthenticated:
		code = http.StatusUnauthorized
	case codes.PermissionDenied:
		code = http.StatusForbidden
	case codes.InvalidArgument, codes.FailedPrecondition, codes.NotFound:
		code = http.StatusBadRequest
	case codes.DeadlineExceeded:
		code = http.StatusRequestTimeout
	default:
		code = http.StatusServiceUnavailable
	}

	return llm.NewAPIError("vertex", code, st.Message(), err)
}

// Close closes the Vertex AI client
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
