package provider

import (
	"context"
	"errors"
	"sync"
)

// MockClient is a scriptable Client used by pipeline tests in place of a
// real upstream call. It never performs network I/O.
type MockClient struct {
	mu            sync.Mutex
	Responses     []string
	ResponseIndex int
	Err           error
	CallCount     int
	LastRequest   Request
}

// NewMockClient returns a mock whose queue holds one "mock response": the
// first call returns it and later calls fail with a "no more scripted
// responses" error, unless SetResponses or SetError scripts other behavior.
func NewMockClient() *MockClient {
	return &MockClient{Responses: []string{"mock response"}}
}

// SetResponses replaces the scripted response queue and resets the cursor.
func (m *MockClient) SetResponses(responses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses = responses
	m.ResponseIndex = 0
}

// SetError scripts every subsequent Generate call to fail with err.
func (m *MockClient) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

// Reset clears call history and scripted error, restoring the default response.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses = []string{"mock response"}
	m.ResponseIndex = 0
	m.CallCount = 0
	m.Err = nil
	m.LastRequest = Request{}
}

// Generate implements Client.
func (m *MockClient) Generate(ctx context.Context, req Request) (*Response, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount++
	m.LastRequest = req

	if m.Err != nil {
		return nil, m.Err
	}
	if m.ResponseIndex >= len(m.Responses) {
		return nil, errors.New("mock provider: no more scripted responses")
	}

	text := m.Responses[m.ResponseIndex]
	m.ResponseIndex++

	model := req.Model
	if model == "" {
		model = "mock-model"
	}

	return &Response{
		Content: text,
		Model:   model,
		Usage: TokenUsage{
			PromptTokens:     len(req.UserPrompt) / 4,
			CompletionTokens: len(text) / 4,
			TotalTokens:      (len(req.UserPrompt) + len(text)) / 4,
		},
	}, nil
}
