package llm

import "context"

// MockClient is a test double for Client. Responses are either scripted in
// order or produced by CompleteFunc.
type MockClient struct {
	ProviderName string
	CompleteFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Scripted responses, consumed one per call when CompleteFunc is nil.
	Responses []*CompletionResponse
	Err       error

	// Requests records every request received, for assertions.
	Requests []CompletionRequest
	calls    int
}

func (m *MockClient) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.Requests = append(m.Requests, req)
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if m.calls < len(m.Responses) {
		resp := m.Responses[m.calls]
		m.calls++
		return resp, nil
	}
	return &CompletionResponse{Content: "mock response"}, nil
}
