// Package testutil provides test helpers for toolflow: MockTool, a test
// Registry and ScriptedBackend.
package testutil

import (
	"context"
	"sync"

	"github.com/skosovsky/toolflow"
	"github.com/skosovsky/toolflow/schema"
)

// MockTool is a configurable Tool implementation for tests. It records the
// raw arguments of every call.
type MockTool struct {
	NameVal   string
	DescVal   string
	SchemaVal schema.Schema
	ExecuteFn func(ctx context.Context, rawArgs string) (string, error)

	mu    sync.Mutex
	calls []string
}

// Name returns the tool name.
func (m *MockTool) Name() string {
	if m.NameVal != "" {
		return m.NameVal
	}
	return "mock"
}

// Description returns the tool description.
func (m *MockTool) Description() string {
	return m.DescVal
}

// Schema returns the argument schema (or an empty object).
func (m *MockTool) Schema() schema.Schema {
	if m.SchemaVal != nil {
		return m.SchemaVal
	}
	return &schema.Object{}
}

// Execute records rawArgs and runs ExecuteFn if set, otherwise returns "".
func (m *MockTool) Execute(ctx context.Context, rawArgs string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, rawArgs)
	m.mu.Unlock()
	if m.ExecuteFn != nil {
		return m.ExecuteFn(ctx, rawArgs)
	}
	return "", nil
}

// Calls returns the raw arguments of every Execute call so far.
func (m *MockTool) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Ensure MockTool implements Tool.
var _ toolflow.Tool = (*MockTool)(nil)
