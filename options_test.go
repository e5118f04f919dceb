package toolflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/skosovsky/toolflow/chat"
)

func TestToolOptions(t *testing.T) {
	o := applyToolOptions([]ToolOption{
		WithStrict(),
		WithTimeout(3 * time.Second),
		WithTags("search", "web"),
		WithVersion("1.0.0"),
		WithDangerous(),
	})
	assert.True(t, o.strict)
	assert.Equal(t, 3*time.Second, o.timeout)
	assert.Equal(t, []string{"search", "web"}, o.tags)
	assert.Equal(t, "1.0.0", o.version)
	assert.True(t, o.dangerous)

	assert.Equal(t, toolOptions{}, applyToolOptions(nil))
}

func TestRegistryOptions(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, 30*time.Second, reg.opts.timeout)
	assert.Nil(t, reg.sem)

	reg = NewRegistry(
		WithDefaultTimeout(time.Second),
		WithMaxConcurrency(3),
		WithOnBeforeExecute(func(context.Context, chat.ToolCall) {}),
		WithOnAfterExecute(func(context.Context, chat.ToolCall, ExecutionSummary) {}),
	)
	assert.Equal(t, time.Second, reg.opts.timeout)
	assert.Equal(t, 3, cap(reg.sem))
	assert.NotNil(t, reg.opts.onBefore)
	assert.NotNil(t, reg.opts.onAfter)

	reg = NewRegistry(WithMaxConcurrency(0))
	assert.Nil(t, reg.sem)
}
