package toolflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skosovsky/toolflow/schema"
)

func TestNewTool_ValidatedValueReachesHandler(t *testing.T) {
	s := &schema.Object{
		Properties: []schema.Property{
			schema.Prop("q", &schema.String{}),
			schema.Prop("limit", &schema.Integer{Minimum: schema.Ptr(1.0)}).WithDefault(5),
		},
		Required: []string{"q"},
	}
	var got schema.Value
	tool, err := NewTool("search", "Search", s, func(_ context.Context, args schema.Value) (string, error) {
		got = args
		return "ok", nil
	})
	require.NoError(t, err)

	out, err := tool.Execute(context.Background(), `{"q":"go","extra":[1,2]}`)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, `{"q":"go","limit":5}`, got.String())
}

func TestNewTool_BlankArgumentsAreEmptyObject(t *testing.T) {
	tool, err := NewTool("ping", "Ping", &schema.Object{}, func(context.Context, schema.Value) (string, error) {
		return "pong", nil
	})
	require.NoError(t, err)
	out, err := tool.Execute(context.Background(), "  ")
	require.NoError(t, err)
	assert.Equal(t, "pong", out)
}

func TestNewTool_InvalidDefinitions(t *testing.T) {
	handler := func(context.Context, schema.Value) (string, error) { return "", nil }
	tests := []struct {
		name    string
		tool    string
		schema  schema.Schema
		handler Handler
		errText string
	}{
		{"empty name", "", &schema.Object{}, handler, "tool name"},
		{"spaces in name", "my tool", &schema.Object{}, handler, "tool name"},
		{"long name", strings.Repeat("a", 65), &schema.Object{}, handler, "tool name"},
		{"nil handler", "ok", &schema.Object{}, nil, "handler must not be nil"},
		{"not an object", "ok", &schema.String{}, handler, "must be an object"},
		{"nil schema", "ok", nil, handler, "must be an object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTool(tt.tool, "d", tt.schema, tt.handler)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errText)
		})
	}
}

func TestNewTool_HandlerErrorTaxonomy(t *testing.T) {
	tool, err := NewTool("fail", "d", &schema.Object{}, func(context.Context, schema.Value) (string, error) {
		return "", errors.New("db down")
	})
	require.NoError(t, err)
	_, err = tool.Execute(context.Background(), `{}`)
	assert.True(t, IsSystemError(err))

	tool, err = NewTool("fail", "d", &schema.Object{}, func(context.Context, schema.Value) (string, error) {
		return "", &ClientError{Reason: "no such city"}
	})
	require.NoError(t, err)
	_, err = tool.Execute(context.Background(), `{}`)
	assert.True(t, IsClientError(err))
}

func TestNewTool_Metadata(t *testing.T) {
	tool, err := NewTool("meta", "d", &schema.Object{}, func(context.Context, schema.Value) (string, error) {
		return "", nil
	}, WithTags("a", "b"), WithVersion("1.2.0"), WithDangerous(), WithStrict())
	require.NoError(t, err)
	tm, ok := tool.(ToolMetadata)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, tm.Tags())
	assert.Equal(t, "1.2.0", tm.Version())
	assert.True(t, tm.IsDangerous())
	assert.True(t, tm.Strict())
}

type weatherArgs struct {
	City string `json:"city" description:"City name"`
	Unit string `json:"unit,omitempty" enum:"c,f"`
}

type weatherOut struct {
	Temp float64 `json:"temp"`
	Unit string  `json:"unit"`
}

func TestNewTypedTool(t *testing.T) {
	tool, err := NewTypedTool("weather", "Get weather", func(_ context.Context, a weatherArgs) (weatherOut, error) {
		unit := a.Unit
		if unit == "" {
			unit = "c"
		}
		return weatherOut{Temp: 22.5, Unit: unit}, nil
	})
	require.NoError(t, err)

	out, err := tool.Execute(context.Background(), `{"city":"Moscow"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"temp":22.5,"unit":"c"}`, out)

	_, err = tool.Execute(context.Background(), `{"city":"Moscow","unit":"k"}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)

	decl := Declare(tool)
	props := decl.Parameters["properties"].(map[string]any)
	city := props["city"].(map[string]any)
	assert.Equal(t, "City name", city["description"])
}

func TestNewTypedTool_StringResultPassesThrough(t *testing.T) {
	tool, err := NewTypedTool("greet", "Greet", func(_ context.Context, a weatherArgs) (string, error) {
		return "hello " + a.City, nil
	})
	require.NoError(t, err)
	out, err := tool.Execute(context.Background(), `{"city":"Oslo"}`)
	require.NoError(t, err)
	assert.Equal(t, "hello Oslo", out)
}

func TestNewTypedTool_NonStructArgs(t *testing.T) {
	_, err := NewTypedTool("bad", "d", func(_ context.Context, _ []string) (string, error) {
		return "", nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrNotStruct)
}

func TestNewTypedTool_UnmarshalableResult(t *testing.T) {
	tool, err := NewTypedTool("chan", "d", func(_ context.Context, _ weatherArgs) (chan int, error) {
		return make(chan int), nil
	})
	require.NoError(t, err)
	_, err = tool.Execute(context.Background(), `{"city":"x"}`)
	assert.True(t, IsSystemError(err))
}
