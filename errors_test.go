package toolflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skosovsky/toolflow/schema"
)

func TestClientError(t *testing.T) {
	tests := []struct {
		name   string
		err    *ClientError
		expect string
	}{
		{"with reason", &ClientError{Reason: "bad enum"}, "invalid tool input: bad enum"},
		{"empty reason", &ClientError{Reason: ""}, "invalid tool input: "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, tt.err.Error())
		})
	}
}

func TestSystemError(t *testing.T) {
	inner := errors.New("db connection refused")
	err := &SystemError{Err: inner}
	assert.Equal(t, "internal system error during tool execution", err.Error())
	assert.Same(t, inner, err.Unwrap())
}

func TestErrorsIs_As(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		target   error
		is       bool
		asClient bool
		asSystem bool
	}{
		{"ClientError direct", &ClientError{Reason: "x"}, ErrValidation, false, true, false},
		{"SystemError direct", &SystemError{Err: ErrTimeout}, ErrTimeout, true, false, true},
		{"wrapped ClientError", wrapErr{err: &ClientError{Reason: "y"}}, nil, false, true, false},
		{"wrapped SystemError", wrapErr{err: &SystemError{Err: ErrTimeout}}, ErrTimeout, true, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.target != nil {
				assert.Equal(t, tt.is, errors.Is(tt.err, tt.target), "errors.Is")
			}
			assert.Equal(t, tt.asClient, IsClientError(tt.err), "IsClientError")
			var ce *ClientError
			assert.Equal(t, tt.asClient, errors.As(tt.err, &ce))
			var se *SystemError
			assert.Equal(t, tt.asSystem, errors.As(tt.err, &se))
		})
	}
}

func TestWrapHandlerError(t *testing.T) {
	assert.NoError(t, wrapHandlerError(nil))

	ce := &ClientError{Reason: "bad"}
	assert.Same(t, ce, wrapHandlerError(ce))

	se := &SystemError{Err: errors.New("db")}
	assert.Same(t, se, wrapHandlerError(se))

	timeout := wrapHandlerError(fmt.Errorf("query: %w", context.DeadlineExceeded))
	var tce *ClientError
	require.ErrorAs(t, timeout, &tce)
	assert.True(t, tce.Retryable)
	assert.ErrorIs(t, timeout, ErrTimeout)

	plain := wrapHandlerError(errors.New("disk full"))
	assert.True(t, IsSystemError(plain))
	assert.NotContains(t, plain.Error(), "disk full")
}

func TestNewErrorPayload(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorPayload
	}{
		{
			name: "client",
			err:  &ClientError{Reason: "unknown city"},
			want: ErrorPayload{Error: "invalid tool input: unknown city"},
		},
		{
			name: "retryable",
			err:  &ClientError{Reason: "rate limited", Retryable: true},
			want: ErrorPayload{Error: "invalid tool input: rate limited", Retryable: true},
		},
		{
			name: "validation carries path",
			err:  validationError(&schema.ValidationError{Path: "$.q", Message: "expected string, got number"}),
			want: ErrorPayload{Error: "invalid tool input: $.q: expected string, got number", Path: "$.q"},
		},
		{
			name: "system hides cause",
			err:  errors.New("password=hunter2"),
			want: ErrorPayload{Error: "internal system error during tool execution"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewErrorPayload(tt.err))
		})
	}
}

func TestErrorPayloadJSON(t *testing.T) {
	out := errorPayload(&ClientError{Reason: "x"})
	assert.JSONEq(t, `{"error":"invalid tool input: x"}`, out)
	out = errorPayload(validationError(&schema.ValidationError{Path: "$", Message: "m"}))
	assert.JSONEq(t, `{"error":"invalid tool input: $: m","path":"$"}`, out)
}

func TestDecodeError(t *testing.T) {
	err := decodeError(errors.New("unexpected EOF"))
	assert.ErrorIs(t, err, ErrDecode)
	assert.True(t, IsClientError(err))
	assert.Contains(t, err.Error(), "json parse error")
}

func TestIsClientError(t *testing.T) {
	require.True(t, IsClientError(&ClientError{Reason: "x"}))
	require.False(t, IsClientError(&SystemError{Err: errors.New("x")}))
	require.False(t, IsClientError(ErrToolNotFound))
	require.True(t, IsClientError(wrapErr{err: &ClientError{Reason: "y"}}))
}

func TestIsSystemError(t *testing.T) {
	require.True(t, IsSystemError(&SystemError{Err: errors.New("x")}))
	require.True(t, IsSystemError(wrapErr{err: &SystemError{Err: ErrTimeout}}))
	require.False(t, IsSystemError(&ClientError{Reason: "x"}))
	require.False(t, IsSystemError(ErrToolNotFound))
}

type wrapErr struct {
	err error
}

func (e wrapErr) Error() string {
	if e.err == nil {
		return ""
	}
	return "wrap: " + e.err.Error()
}
func (e wrapErr) Unwrap() error { return e.err }
