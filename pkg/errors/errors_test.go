package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewError tests the basic creation of errors.
func TestNewError(t *testing.T) {
	tests := []struct {
		name    string
		code    ErrorCode
		message string
	}{
		{
			name:    "InvalidInput",
			code:    InvalidInput,
			message: "unsupported event type",
		},
		{
			name:    "ServiceUnavailable",
			code:    ServiceUnavailable,
			message: "vector store unreachable",
		},
		{
			name:    "ResourceNotFound",
			code:    ResourceNotFound,
			message: "document not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message)

			customErr, ok := err.(*Error)

			assert.True(t, ok, "should be a custom *Error")
			assert.Equal(t, tt.code, customErr.Code())
			assert.Equal(t, tt.message, customErr.Error())
			assert.Nil(t, customErr.Unwrap())
		})
	}
}

// TestWrapError tests error wrapping functionality.
func TestWrapError(t *testing.T) {
	originalErr := stderrors.New("connection refused")

	t.Run("Wrap normal error", func(t *testing.T) {
		err := Wrap(originalErr, ServiceUnavailable, "LLM request failed")
		require.Error(t, err)

		customErr, ok := err.(*Error)
		require.True(t, ok)
		assert.Equal(t, ServiceUnavailable, customErr.Code())
		assert.Equal(t, originalErr, customErr.Unwrap())
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("Wrap nil returns nil", func(t *testing.T) {
		assert.Nil(t, Wrap(nil, ServiceUnavailable, "ignored"))
	})

	t.Run("Wrapped chain unwraps to the original", func(t *testing.T) {
		inner := New(LLMGenerationFailed, "generation failed")
		outer := Wrap(inner, ProcessorExecutionFailed, "processor InsightGenerator failed")
		assert.True(t, stderrors.Is(outer, New(ProcessorExecutionFailed, "x")))
		assert.ErrorIs(t, outer, inner)
	})
}

// TestWithFields tests attaching structured context to errors.
func TestWithFields(t *testing.T) {
	t.Run("Fields on custom error", func(t *testing.T) {
		err := WithFields(
			New(ProcessorExecutionFailed, "processor failed"),
			Fields{"processor": "KnowledgeGraphWriter"},
		)

		customErr, ok := err.(*Error)
		require.True(t, ok)
		assert.Equal(t, ProcessorExecutionFailed, customErr.Code())
		assert.Equal(t, "KnowledgeGraphWriter", customErr.Fields()["processor"])
		assert.Contains(t, err.Error(), "processor=KnowledgeGraphWriter")
	})

	t.Run("Fields merge without mutating the original", func(t *testing.T) {
		base := WithFields(New(InvalidInput, "bad event"), Fields{"a": 1})
		derived := WithFields(base, Fields{"b": 2})

		baseErr := base.(*Error)
		derivedErr := derived.(*Error)
		assert.NotContains(t, baseErr.Fields(), "b")
		assert.Equal(t, 1, derivedErr.Fields()["a"])
		assert.Equal(t, 2, derivedErr.Fields()["b"])
	})

	t.Run("Fields on plain error", func(t *testing.T) {
		err := WithFields(stderrors.New("boom"), Fields{"k": "v"})
		customErr, ok := err.(*Error)
		require.True(t, ok)
		assert.Equal(t, Unknown, customErr.Code())
	})

	t.Run("Nil error returns nil", func(t *testing.T) {
		assert.Nil(t, WithFields(nil, Fields{"k": "v"}))
	})
}

// TestCode tests code extraction from arbitrary errors.
func TestCode(t *testing.T) {
	assert.Equal(t, ResourceNotFound, Code(New(ResourceNotFound, "missing")))
	assert.Equal(t, Unknown, Code(stderrors.New("opaque")))
}

// TestAs tests errors.As conversion to *Error.
func TestAs(t *testing.T) {
	err := Wrap(stderrors.New("inner"), Timeout, "deadline exceeded")

	var target *Error
	require.True(t, stderrors.As(err, &target))
	assert.Equal(t, Timeout, target.Code())
}
