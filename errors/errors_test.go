package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPattern(t *testing.T) {
	base := stderrors.New("connection refused")
	err := Wrap(base, "KV", "LoadAllEnabledStreams", "list keys")

	require.Error(t, err)
	assert.Equal(t, "KV.LoadAllEnabledStreams: list keys failed: connection refused", err.Error())
	assert.True(t, stderrors.Is(err, base))

	assert.Nil(t, Wrap(nil, "C", "M", "a"))
}

func TestClassifiedWrappers(t *testing.T) {
	base := stderrors.New("some failure")

	transient := WrapTransient(base, "C", "M", "a")
	invalid := WrapInvalid(base, "C", "M", "a")
	fatal := WrapFatal(base, "C", "M", "a")

	assert.True(t, IsTransient(transient))
	assert.True(t, IsInvalid(invalid))
	assert.True(t, IsFatal(fatal))

	assert.Equal(t, ErrorTransient, Classify(transient))
	assert.Equal(t, ErrorInvalid, Classify(invalid))
	assert.Equal(t, ErrorFatal, Classify(fatal))

	var ce *ClassifiedError
	require.True(t, stderrors.As(transient, &ce))
	assert.Equal(t, "C", ce.Component)
	assert.Equal(t, "M", ce.Operation)
	assert.True(t, stderrors.Is(transient, base))

	assert.Nil(t, WrapTransient(nil, "C", "M", "a"))
	assert.Nil(t, WrapInvalid(nil, "C", "M", "a"))
	assert.Nil(t, WrapFatal(nil, "C", "M", "a"))
}

func TestStandardErrorClassification(t *testing.T) {
	assert.True(t, IsTransient(ErrCatalogueUnavailable))
	assert.True(t, IsTransient(fmt.Errorf("wrapped: %w", ErrConnectionTimeout)))
	assert.True(t, IsInvalid(ErrInvalidRuleKind))
	assert.True(t, IsInvalid(ErrRegexCompile))
	assert.True(t, IsFatal(ErrMissingConfig))

	// Pattern-based fallback for foreign errors
	assert.True(t, IsTransient(stderrors.New("dial tcp: i/o timeout")))
	assert.False(t, IsInvalid(stderrors.New("some random failure")))
}

func TestClassifyDefaultsToTransient(t *testing.T) {
	assert.Equal(t, ErrorTransient, Classify(nil))
	assert.Equal(t, ErrorTransient, Classify(stderrors.New("who knows")))
}

func TestErrorClassString(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(42).String())
}

func TestIsAsReexports(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", ErrStreamNotFound)
	assert.True(t, Is(wrapped, ErrStreamNotFound))

	var ce *ClassifiedError
	assert.True(t, As(WrapInvalid(ErrInvalidData, "C", "M", "a"), &ce))
}
