package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches direct error", func(t *testing.T) {
		err := New(CodeNotFound, "test not found")
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeInternal))
	})

	t.Run("matches through wrap layers", func(t *testing.T) {
		inner := New(CodeInvalidInput, "bad weight")
		outer := Wrap(inner, CodeValidation, "config rejected")
		// The outermost code wins; the inner code is still reachable via Unwrap.
		assert.True(t, HasCode(outer, CodeValidation))
	})

	t.Run("matches through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("load config: %w", New(CodeUnavailable, "edge store timeout"))
		assert.True(t, HasCode(err, CodeUnavailable))
	})

	t.Run("false for plain errors", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("plain"), CodeInternal))
	})
}

func TestWrap(t *testing.T) {
	t.Run("nil in, nil out", func(t *testing.T) {
		assert.Nil(t, Wrap(nil, CodeInternal, "should vanish"))
	})

	t.Run("preserves cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(cause, CodeUnavailable, "config fetch failed")
		require.Error(t, err)
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "config fetch failed")
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, CodeNotFound, GetCode(New(CodeNotFound, "missing")))
	assert.Equal(t, CodeInternal, GetCode(errors.New("unclassified")))
}

func TestErrorsIsByCode(t *testing.T) {
	a := New(CodeInsufficientData, "no views for variant b")
	b := New(CodeInsufficientData, "different message")
	assert.ErrorIs(t, a, b)
}
