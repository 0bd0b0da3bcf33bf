package scraper

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOfWrappedError(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("article: %w", NavigationTimeoutError("https://example.com", context.DeadlineExceeded))
	assert.Equal(t, KindNavigationTimeout, KindOf(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, KindUpstream, KindOf(errors.New("boom")))
}

func TestErrorMessages(t *testing.T) {
	t.Parallel()

	v := ValidationError("device", "Device not found", "nope")
	require.Equal(t, "device: Device not found", v.Error())

	e := ExtractionError("links", "https://example.com", "no links")
	require.Equal(t, "links https://example.com: no links", e.Error())
	require.Equal(t, KindExtraction, KindOf(e))
}

func TestStringPtr(t *testing.T) {
	t.Parallel()

	assert.Nil(t, StringPtr(""))
	require.NotNil(t, StringPtr("x"))
	assert.Equal(t, "x", *StringPtr("x"))
}
