package harvest

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTruncate(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", Truncate("abc", 0))
	require.Equal(t, "ab", Truncate("abc", 2))
	require.Equal(t, "abc", Truncate("abc", 3))
	require.Equal(t, "abc", Truncate("abc", 10))
	require.Equal(t, "日本", Truncate("日本語", 2))
}

func TestStageError_UnwrapsKindAndCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := newStageError(StagePersisting, ErrPersistence, "archive insert failed", cause)

	require.True(t, errors.Is(err, ErrPersistence))
	require.True(t, errors.Is(err, cause))
	require.False(t, errors.Is(err, ErrUpstreamModel))
	require.Equal(t, "persisting: persistence error: archive insert failed", err.Error())
}

func TestStageError_DetailIsBounded(t *testing.T) {
	t.Parallel()

	err := newStageError(StageInvoking, ErrUpstreamModel, strings.Repeat("d", 2000), nil)
	require.Len(t, err.Detail, MaxDetailChars)
	require.True(t, errors.Is(err, ErrUpstreamModel))
}

func TestStageError_WithoutDetail(t *testing.T) {
	t.Parallel()

	err := newStageError(StageValidating, ErrValidation, "", nil)
	require.Equal(t, "validating: validation error", err.Error())
}
