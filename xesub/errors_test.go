package xesub

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestErrorClassification(t *testing.T) {
	err := errors.Mark(errors.New("probe failed"), ErrSetup)
	require.True(t, errors.Is(err, ErrSetup))
	require.False(t, errors.Is(err, ErrResource))
	require.False(t, IsTimeout(err))

	timeout := errors.Mark(errors.Mark(errors.New("slow"), ErrTimeout), ErrSync)
	require.True(t, IsTimeout(timeout))
	require.True(t, errors.Is(timeout, ErrSync))
}
