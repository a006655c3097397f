package app

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInTestModeFollowsEnv(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	require.True(t, InTestMode())

	// The flag is cached; a refresh picks up the new value.
	t.Setenv(testModeEnv, "")
	require.True(t, InTestMode())
	RefreshTestMode()
	require.False(t, InTestMode())
}
