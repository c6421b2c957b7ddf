package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunExitCodes(t *testing.T) {
	require.Equal(t, 1, run([]string{"5000"}))
	require.Equal(t, 1, run([]string{"port", "10"}))
	require.Equal(t, 1, run([]string{"0", "0"}))
	// a frame bound below the header size is rejected before binding
	require.Equal(t, 1, run([]string{"-max-frame", "2", "0", "10"}))
	require.Equal(t, 1, run([]string{"-max-frame", "70000", "0", "10"}))
}
