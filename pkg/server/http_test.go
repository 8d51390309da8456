package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeAddr(t *testing.T) {
	require.Equal(t, ":8080", normalizeAddr("8080"))
	require.Equal(t, ":8080", normalizeAddr(":8080"))
	require.Equal(t, ":0", normalizeAddr(""))
}
