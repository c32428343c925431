package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmdHasExpectedSubcommands(t *testing.T) {
	root := NewRootCmd()

	for _, name := range []string{"index", "search", "stats", "discover", "source"} {
		found, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, found.Name())
	}
}

func TestStatsCmdHasIndexInfoSubcommand(t *testing.T) {
	root := NewRootCmd()

	found, _, err := root.Find([]string{"stats", "index-info"})
	require.NoError(t, err)
	assert.Equal(t, "index-info", found.Name())
}

func TestIndexCmdHasStopSubcommand(t *testing.T) {
	root := NewRootCmd()

	found, _, err := root.Find([]string{"index", "stop"})
	require.NoError(t, err)
	assert.Equal(t, "stop", found.Name())
}

func TestSourceCmdHasManagementSubcommands(t *testing.T) {
	root := NewRootCmd()

	for _, name := range []string{"add", "enable", "disable", "remove"} {
		found, _, err := root.Find([]string{"source", name})
		require.NoError(t, err)
		assert.Equal(t, name, found.Name())
	}
}
