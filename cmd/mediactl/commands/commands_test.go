package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)

	for _, bad := range []string{"0", "-1", "abc", ""} {
		_, err := parseID(bad)
		assert.Error(t, err, bad)
	}
}

func TestCommandArgs(t *testing.T) {
	assert.Error(t, protectCmd.Args(protectCmd, nil))
	assert.NoError(t, protectCmd.Args(protectCmd, []string{"1", "2"}))
	assert.Error(t, statusCmd.Args(statusCmd, []string{"1", "2"}))
}
