package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/solkit/internal/app"
)

func TestParse_ValidDeployCommand(t *testing.T) {
	var out bytes.Buffer

	cfg, shouldExit, err := Parse([]string{"-profile", "prod.hcl", "deploy", "abc123"}, &out)

	require.NoError(t, err)
	assert.False(t, shouldExit)
	require.NotNil(t, cfg)
	assert.Equal(t, app.CommandDeploy, cfg.Command)
	assert.Equal(t, "abc123", cfg.ItemID)
	assert.Equal(t, "prod.hcl", cfg.ProfilePath)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestParse_AllFlags(t *testing.T) {
	var out bytes.Buffer

	cfg, _, err := Parse([]string{
		"-profile", "prod.hcl",
		"-job-id", "job-42",
		"-log-format", "json",
		"-log-level", "debug",
		"delete", "abc123",
	}, &out)

	require.NoError(t, err)
	assert.Equal(t, app.CommandDelete, cfg.Command)
	assert.Equal(t, "job-42", cfg.JobID)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestParse_NoArgumentsPrintsUsage(t *testing.T) {
	var out bytes.Buffer

	cfg, shouldExit, err := Parse(nil, &out)

	require.NoError(t, err)
	assert.True(t, shouldExit)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "Usage:")
}

func TestParse_Errors(t *testing.T) {
	cases := map[string][]string{
		"missing item id":    {"-profile", "p.hcl", "deploy"},
		"missing profile":    {"deploy", "abc123"},
		"unknown command":    {"-profile", "p.hcl", "destroy", "abc123"},
		"invalid log format": {"-profile", "p.hcl", "-log-format", "xml", "deploy", "abc123"},
		"invalid log level":  {"-profile", "p.hcl", "-log-level", "loud", "deploy", "abc123"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			var out bytes.Buffer

			cfg, shouldExit, err := Parse(args, &out)

			require.Error(t, err)
			assert.False(t, shouldExit)
			assert.Nil(t, cfg)
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
		})
	}
}

func TestParse_CommandIsCaseInsensitive(t *testing.T) {
	var out bytes.Buffer

	cfg, _, err := Parse([]string{"-profile", "p.hcl", "DEPLOY", "abc123"}, &out)

	require.NoError(t, err)
	assert.Equal(t, app.CommandDeploy, cfg.Command)
}

func TestParse_HelpExitsCleanly(t *testing.T) {
	var out bytes.Buffer

	cfg, shouldExit, err := Parse([]string{"-h"}, &out)

	require.NoError(t, err)
	assert.True(t, shouldExit)
	assert.Nil(t, cfg)
	assert.True(t, strings.Contains(out.String(), "deploy"))
}
