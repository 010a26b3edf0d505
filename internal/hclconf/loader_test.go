package hclconf

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/solkit/internal/ctxlog"
)

func testCtx() context.Context {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return ctxlog.WithLogger(context.Background(), logger)
}

func writeProfile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FullProfile(t *testing.T) {
	// --- Arrange ---
	path := writeProfile(t, `
portal {
  url             = "https://org.example.com/sharing/rest"
  token           = "secret"
  timeout_seconds = 60
}

deployment {
  name   = "Ops Deployment"
  folder = "Deployed Solutions"
}
`)

	// --- Act ---
	profile, err := NewLoader().Load(testCtx(), path)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "https://org.example.com/sharing/rest", profile.Portal.URL)
	assert.Equal(t, "secret", profile.Portal.Token)
	assert.Equal(t, 60*time.Second, profile.Portal.Timeout)
	assert.Equal(t, "Ops Deployment", profile.Deployment.Name)
	assert.Equal(t, "Deployed Solutions", profile.Deployment.Folder)
}

func TestLoad_TokenFallsBackToEnvironment(t *testing.T) {
	t.Setenv(TokenEnvVar, "env-secret")
	path := writeProfile(t, `
portal {
  url = "https://org.example.com/sharing/rest"
}
`)

	profile, err := NewLoader().Load(testCtx(), path)

	require.NoError(t, err)
	assert.Equal(t, "env-secret", profile.Portal.Token)
}

func TestLoad_ProfileTokenWinsOverEnvironment(t *testing.T) {
	t.Setenv(TokenEnvVar, "env-secret")
	path := writeProfile(t, `
portal {
  url   = "https://org.example.com/sharing/rest"
  token = "file-secret"
}
`)

	profile, err := NewLoader().Load(testCtx(), path)

	require.NoError(t, err)
	assert.Equal(t, "file-secret", profile.Portal.Token)
}

func TestLoad_MissingPortalURLFailsValidation(t *testing.T) {
	path := writeProfile(t, `
deployment {
  folder = "Somewhere"
}
`)

	_, err := NewLoader().Load(testCtx(), path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "portal url")
}

func TestLoad_MalformedHCLFails(t *testing.T) {
	path := writeProfile(t, `portal { url = `)

	_, err := NewLoader().Load(testCtx(), path)

	assert.Error(t, err)
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := NewLoader().Load(testCtx(), filepath.Join(t.TempDir(), "absent.hcl"))

	assert.Error(t, err)
}
