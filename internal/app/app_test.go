package app

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/solkit/internal/config"
	"github.com/vk/solkit/internal/solution"
	"github.com/vk/solkit/internal/testutil"
)

type stubLoader struct {
	profile *config.Profile
	err     error
}

func (s *stubLoader) Load(ctx context.Context, filePath string) (*config.Profile, error) {
	return s.profile, s.err
}

func testLoader() *stubLoader {
	return &stubLoader{profile: &config.Profile{
		Portal: config.Portal{URL: "https://org.example.com/sharing/rest"},
	}}
}

func testConfig(command, itemID string) *Config {
	return &Config{
		Command:     command,
		ItemID:      itemID,
		ProfilePath: "profile.hcl",
		LogFormat:   "text",
		LogLevel:    "error",
	}
}

func TestNewApp_RegistersCoreModules(t *testing.T) {
	var out bytes.Buffer

	a := NewApp(&out, testConfig(CommandDeploy, "abc"), testLoader())

	assert.ElementsMatch(t, []string{"Group", "Web Map"}, a.Registry().Types())
}

func TestNewApp_PanicsOnProfileFailure(t *testing.T) {
	var out bytes.Buffer
	loader := &stubLoader{err: fmt.Errorf("no such file")}

	assert.Panics(t, func() {
		NewApp(&out, testConfig(CommandDeploy, "abc"), loader)
	})
}

func TestRun_DeployEndToEnd(t *testing.T) {
	// --- Arrange ---
	var out bytes.Buffer
	cfg := testConfig(CommandDeploy, "src")
	a := NewApp(&out, cfg, testLoader())

	fake := testutil.NewFakePortal()
	sol := &solution.Solution{Templates: []solution.ItemTemplate{
		{ItemID: "base", Type: "Web Map", Item: []byte(`{"title": "Map"}`)},
	}}
	payload, err := sol.Marshal()
	require.NoError(t, err)
	fake.SeedJSON("src",
		fmt.Sprintf(`{"id": "src", "type": "Solution", "title": "Src", "typeKeywords": ["Solution", "Template"], "schemaVersion": %d}`, solution.CurrentSchemaVersion),
		string(payload))
	fake.SetIDSequence("container1", "new-base")
	a.SetRepository(fake)

	// --- Act ---
	err = a.Run(context.Background(), cfg)

	// --- Assert ---
	require.NoError(t, err)
	assert.True(t, fake.Has("container1"))
	assert.True(t, fake.Has("new-base"))
}

func TestRun_DeleteEndToEnd(t *testing.T) {
	var out bytes.Buffer
	cfg := testConfig(CommandDelete, "container1")
	a := NewApp(&out, cfg, testLoader())

	fake := testutil.NewFakePortal()
	sol := &solution.Solution{Templates: []solution.ItemTemplate{{ItemID: "member"}}}
	payload, err := sol.Marshal()
	require.NoError(t, err)
	fake.SeedJSON("container1",
		fmt.Sprintf(`{"id": "container1", "type": "Solution", "typeKeywords": ["Solution", "Deployed"], "schemaVersion": %d}`, solution.CurrentSchemaVersion),
		string(payload))
	fake.SeedJSON("member", `{"id": "member", "type": "Web Map"}`, "")
	a.SetRepository(fake)

	err = a.Run(context.Background(), cfg)

	require.NoError(t, err)
	assert.Equal(t, 0, fake.Len())
}

func TestRun_CreateEndToEnd(t *testing.T) {
	var out bytes.Buffer
	cfg := testConfig(CommandCreate, "map1")
	a := NewApp(&out, cfg, testLoader())

	fake := testutil.NewFakePortal()
	fake.SeedJSON("map1", `{"id": "map1", "type": "Web Map", "title": "Ops Map"}`, "")
	fake.SetIDSequence("published1")
	a.SetRepository(fake)

	err := a.Run(context.Background(), cfg)

	require.NoError(t, err)
	assert.True(t, fake.Has("published1"))
}
