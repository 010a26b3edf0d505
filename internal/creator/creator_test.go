package creator

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/solkit/internal/ctxlog"
	"github.com/vk/solkit/internal/registry"
	"github.com/vk/solkit/internal/solution"
	"github.com/vk/solkit/internal/testutil"
	"github.com/vk/solkit/modules/generic"
	"github.com/vk/solkit/modules/group"
	"github.com/vk/solkit/modules/webmap"
)

func testCtx() context.Context {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return ctxlog.WithLogger(context.Background(), logger)
}

func newTestRegistry() *registry.Registry {
	r := registry.New()
	for _, m := range []registry.Module{&generic.Module{}, &group.Module{}, &webmap.Module{}} {
		m.Register(r)
	}
	return r
}

// seedGraph stores a group containing a web map that draws a feature
// service: three items over two levels of discovery.
func seedGraph(fake *testutil.FakePortal) {
	fake.SeedJSON("svc1",
		`{"id": "svc1", "type": "Feature Service", "title": "Base Layer", "url": "https://host/svc1/FeatureServer"}`,
		"")
	fake.SeedJSON("map1",
		`{"id": "map1", "type": "Web Map", "title": "Ops Map"}`,
		`{"operationalLayers": [{"itemId": "svc1", "url": "https://host/svc1/FeatureServer/0"}]}`)
	fake.SeedJSON("grp1",
		`{"id": "grp1", "type": "Group", "title": "Ops Group"}`, "")
	fake.Item("grp1").Members = []string{"map1"}
}

func indexOf(t *testing.T, templates []solution.ItemTemplate, id string) int {
	t.Helper()
	for i, tpl := range templates {
		if tpl.ItemID == id {
			return i
		}
	}
	t.Fatalf("template %q not found", id)
	return -1
}

func TestCreateSolution_DiscoversTransitiveDependencies(t *testing.T) {
	// --- Arrange ---
	fake := testutil.NewFakePortal()
	seedGraph(fake)
	c := New(newTestRegistry(), fake)

	// --- Act ---
	sol, err := c.CreateSolution(testCtx(), "grp1", Options{})

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, sol.Templates, 3, "the seed plus two discovered dependencies")

	// Templates are stored in build order: dependencies first.
	assert.Less(t, indexOf(t, sol.Templates, "svc1"), indexOf(t, sol.Templates, "map1"))
	assert.Less(t, indexOf(t, sol.Templates, "map1"), indexOf(t, sol.Templates, "grp1"))
}

func TestCreateSolution_ConvertsSharedDependenciesOnce(t *testing.T) {
	fake := testutil.NewFakePortal()
	seedGraph(fake)
	// A second map draws the same service.
	fake.SeedJSON("map2",
		`{"id": "map2", "type": "Web Map", "title": "Second Map"}`,
		`{"operationalLayers": [{"itemId": "svc1"}]}`)
	fake.Item("grp1").Members = []string{"map1", "map2"}
	c := New(newTestRegistry(), fake)

	sol, err := c.CreateSolution(testCtx(), "grp1", Options{})

	require.NoError(t, err)
	assert.Len(t, sol.Templates, 4)
	fetches := 0
	for _, call := range fake.Calls {
		if call == "GetItemData:svc1" {
			fetches++
		}
	}
	assert.Equal(t, 1, fetches, "a shared dependency is converted exactly once")
}

func TestCreateSolution_MissingSeedFails(t *testing.T) {
	c := New(newTestRegistry(), testutil.NewFakePortal())

	_, err := c.CreateSolution(testCtx(), "absent", Options{})

	assert.Error(t, err)
}

func TestPublishSolution(t *testing.T) {
	// --- Arrange ---
	fake := testutil.NewFakePortal()
	seedGraph(fake)
	fake.SetIDSequence("published1")
	c := New(newTestRegistry(), fake)
	sol, err := c.CreateSolution(testCtx(), "map1", Options{})
	require.NoError(t, err)

	// --- Act ---
	containerID, err := c.PublishSolution(testCtx(), sol, Options{Name: "Ops Solution"})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "published1", containerID)

	container := fake.Item("published1")
	require.NotNil(t, container)
	assert.Contains(t, string(container.Base.Raw), solution.KeywordSolution)
	assert.Contains(t, string(container.Base.Raw), "Template")

	// The persisted payload round-trips into the same template set.
	restored, err := solution.Unmarshal(container.Data)
	require.NoError(t, err)
	assert.Len(t, restored.Templates, len(sol.Templates))
}
