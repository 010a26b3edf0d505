package deployer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/solkit/internal/ctxlog"
	"github.com/vk/solkit/internal/portal"
	"github.com/vk/solkit/internal/progress"
	"github.com/vk/solkit/internal/registry"
	"github.com/vk/solkit/internal/solution"
	"github.com/vk/solkit/internal/templatize"
	"github.com/vk/solkit/internal/testutil"
)

func testCtx() context.Context {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return ctxlog.WithLogger(context.Background(), logger)
}

// recordingAdapter materializes templates through repo.AddItem and keeps
// the order of source ids it was asked to create.
type recordingAdapter struct {
	created []string
	failOn  string
}

func (a *recordingAdapter) ConvertToTemplate(ctx context.Context, itemID string, repo portal.Repository) (solution.ItemTemplate, error) {
	return solution.ItemTemplate{ItemID: itemID}, nil
}

func (a *recordingAdapter) CreateFromTemplate(ctx context.Context, tpl solution.ItemTemplate, dict *templatize.Dictionary, repo portal.Repository) (portal.CreatedItem, error) {
	if tpl.ItemID == a.failOn {
		return portal.CreatedItem{}, errors.New("remote refused the item")
	}
	a.created = append(a.created, tpl.ItemID)
	return repo.AddItem(ctx, portal.NewItem{Type: tpl.Type, Item: tpl.Item, Data: tpl.Data})
}

func (a *recordingAdapter) Remove(ctx context.Context, itemID string, repo portal.Repository) error {
	return repo.RemoveItem(ctx, itemID)
}

func newTestRegistry(a registry.ItemAdapter) *registry.Registry {
	r := registry.New()
	r.RegisterFallback(a)
	return r
}

// twoItemSolution builds a Solution where "dependent" references
// "base" through a placeholder in its data payload. Template order is
// build order (current schema).
func twoItemSolution() *solution.Solution {
	return &solution.Solution{Templates: []solution.ItemTemplate{
		{
			ItemID: "base",
			Type:   "Feature Service",
			Item:   json.RawMessage(`{"title": "Base layer"}`),
		},
		{
			ItemID:       "dependent",
			Type:         "Web Map",
			Item:         json.RawMessage(`{"title": "Map"}`),
			Data:         json.RawMessage(`{"layerId": "{{base.itemId}}"}`),
			Dependencies: []string{"base"},
		},
	}}
}

func TestDeploy_CreatesInOrderAndResolvesPlaceholders(t *testing.T) {
	// --- Arrange ---
	fake := testutil.NewFakePortal()
	fake.SetIDSequence("container1", "new-base", "new-dependent")
	adapter := &recordingAdapter{}
	d := New(newTestRegistry(adapter), fake)
	var events []progress.Event

	// --- Act ---
	containerID, err := d.Deploy(testCtx(), twoItemSolution(), solution.CurrentSchemaVersion, Options{
		JobID:    "job-1",
		Name:     "My Deployment",
		Progress: func(e progress.Event) { events = append(events, e) },
	})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "container1", containerID)
	assert.Equal(t, []string{"base", "dependent"}, adapter.created, "dependencies must be created first")

	// The dependent's placeholder resolved to the id assigned to base.
	dependent := fake.Item("new-dependent")
	require.NotNil(t, dependent)
	assert.JSONEq(t, `{"layerId": "new-base"}`, string(dependent.Data))

	// The container was finalized with the build order payload.
	assert.Contains(t, fake.Calls, "UpdateItem:container1")

	// Progress is monotonic and terminates at 100 with Finished.
	last := 0
	for _, e := range events {
		assert.GreaterOrEqual(t, e.Percent, last)
		last = e.Percent
	}
	final := events[len(events)-1]
	assert.Equal(t, 100, final.Percent)
	assert.Equal(t, progress.Finished, final.Status)
}

func TestDeploy_FinalizedContainerRecordsCreatedIDs(t *testing.T) {
	// --- Arrange ---
	fake := testutil.NewFakePortal()
	fake.SetIDSequence("container1", "new-base", "new-dependent")
	d := New(newTestRegistry(&recordingAdapter{}), fake)

	// --- Act ---
	_, err := d.Deploy(testCtx(), twoItemSolution(), solution.CurrentSchemaVersion, Options{})

	// --- Assert ---
	require.NoError(t, err)
	container := fake.Item("container1")
	require.NotNil(t, container)
	persisted, err := solution.Unmarshal(container.Data)
	require.NoError(t, err)

	// The container must name the items this run created, not the
	// source templates, or a later deletion resolves the wrong members.
	require.Len(t, persisted.Templates, 2)
	assert.Equal(t, "new-base", persisted.Templates[0].ItemID)
	assert.Equal(t, "new-dependent", persisted.Templates[1].ItemID)
	assert.Equal(t, []string{"new-base"}, persisted.Templates[1].Dependencies)
	assert.JSONEq(t, `{"layerId": "new-base"}`, string(persisted.Templates[1].Data))
}

func TestDeploy_LegacySchemaReconstructsBuildOrder(t *testing.T) {
	// Templates stored dependent-first, as legacy payloads may be.
	sol := twoItemSolution()
	sol.Templates[0], sol.Templates[1] = sol.Templates[1], sol.Templates[0]

	fake := testutil.NewFakePortal()
	adapter := &recordingAdapter{}
	d := New(newTestRegistry(adapter), fake)

	_, err := d.Deploy(testCtx(), sol, 0, Options{})

	require.NoError(t, err)
	assert.Equal(t, []string{"base", "dependent"}, adapter.created)
}

func TestDeploy_AdapterFailureAbortsRun(t *testing.T) {
	// --- Arrange ---
	fake := testutil.NewFakePortal()
	fake.SetIDSequence("container1", "new-base")
	adapter := &recordingAdapter{failOn: "dependent"}
	d := New(newTestRegistry(adapter), fake)
	var events []progress.Event

	// --- Act ---
	containerID, err := d.Deploy(testCtx(), twoItemSolution(), solution.CurrentSchemaVersion, Options{
		Progress: func(e progress.Event) { events = append(events, e) },
	})

	// --- Assert ---
	require.Error(t, err)
	assert.Empty(t, containerID)
	assert.Equal(t, []string{"base"}, adapter.created, "no further items after the failure")

	// Completed items and the container are left in place: no rollback.
	assert.True(t, fake.Has("new-base"))
	assert.True(t, fake.Has("container1"))

	final := events[len(events)-1]
	assert.Equal(t, 100, final.Percent, "a failed run still terminates at 100")
	assert.Equal(t, progress.Failed, final.Status)
}

func TestDeploy_CancelBeforeCreationIgnoresRemaining(t *testing.T) {
	// --- Arrange ---
	fake := testutil.NewFakePortal()
	fake.SetIDSequence("container1", "new-base")
	adapter := &recordingAdapter{}
	d := New(newTestRegistry(adapter), fake)
	token := &progress.Token{}
	var events []progress.Event

	// Cancel once the first item has finished; the next item's pre-create
	// checkpoint picks it up.
	cb := func(e progress.Event) {
		events = append(events, e)
		if e.ItemID == "base" && e.Status == progress.Finished {
			token.Cancel()
		}
	}

	// --- Act ---
	containerID, err := d.Deploy(testCtx(), twoItemSolution(), solution.CurrentSchemaVersion, Options{
		Progress: cb,
		Token:    token,
	})

	// --- Assert ---
	require.NoError(t, err, "cancellation is not an error")
	assert.Empty(t, containerID, "a cancelled run yields no container id")
	assert.Equal(t, []string{"base"}, adapter.created, "the second item was never attempted")
	assert.True(t, fake.Has("new-base"), "completed items are not rolled back")

	var ignored []string
	for _, e := range events {
		if e.Status == progress.Ignored {
			ignored = append(ignored, e.ItemID)
		}
	}
	assert.Equal(t, []string{"dependent"}, ignored)
	final := events[len(events)-1]
	assert.Equal(t, progress.Cancelled, final.Status)
	assert.Equal(t, 100, final.Percent)
}

func TestDeploy_CancelAfterCreationTearsDownThatItem(t *testing.T) {
	// --- Arrange ---
	fake := testutil.NewFakePortal()
	fake.SetIDSequence("container1", "new-base")
	adapter := &recordingAdapter{}
	d := New(newTestRegistry(adapter), fake)
	token := &progress.Token{}
	var events []progress.Event

	// Cancel while the first item is being worked on; the post-create
	// checkpoint must tear down the item that now exists.
	cb := func(e progress.Event) {
		events = append(events, e)
		if e.ItemID == "base" && e.Status == progress.Started {
			token.Cancel()
		}
	}

	// --- Act ---
	containerID, err := d.Deploy(testCtx(), twoItemSolution(), solution.CurrentSchemaVersion, Options{
		Progress: cb,
		Token:    token,
	})

	// --- Assert ---
	require.NoError(t, err)
	assert.Empty(t, containerID)
	assert.False(t, fake.Has("new-base"), "the just-created item must be torn down")
	assert.Contains(t, fake.Calls, "RemoveItem:new-base")

	var sawCancelled, sawIgnoredDependent bool
	for _, e := range events {
		if e.ItemID == "base" && e.Status == progress.Cancelled {
			sawCancelled = true
			assert.Equal(t, "new-base", e.NewItemID)
		}
		if e.ItemID == "dependent" && e.Status == progress.Ignored {
			sawIgnoredDependent = true
		}
	}
	assert.True(t, sawCancelled, "the torn-down item reports Cancelled")
	assert.True(t, sawIgnoredDependent, "not-yet-started items report Ignored")
}

func TestDeploy_TeardownFailureSurfacesAsRunError(t *testing.T) {
	fake := testutil.NewFakePortal()
	fake.SetIDSequence("container1", "new-base")
	fake.FailOn["RemoveItem:new-base"] = errors.New("remote unavailable")
	adapter := &recordingAdapter{}
	d := New(newTestRegistry(adapter), fake)
	token := &progress.Token{}

	cb := func(e progress.Event) {
		if e.ItemID == "base" && e.Status == progress.Started {
			token.Cancel()
		}
	}

	_, err := d.Deploy(testCtx(), twoItemSolution(), solution.CurrentSchemaVersion, Options{
		Progress: cb,
		Token:    token,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "tearing down")
}

func TestDeploy_SharesItemsIntoDeployedGroups(t *testing.T) {
	// Group first, then a member whose template names the group.
	sol := &solution.Solution{Templates: []solution.ItemTemplate{
		{ItemID: "grp", Type: "Group", Item: json.RawMessage(`{"title": "Ops"}`)},
		{
			ItemID:       "member",
			Type:         "Web Map",
			Item:         json.RawMessage(`{"title": "Map"}`),
			Dependencies: []string{"grp"},
			Groups:       []string{"grp"},
		},
	}}
	fake := testutil.NewFakePortal()
	fake.SetIDSequence("container1", "new-grp", "new-member")
	d := New(newTestRegistry(&recordingAdapter{}), fake)

	_, err := d.Deploy(testCtx(), sol, solution.CurrentSchemaVersion, Options{})

	require.NoError(t, err)
	assert.Contains(t, fake.Calls, "ShareItems:new-grp")
	group := fake.Item("new-grp")
	require.NotNil(t, group)
	assert.Equal(t, []string{"new-member"}, group.Members)
}

func TestDeployItem_ValidatesContainer(t *testing.T) {
	fake := testutil.NewFakePortal()
	fake.SeedJSON("notsol", `{"id": "notsol", "type": "Web Map", "typeKeywords": ["Map"]}`, "")
	d := New(newTestRegistry(&recordingAdapter{}), fake)

	t.Run("missing item", func(t *testing.T) {
		_, err := d.DeployItem(testCtx(), "absent", Options{})
		assert.Error(t, err)
	})

	t.Run("not a Solution", func(t *testing.T) {
		_, err := d.DeployItem(testCtx(), "notsol", Options{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a Solution")
	})
}

func TestDeployItem_DeploysFetchedContainer(t *testing.T) {
	sol := twoItemSolution()
	payload, err := sol.Marshal()
	require.NoError(t, err)

	fake := testutil.NewFakePortal()
	fake.SeedJSON("src", fmt.Sprintf(`{"id": "src", "type": "Solution", "title": "Src", "typeKeywords": ["Solution", "Template"], "schemaVersion": %d}`, solution.CurrentSchemaVersion), string(payload))
	fake.SetIDSequence("container1", "new-base", "new-dependent")
	adapter := &recordingAdapter{}
	d := New(newTestRegistry(adapter), fake)

	containerID, err := d.DeployItem(testCtx(), "src", Options{})

	require.NoError(t, err)
	assert.Equal(t, "container1", containerID)
	assert.Equal(t, []string{"base", "dependent"}, adapter.created)

	// The deployed container carries the Deployed keyword, not Template.
	container := fake.Item("container1")
	require.NotNil(t, container)
	assert.Contains(t, string(container.Base.Raw), solution.KeywordDeployed)
}
