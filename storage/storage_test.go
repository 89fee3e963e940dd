package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/evalgo-org/diagramhub/diagramspec"
	"github.com/evalgo-org/diagramhub/quota"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "diagramhub.db")
	store, err := Open(dbPath, quota.NewGuard(quota.DefaultLimits()), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func minimalSpec(t *testing.T) *diagramspec.Spec {
	t.Helper()
	raw := []byte(`{"type":"flowchart","theme":"light","nodes":[{"id":"a","label":"A"}],"edges":[]}`)
	spec, err := diagramspec.ParseStrict(raw)
	require.NoError(t, err)
	return spec
}

func TestCreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	d, err := store.Create(ctx, "My Diagram", "proj-a", minimalSpec(t), CreateOptions{OwnerID: "alice"})
	require.NoError(t, err)
	require.Equal(t, int64(1), d.Version)
	require.NotEmpty(t, d.ID)

	fetched, err := store.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, d.ID, fetched.ID)
	require.Equal(t, "My Diagram", fetched.Name)
	require.NotNil(t, fetched.OwnerID)
	require.Equal(t, "alice", *fetched.OwnerID)
}

func TestGetMissingReturnsNilNil(t *testing.T) {
	store := newTestStore(t)
	d, err := store.Get(context.Background(), "does-not-exist")
	require.NoError(t, err)
	require.Nil(t, d)
}

func TestUpdateOptimisticConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	d, err := store.Create(ctx, "Doc", "", minimalSpec(t), CreateOptions{})
	require.NoError(t, err)

	stale := d.Version
	_, _, err = store.Update(ctx, d.ID, minimalSpec(t), "first edit", &stale)
	require.NoError(t, err)

	// A second writer still holding the original base version should
	// lose the race and get a Conflict rather than overwriting silently.
	updated, conflict, err := store.Update(ctx, d.ID, minimalSpec(t), "second edit", &stale)
	require.NoError(t, err)
	require.Nil(t, updated)
	require.NotNil(t, conflict)
	require.Equal(t, int64(2), conflict.CurrentVersion)
}

func TestUpdateWithoutBaseVersionAlwaysWins(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	d, err := store.Create(ctx, "Doc", "", minimalSpec(t), CreateOptions{})
	require.NoError(t, err)

	updated, conflict, err := store.Update(ctx, d.ID, minimalSpec(t), "no base check", nil)
	require.NoError(t, err)
	require.Nil(t, conflict)
	require.Equal(t, int64(2), updated.Version)
}

func TestDeleteCascadesVersions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	d, err := store.Create(ctx, "Doc", "", minimalSpec(t), CreateOptions{})
	require.NoError(t, err)

	ok, err := store.Delete(ctx, d.ID)
	require.NoError(t, err)
	require.True(t, ok)

	versions, err := store.GetVersions(ctx, d.ID)
	require.NoError(t, err)
	require.Empty(t, versions)

	missing, err := store.Delete(ctx, d.ID)
	require.NoError(t, err)
	require.False(t, missing)
}

func TestTransformAppliesFunctionAndBumpsVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	d, err := store.Create(ctx, "Doc", "", minimalSpec(t), CreateOptions{})
	require.NoError(t, err)

	result, err := store.Transform(ctx, d.ID, func(spec *diagramspec.Spec) (*diagramspec.Spec, error) {
		spec.Nodes = append(spec.Nodes, diagramspec.Node{ID: "b", Label: "B"})
		return spec, nil
	}, "add node", 3)
	require.NoError(t, err)
	require.Len(t, result.Spec.Nodes, 2)
	require.Equal(t, int64(2), result.Version)
}

func TestListPaginatedSearchWithinProject(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "Checkout Flow", "billing", minimalSpec(t), CreateOptions{})
	require.NoError(t, err)
	_, err = store.Create(ctx, "Unrelated Thing", "billing", minimalSpec(t), CreateOptions{})
	require.NoError(t, err)

	result, err := store.ListPaginated(ctx, ListFilter{Project: "billing", Search: "checkout", Limit: 10})
	require.NoError(t, err)
	require.Equal(t, int64(1), result.Total)
	require.Equal(t, "Checkout Flow", result.Data[0].Name)
}

func TestListForUserVisibility(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "Public", "", minimalSpec(t), CreateOptions{IsPublic: true})
	require.NoError(t, err)
	owned, err := store.Create(ctx, "Mine", "", minimalSpec(t), CreateOptions{OwnerID: "bob"})
	require.NoError(t, err)
	_, err = store.Create(ctx, "Someone Else's", "", minimalSpec(t), CreateOptions{OwnerID: "carol"})
	require.NoError(t, err)

	bob := "bob"
	result, err := store.ListForUser(ctx, &bob, UserListFilter{Limit: 50})
	require.NoError(t, err)

	var names []string
	for _, d := range result.Data {
		names = append(names, d.Name)
	}
	require.Contains(t, names, "Public")
	require.Contains(t, names, "Mine")
	require.NotContains(t, names, "Someone Else's")
	require.Equal(t, owned.OwnerID, &bob)
}

func TestShareLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	d, err := store.Create(ctx, "Shared", "", minimalSpec(t), CreateOptions{})
	require.NoError(t, err)

	found, err := store.AddShare(ctx, d.ID, "dave@example.com", "editor")
	require.NoError(t, err)
	require.True(t, found)

	fetched, err := store.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, fetched.Shares, 1)
	require.Equal(t, "editor", fetched.Shares[0].Permission)

	found, err = store.RemoveShare(ctx, d.ID, "dave@example.com")
	require.NoError(t, err)
	require.True(t, found)

	fetched, err = store.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Empty(t, fetched.Shares)
}

func TestAddShareRejectsInvalidUserID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	d, err := store.Create(ctx, "Shared", "", minimalSpec(t), CreateOptions{})
	require.NoError(t, err)

	_, err = store.AddShare(ctx, d.ID, "not a valid id!", "editor")
	require.Error(t, err)
	var invalid *InvalidUserIDError
	require.ErrorAs(t, err, &invalid)
}

func TestRestoreVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	d, err := store.Create(ctx, "Doc", "", minimalSpec(t), CreateOptions{})
	require.NoError(t, err)

	modified := minimalSpec(t)
	modified.Nodes = append(modified.Nodes, diagramspec.Node{ID: "b", Label: "B"})
	_, _, err = store.Update(ctx, d.ID, modified, "added b", nil)
	require.NoError(t, err)

	restored, err := store.RestoreVersion(ctx, d.ID, 1)
	require.NoError(t, err)
	require.Len(t, restored.Spec.Nodes, 1)
	require.Equal(t, int64(3), restored.Version)
}

func TestForkCreatesIndependentCopy(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	d, err := store.Create(ctx, "Original", "proj", minimalSpec(t), CreateOptions{OwnerID: "alice"})
	require.NoError(t, err)

	forked, err := store.Fork(ctx, d.ID, "", "")
	require.NoError(t, err)
	require.NotEqual(t, d.ID, forked.ID)
	require.Nil(t, forked.OwnerID)
	require.Equal(t, "Original (copy)", forked.Name)
	require.Equal(t, "proj", forked.Project)
}

func TestStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "A", "p1", minimalSpec(t), CreateOptions{})
	require.NoError(t, err)
	_, err = store.Create(ctx, "B", "p2", minimalSpec(t), CreateOptions{})
	require.NoError(t, err)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.DiagramCount)
	require.Equal(t, int64(2), stats.VersionCount)
	require.Equal(t, int64(2), stats.ProjectCount)
}
