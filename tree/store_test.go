package tree

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ammiranda/request_tree/internal/apperr"
	"github.com/ammiranda/request_tree/models"
	"github.com/ammiranda/request_tree/notify"
	"github.com/ammiranda/request_tree/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store    *Store
	repo     *repository.MemoryRepository
	events   *notify.Recorder
	ws       *models.Workspace
	root     *models.Node
	clockNow time.Time
}

// setupStore creates a store over a memory repository with one workspace
func setupStore(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     repository.NewMemoryRepository(),
		events:   &notify.Recorder{},
		clockNow: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	var seq int64
	f.store = NewStore(f.repo,
		WithNotifier(f.events),
		WithClock(func() time.Time { return f.clockNow }),
		WithIDGenerator(func() string { return fmt.Sprintf("id-%d", atomic.AddInt64(&seq, 1)) }),
	)
	ws, root, err := f.store.CreateWorkspace(context.Background(), "alice", "Team")
	require.NoError(t, err)
	f.ws, f.root = ws, root
	return f
}

func (f *fixture) folder(t *testing.T, parent *models.Node, name string) *models.Node {
	t.Helper()
	node, err := f.store.Create(context.Background(), "alice", models.CreateNodeInput{
		WorkspaceID: f.ws.ID,
		ParentID:    &parent.ID,
		Type:        models.NodeFolder,
		Name:        name,
	})
	require.NoError(t, err)
	return node
}

func (f *fixture) request(t *testing.T, parent *models.Node, name string) *models.Node {
	t.Helper()
	node, err := f.store.Create(context.Background(), "alice", models.CreateNodeInput{
		WorkspaceID: f.ws.ID,
		ParentID:    &parent.ID,
		Type:        models.NodeRequest,
		Name:        name,
	})
	require.NoError(t, err)
	return node
}

func TestCreateWorkspaceCreatesRoot(t *testing.T) {
	f := setupStore(t)

	assert.Equal(t, "Team", f.ws.Name)
	assert.Equal(t, "Root", f.root.Name)
	assert.Nil(t, f.root.ParentID)
	assert.Equal(t, models.NodeFolder, f.root.Type)
	assert.Equal(t, 0, f.root.SortOrder)
	assert.Equal(t, 1, f.root.Version)

	_, _, err := f.store.CreateWorkspace(context.Background(), "alice", "")
	assert.ErrorIs(t, err, apperr.ErrBadRequest)
}

func TestCreateNode(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()

	// Appended after existing siblings
	first := f.request(t, f.root, "First")
	second := f.request(t, f.root, "Second")
	assert.Equal(t, 0, first.SortOrder)
	assert.Equal(t, 1, second.SortOrder)

	// New requests carry the default content
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, "GET", first.Request.Method)
	assert.Equal(t, models.NoBody{}, first.Request.Body)
	assert.Equal(t, models.NoAuth{}, first.Request.Auth)
	assert.Equal(t, "alice", *first.UpdatedBy)
	assert.Equal(t, f.clockNow, first.UpdatedAt)

	// Explicit sort order wins
	order := 42
	node, err := f.store.Create(ctx, "alice", models.CreateNodeInput{
		WorkspaceID: f.ws.ID, ParentID: &f.root.ID, Type: models.NodeFolder, Name: "Pinned", SortOrder: &order,
	})
	require.NoError(t, err)
	assert.Equal(t, 42, node.SortOrder)

	assert.Len(t, f.events.OfType(notify.NodeCreated), 3)
}

func TestCreateNodeValidation(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()
	req := f.request(t, f.root, "Req")

	tests := []struct {
		name string
		in   models.CreateNodeInput
		code string
	}{
		{"empty name", models.CreateNodeInput{WorkspaceID: f.ws.ID, Type: models.NodeFolder}, "invalid_name"},
		{"bad type", models.CreateNodeInput{WorkspaceID: f.ws.ID, Type: "FILE", Name: "x"}, "invalid_type"},
		{"missing parent", models.CreateNodeInput{WorkspaceID: f.ws.ID, Type: models.NodeFolder, Name: "x", ParentID: models.StringPtr("nope")}, "invalid_parent"},
		{"request parent", models.CreateNodeInput{WorkspaceID: f.ws.ID, Type: models.NodeFolder, Name: "x", ParentID: &req.ID}, "invalid_parent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.store.Create(ctx, "alice", tt.in)
			assert.ErrorIs(t, err, apperr.BadRequest(tt.code))
		})
	}

	_, err := f.store.Create(ctx, "alice", models.CreateNodeInput{WorkspaceID: "missing", Type: models.NodeFolder, Name: "x"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPatchNode(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()
	a := f.folder(t, f.root, "A")
	b := f.folder(t, a, "B")
	req := f.request(t, f.root, "Req")

	// Move and rename
	name := "Renamed"
	order := 3
	patched, err := f.store.Patch(ctx, "bob", f.ws.ID, req.ID, models.NodePatch{
		Name:      &name,
		ParentID:  models.NullableOf(b.ID),
		SortOrder: &order,
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", patched.Name)
	assert.Equal(t, b.ID, *patched.ParentID)
	assert.Equal(t, 3, patched.SortOrder)
	assert.Equal(t, 2, patched.Version)
	assert.Equal(t, "bob", *patched.UpdatedBy)

	// Explicit null moves to the top level
	patched, err = f.store.Patch(ctx, "bob", f.ws.ID, req.ID, models.NodePatch{ParentID: models.Nullable[string]{Set: true}})
	require.NoError(t, err)
	assert.Nil(t, patched.ParentID)

	// A folder cannot move under itself or a descendant
	_, err = f.store.Patch(ctx, "bob", f.ws.ID, a.ID, models.NodePatch{ParentID: models.NullableOf(a.ID)})
	assert.ErrorIs(t, err, apperr.BadRequest("invalid_parent"))
	_, err = f.store.Patch(ctx, "bob", f.ws.ID, a.ID, models.NodePatch{ParentID: models.NullableOf(b.ID)})
	assert.ErrorIs(t, err, apperr.BadRequest("invalid_parent"))

	// Unknown node
	_, err = f.store.Patch(ctx, "bob", f.ws.ID, "missing", models.NodePatch{Name: &name})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.Len(t, f.events.OfType(notify.NodeUpdated), 2)
}

func TestUpdateRequestVersioning(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()
	req := f.request(t, f.root, "Req")

	spec := &models.RequestSpec{
		Method:  "POST",
		URLRaw:  "https://api.example.com/users",
		Headers: []models.KV{{Key: "X-Trace", Value: "1", Enabled: true}},
		Query:   []models.KV{},
		Body:    models.JSONBody{Text: `{"name":"x"}`},
		Auth:    models.BearerAuth{Token: "secret"},
	}

	// v1 -> v2
	view, err := f.store.UpdateRequest(ctx, "alice", f.ws.ID, req.ID, 1, spec)
	require.NoError(t, err)
	assert.Equal(t, 2, view.Version)
	assert.Equal(t, "Req", view.Name)

	// A second writer still holding v1 loses
	_, err = f.store.UpdateRequest(ctx, "bob", f.ws.ID, req.ID, 1, spec)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	current, ok := apperr.CurrentVersion(err)
	require.True(t, ok)
	assert.Equal(t, 2, current)

	got, err := f.store.GetRequest(ctx, f.ws.ID, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, "POST", got.Request.Method)
	assert.Equal(t, models.BearerAuth{Token: "secret"}, got.Request.Auth)

	// Folders have no request content
	_, err = f.store.GetRequest(ctx, f.ws.ID, f.root.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.Len(t, f.events.OfType(notify.RequestUpdated), 1)
}

func TestUpdateRequestRace(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()
	req := f.request(t, f.root, "Req")

	const writers = 16
	var wg sync.WaitGroup
	var succeeded, conflicted int64
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			spec := models.DefaultRequestSpec()
			spec.URLRaw = fmt.Sprintf("https://api.example.com/%d", i)
			_, err := f.store.UpdateRequest(ctx, "alice", f.ws.ID, req.ID, 1, spec)
			switch {
			case err == nil:
				atomic.AddInt64(&succeeded, 1)
			case apperr.KindOf(err) == apperr.KindConflict:
				atomic.AddInt64(&conflicted, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, succeeded)
	assert.EqualValues(t, writers-1, conflicted)

	got, err := f.store.GetRequest(ctx, f.ws.ID, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
}

func TestRemoveSubtree(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()
	a := f.folder(t, f.root, "A")
	b := f.folder(t, a, "B")
	f.request(t, a, "R1")
	f.request(t, b, "R2")
	keep := f.request(t, f.root, "Keep")

	deleted, err := f.store.Remove(ctx, f.ws.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, deleted)

	tree, err := f.store.Tree(ctx, f.ws.ID)
	require.NoError(t, err)
	var ids []string
	for _, n := range tree {
		ids = append(ids, n.ID)
	}
	assert.ElementsMatch(t, []string{f.root.ID, keep.ID}, ids)

	// Only the removed root is announced
	deletedEvents := f.events.OfType(notify.NodeDeleted)
	require.Len(t, deletedEvents, 1)
	assert.Equal(t, a.ID, deletedEvents[0].NodeID)

	_, err = f.store.Remove(ctx, f.ws.ID, a.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// RemoveRequest only accepts requests
	_, err = f.store.RemoveRequest(ctx, f.ws.ID, f.root.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	deleted, err = f.store.RemoveRequest(ctx, f.ws.ID, keep.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}

func TestCloneRequest(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()
	target := f.folder(t, f.root, "Target")
	req := f.request(t, f.root, "Req")
	spec := models.DefaultRequestSpec()
	spec.Auth = models.BasicAuth{Username: "u", Password: "p"}
	_, err := f.store.UpdateRequest(ctx, "alice", f.ws.ID, req.ID, 1, spec)
	require.NoError(t, err)

	// Same parent, auth stripped by default
	clone, err := f.store.CloneRequest(ctx, "alice", f.ws.ID, req.ID, models.CloneRequestOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, req.ID, clone.ID)
	assert.Equal(t, f.root.ID, *clone.ParentID)
	assert.Equal(t, 1, clone.Version)
	assert.Equal(t, models.NoAuth{}, clone.Request.Auth)

	// Into another folder with auth and a new name
	name := "Copy"
	clone, err = f.store.CloneRequest(ctx, "alice", f.ws.ID, req.ID, models.CloneRequestOptions{
		TargetParentID: &target.ID, Name: &name, IncludeAuth: true,
	})
	require.NoError(t, err)
	assert.Equal(t, target.ID, *clone.ParentID)
	assert.Equal(t, "Copy", clone.Name)
	assert.Equal(t, models.BasicAuth{Username: "u", Password: "p"}, clone.Request.Auth)

	_, err = f.store.CloneRequest(ctx, "alice", f.ws.ID, target.ID, models.CloneRequestOptions{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCloneTreeDeep(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()
	src := f.folder(t, f.root, "Src")
	sub := f.folder(t, src, "Sub")
	f.request(t, src, "R1")
	f.request(t, sub, "R2")
	dst := f.folder(t, f.root, "Dst")
	f.events.Reset()

	result, err := f.store.CloneTree(ctx, "alice", f.ws.ID, src.ID, models.CloneTreeOptions{
		TargetParentID: &dst.ID,
		Mode:           models.CloneDeep,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Count)

	nodes, err := f.store.Nodes(ctx, f.ws.ID)
	require.NoError(t, err)
	byParent := map[string][]string{}
	for _, n := range nodes {
		byParent[n.ParentKey()] = append(byParent[n.ParentKey()], n.Name)
	}
	assert.Equal(t, []string{"Src"}, byParent[dst.ID])
	assert.ElementsMatch(t, []string{"Sub", "R1"}, byParent[result.RootID])

	// One aggregate event for the whole clone
	assert.Empty(t, f.events.OfType(notify.NodeCreated))
	cloned := f.events.OfType(notify.TreeCloned)
	require.Len(t, cloned, 1)
	assert.Equal(t, 4, cloned[0].Count)
}

func TestCloneTreeIntoOwnSubtree(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()
	src := f.folder(t, f.root, "Src")
	child := f.folder(t, src, "Child")

	result, err := f.store.CloneTree(ctx, "alice", f.ws.ID, src.ID, models.CloneTreeOptions{
		TargetParentID: &child.ID,
		Mode:           models.CloneDeep,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Count)
}

func TestCloneTreeShallow(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()
	src := f.folder(t, f.root, "Src")
	f.request(t, src, "R1")

	name := "Empty"
	result, err := f.store.CloneTree(ctx, "alice", f.ws.ID, src.ID, models.CloneTreeOptions{
		TargetParentID: &f.root.ID,
		Name:           &name,
		Mode:           models.CloneShallow,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)

	node, err := f.repo.GetNode(ctx, f.ws.ID, result.RootID)
	require.NoError(t, err)
	assert.Equal(t, "Empty", node.Name)
	children, err := f.repo.ListChildIDs(ctx, f.ws.ID, []string{result.RootID})
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestCloneTreeRejectsRequests(t *testing.T) {
	f := setupStore(t)
	req := f.request(t, f.root, "Req")

	_, err := f.store.CloneTree(context.Background(), "alice", f.ws.ID, req.ID, models.CloneTreeOptions{
		TargetParentID: &f.root.ID,
		Mode:           models.CloneDeep,
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRootFolder(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()

	root, err := f.store.RootFolder(ctx, "alice", f.ws.ID)
	require.NoError(t, err)
	assert.Equal(t, f.root.ID, root.ID)

	// Recreated when missing
	_, err = f.store.Remove(ctx, f.ws.ID, f.root.ID)
	require.NoError(t, err)
	root, err = f.store.RootFolder(ctx, "alice", f.ws.ID)
	require.NoError(t, err)
	assert.NotEqual(t, f.root.ID, root.ID)
	assert.Equal(t, "Root", root.Name)
}

func TestWorkspaceLifecycle(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()
	f.request(t, f.root, "Req")

	ws, err := f.store.RenameWorkspace(ctx, f.ws.ID, "Renamed")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", ws.Name)

	deleted, err := f.store.DeleteWorkspace(ctx, f.ws.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, err = f.store.GetWorkspace(ctx, f.ws.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.store.Tree(ctx, f.ws.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.Len(t, f.events.OfType(notify.WorkspaceUpdated), 1)
	assert.Len(t, f.events.OfType(notify.WorkspaceDeleted), 1)
}
