package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ammiranda/request_tree/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRepositories returns every backend that runs without external services
func setupRepositories(t *testing.T) map[string]Repository {
	t.Helper()
	ctx := context.Background()

	sqlite := NewSQLiteRepository(":memory:")
	require.NoError(t, sqlite.Initialize(ctx))
	t.Cleanup(func() { sqlite.Cleanup(ctx) })

	return map[string]Repository{
		"memory": NewMemoryRepository(),
		"sqlite": sqlite,
	}
}

func newNode(ws, id string, parent *string, typ models.NodeType, name string, sortOrder int) *models.Node {
	node := &models.Node{
		ID:          id,
		WorkspaceID: ws,
		ParentID:    parent,
		Type:        typ,
		Name:        name,
		SortOrder:   sortOrder,
		Version:     1,
		UpdatedAt:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if typ == models.NodeRequest {
		node.Request = models.DefaultRequestSpec()
	}
	return node
}

func seedWorkspace(t *testing.T, repo Repository, ws string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.CreateWorkspace(ctx, &models.Workspace{ID: ws, Name: "Team", CreatedAt: time.Now().UTC()}))
	require.NoError(t, repo.CreateNode(ctx, newNode(ws, "root", nil, models.NodeFolder, "Root", 0)))
	require.NoError(t, repo.CreateNode(ctx, newNode(ws, "b", models.StringPtr("root"), models.NodeFolder, "Beta", 1)))
	require.NoError(t, repo.CreateNode(ctx, newNode(ws, "a", models.StringPtr("root"), models.NodeRequest, "Alpha", 1)))
	require.NoError(t, repo.CreateNode(ctx, newNode(ws, "c", models.StringPtr("b"), models.NodeRequest, "Child", 0)))
}

func TestRepositoryWorkspaces(t *testing.T) {
	for name, repo := range setupRepositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			// Create and read back
			require.NoError(t, repo.CreateWorkspace(ctx, &models.Workspace{ID: "ws", Name: "Team", CreatedAt: time.Now().UTC()}))
			ws, err := repo.GetWorkspace(ctx, "ws")
			require.NoError(t, err)
			assert.Equal(t, "Team", ws.Name)

			// Rename
			require.NoError(t, repo.RenameWorkspace(ctx, "ws", "Renamed"))
			ws, err = repo.GetWorkspace(ctx, "ws")
			require.NoError(t, err)
			assert.Equal(t, "Renamed", ws.Name)

			// Delete
			require.NoError(t, repo.DeleteWorkspace(ctx, "ws"))
			_, err = repo.GetWorkspace(ctx, "ws")
			assert.ErrorIs(t, err, ErrWorkspaceNotFound)
			assert.ErrorIs(t, repo.RenameWorkspace(ctx, "ws", "x"), ErrWorkspaceNotFound)
			assert.ErrorIs(t, repo.DeleteWorkspace(ctx, "ws"), ErrWorkspaceNotFound)
		})
	}
}

func TestRepositoryNodes(t *testing.T) {
	for name, repo := range setupRepositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedWorkspace(t, repo, "ws")

			// Nodes are scoped by workspace
			_, err := repo.GetNode(ctx, "other", "root")
			assert.ErrorIs(t, err, ErrNodeNotFound)

			node, err := repo.GetNode(ctx, "ws", "a")
			require.NoError(t, err)
			assert.Equal(t, models.NodeRequest, node.Type)
			assert.Equal(t, "root", *node.ParentID)
			assert.Equal(t, "GET", node.Request.Method)
			assert.Equal(t, models.NoBody{}, node.Request.Body)

			folder, err := repo.GetNode(ctx, "ws", "b")
			require.NoError(t, err)
			assert.Nil(t, folder.Request)

			// Ordered by parent, sort order, then name; roots first
			nodes, err := repo.ListNodes(ctx, "ws")
			require.NoError(t, err)
			var ids []string
			for _, n := range nodes {
				ids = append(ids, n.ID)
			}
			assert.Equal(t, []string{"root", "c", "a", "b"}, ids)

			root, err := repo.FindRootFolder(ctx, "ws")
			require.NoError(t, err)
			assert.Equal(t, "root", root.ID)
			_, err = repo.FindRootFolder(ctx, "other")
			assert.ErrorIs(t, err, ErrNodeNotFound)

			// Malformed nodes are rejected
			bad := newNode("ws", "bad", nil, models.NodeFolder, "Bad", 0)
			bad.Request = models.DefaultRequestSpec()
			assert.ErrorIs(t, repo.CreateNode(ctx, bad), ErrInvalidInput)
		})
	}
}

func TestRepositorySortOrderAndChildren(t *testing.T) {
	for name, repo := range setupRepositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedWorkspace(t, repo, "ws")

			maxOrder, ok, err := repo.MaxSortOrder(ctx, "ws", models.StringPtr("root"))
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, 1, maxOrder)

			_, ok, err = repo.MaxSortOrder(ctx, "ws", models.StringPtr("c"))
			require.NoError(t, err)
			assert.False(t, ok)

			maxOrder, ok, err = repo.MaxSortOrder(ctx, "ws", nil)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, 0, maxOrder)

			children, err := repo.ListChildIDs(ctx, "ws", []string{"root", "b"})
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"a", "b", "c"}, children)

			children, err = repo.ListChildIDs(ctx, "other", []string{"root"})
			require.NoError(t, err)
			assert.Empty(t, children)
		})
	}
}

func TestRepositoryPatchNode(t *testing.T) {
	for name, repo := range setupRepositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedWorkspace(t, repo, "ws")

			node, err := repo.GetNode(ctx, "ws", "c")
			require.NoError(t, err)
			node.Name = "Moved"
			node.ParentID = models.StringPtr("root")
			node.SortOrder = 7
			node.UpdatedBy = models.StringPtr("alice")
			require.NoError(t, repo.PatchNode(ctx, node))
			assert.Equal(t, 2, node.Version)

			stored, err := repo.GetNode(ctx, "ws", "c")
			require.NoError(t, err)
			assert.Equal(t, "Moved", stored.Name)
			assert.Equal(t, "root", *stored.ParentID)
			assert.Equal(t, 7, stored.SortOrder)
			assert.Equal(t, "alice", *stored.UpdatedBy)
			assert.Equal(t, 2, stored.Version)

			missing := newNode("ws", "missing", nil, models.NodeFolder, "Missing", 0)
			assert.ErrorIs(t, repo.PatchNode(ctx, missing), ErrNodeNotFound)
		})
	}
}

func TestRepositoryUpdateRequestVersioning(t *testing.T) {
	for name, repo := range setupRepositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedWorkspace(t, repo, "ws")

			node, err := repo.GetNode(ctx, "ws", "a")
			require.NoError(t, err)
			node.Request = &models.RequestSpec{
				Method:  "POST",
				URLRaw:  "https://api.example.com/items",
				Headers: []models.KV{{Key: "Accept", Value: "application/json", Enabled: true}},
				Query:   []models.KV{},
				Body:    models.JSONBody{Text: `{"a":1}`},
				Auth:    models.BearerAuth{Token: "t"},
			}
			name := node.Name
			node.Name = ""
			require.NoError(t, repo.UpdateRequest(ctx, node, 1))
			assert.Equal(t, 2, node.Version)
			assert.Equal(t, name, node.Name)
			assert.NotEmpty(t, node.Name)

			stored, err := repo.GetNode(ctx, "ws", "a")
			require.NoError(t, err)
			assert.Equal(t, 2, stored.Version)
			assert.Equal(t, "POST", stored.Request.Method)
			assert.Equal(t, models.JSONBody{Text: `{"a":1}`}, stored.Request.Body)
			assert.Equal(t, models.BearerAuth{Token: "t"}, stored.Request.Auth)

			// A stale version is rejected with the current one
			err = repo.UpdateRequest(ctx, node, 1)
			var mismatch *VersionMismatchError
			require.True(t, errors.As(err, &mismatch))
			assert.Equal(t, 2, mismatch.Current)
			assert.ErrorIs(t, err, ErrVersionMismatch)

			// Folders have no request content
			folder, err := repo.GetNode(ctx, "ws", "b")
			require.NoError(t, err)
			folder.Request = models.DefaultRequestSpec()
			assert.ErrorIs(t, repo.UpdateRequest(ctx, folder, 1), ErrNodeNotFound)
		})
	}
}

func TestRepositoryDelete(t *testing.T) {
	for name, repo := range setupRepositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedWorkspace(t, repo, "ws")
			require.NoError(t, repo.CreateWorkspace(ctx, &models.Workspace{ID: "ws2", Name: "Other", CreatedAt: time.Now().UTC()}))
			require.NoError(t, repo.CreateNode(ctx, newNode("ws2", "other-root", nil, models.NodeFolder, "Root", 0)))

			deleted, err := repo.DeleteNodes(ctx, "ws", []string{"b", "c", "unknown"})
			require.NoError(t, err)
			assert.Equal(t, 2, deleted)

			_, err = repo.GetNode(ctx, "ws", "b")
			assert.ErrorIs(t, err, ErrNodeNotFound)

			deleted, err = repo.DeleteWorkspaceNodes(ctx, "ws")
			require.NoError(t, err)
			assert.Equal(t, 2, deleted)

			nodes, err := repo.ListNodes(ctx, "ws2")
			require.NoError(t, err)
			assert.Len(t, nodes, 1)
		})
	}
}

func TestChunks(t *testing.T) {
	ids := make([]string, chunkSize*2+3)
	for i := range ids {
		ids[i] = "id"
	}
	parts := chunks(ids)
	require.Len(t, parts, 3)
	assert.Len(t, parts[0], chunkSize)
	assert.Len(t, parts[2], 3)
	assert.Empty(t, chunks(nil))
}

func TestBindPostgres(t *testing.T) {
	s := &sqlStore{postgres: true}
	assert.Equal(t, "SELECT * FROM nodes WHERE a = $1 AND b IN ($2, $3)", s.bind("SELECT * FROM nodes WHERE a = ? AND b IN (?, ?)"))
	assert.Equal(t, "a = ?", (&sqlStore{}).bind("a = ?"))
}
