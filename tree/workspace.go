package tree

import (
	"context"
	"unicode/utf8"

	"github.com/ammiranda/request_tree/internal/apperr"
	"github.com/ammiranda/request_tree/models"
	"github.com/ammiranda/request_tree/notify"
)

// MaxWorkspaceNameLength is the longest accepted workspace name.
const MaxWorkspaceNameLength = 120

func validWorkspaceName(name string) bool {
	n := utf8.RuneCountInString(name)
	return n >= 1 && n <= MaxWorkspaceNameLength
}

// CreateWorkspace creates a workspace together with its "Root" folder.
func (s *Store) CreateWorkspace(ctx context.Context, actor, name string) (*models.Workspace, *models.Node, error) {
	if !validWorkspaceName(name) {
		return nil, nil, apperr.BadRequest("invalid_name")
	}
	ws := &models.Workspace{
		ID:        s.newID(),
		Name:      name,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreateWorkspace(ctx, ws); err != nil {
		return nil, nil, mapRepoErr(err)
	}
	root, err := s.create(ctx, actor, false, models.CreateNodeInput{
		WorkspaceID: ws.ID,
		Type:        models.NodeFolder,
		Name:        "Root",
		SortOrder:   new(int),
	})
	if err != nil {
		return ws, nil, err
	}
	return ws, root, nil
}

// GetWorkspace returns a workspace.
func (s *Store) GetWorkspace(ctx context.Context, workspaceID string) (*models.Workspace, error) {
	ws, err := s.repo.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return ws, nil
}

// RenameWorkspace changes the display name of a workspace.
func (s *Store) RenameWorkspace(ctx context.Context, workspaceID, name string) (*models.Workspace, error) {
	if !validWorkspaceName(name) {
		return nil, apperr.BadRequest("invalid_name")
	}
	if err := s.repo.RenameWorkspace(ctx, workspaceID, name); err != nil {
		return nil, mapRepoErr(err)
	}
	s.publish(ctx, notify.Event{Type: notify.WorkspaceUpdated, WorkspaceID: workspaceID, Name: name})
	return s.GetWorkspace(ctx, workspaceID)
}

// DeleteWorkspace removes every node of the workspace in bulk, then the
// workspace itself. It returns the number of nodes deleted.
func (s *Store) DeleteWorkspace(ctx context.Context, workspaceID string) (int, error) {
	if _, err := s.repo.GetWorkspace(ctx, workspaceID); err != nil {
		return 0, mapRepoErr(err)
	}
	n, err := s.RemoveAll(ctx, workspaceID)
	if err != nil {
		return 0, err
	}
	if err := s.repo.DeleteWorkspace(ctx, workspaceID); err != nil {
		return n, mapRepoErr(err)
	}
	s.publish(ctx, notify.Event{Type: notify.WorkspaceDeleted, WorkspaceID: workspaceID})
	return n, nil
}
