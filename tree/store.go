// Package tree manages the request tree of a workspace: nodes, their
// structural operations and optimistic versioning of request content.
package tree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/ammiranda/request_tree/internal/apperr"
	"github.com/ammiranda/request_tree/internal/logging"
	"github.com/ammiranda/request_tree/models"
	"github.com/ammiranda/request_tree/notify"
	"github.com/ammiranda/request_tree/repository"

	"github.com/google/uuid"
)

// MaxNameLength is the longest accepted node name, in characters.
const MaxNameLength = 200

// Store implements the tree operations over a Repository. It holds no
// locks: request content is protected by the version check, structural
// writes are last-write-wins.
type Store struct {
	repo     repository.Repository
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

type Option func(*Store)

// WithNotifier sets the sink for change events.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Store) {
		s.notifier = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock replaces time.Now for audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithIDGenerator replaces the uuid node id generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) {
		s.newID = newID
	}
}

// NewStore creates a tree store.
func NewStore(repo repository.Repository, opts ...Option) *Store {
	s := &Store{
		repo:     repo,
		notifier: notify.Nop{},
		logger:   logging.NewNop(),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Repository exposes the underlying repository.
func (s *Store) Repository() repository.Repository {
	return s.repo
}

func (s *Store) publish(ctx context.Context, e notify.Event) {
	s.notifier.Publish(ctx, e)
}

// Tree lists every node of a workspace as a summary, ordered by
// (parentId, sortOrder, name).
func (s *Store) Tree(ctx context.Context, workspaceID string) ([]*models.TreeNode, error) {
	if _, err := s.repo.GetWorkspace(ctx, workspaceID); err != nil {
		return nil, mapRepoErr(err)
	}
	nodes, err := s.repo.ListNodes(ctx, workspaceID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	out := make([]*models.TreeNode, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, models.NewTreeNode(n))
	}
	return out, nil
}

// Nodes returns every node of a workspace with request content, ordered
// by (parentId, sortOrder, name).
func (s *Store) Nodes(ctx context.Context, workspaceID string) ([]*models.Node, error) {
	if _, err := s.repo.GetWorkspace(ctx, workspaceID); err != nil {
		return nil, mapRepoErr(err)
	}
	nodes, err := s.repo.ListNodes(ctx, workspaceID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return nodes, nil
}

// Create adds a node. REQUEST nodes start from in.Request or, when nil,
// the default empty request. Without a sort order the node is appended
// after its siblings.
func (s *Store) Create(ctx context.Context, actor string, in models.CreateNodeInput) (*models.Node, error) {
	return s.create(ctx, actor, true, in)
}

// create inserts a node; announce controls the node.created event.
func (s *Store) create(ctx context.Context, actor string, announce bool, in models.CreateNodeInput) (*models.Node, error) {
	if !in.Type.Valid() {
		return nil, apperr.BadRequest("invalid_type")
	}
	if !validName(in.Name) {
		return nil, apperr.BadRequest("invalid_name")
	}
	if _, err := s.repo.GetWorkspace(ctx, in.WorkspaceID); err != nil {
		return nil, mapRepoErr(err)
	}
	if err := s.ensureFolder(ctx, in.WorkspaceID, in.ParentID); err != nil {
		return nil, err
	}

	sortOrder, err := s.sortOrderFor(ctx, in.WorkspaceID, in.ParentID, in.SortOrder)
	if err != nil {
		return nil, err
	}

	node := &models.Node{
		ID:          s.newID(),
		WorkspaceID: in.WorkspaceID,
		ParentID:    in.ParentID,
		Type:        in.Type,
		Name:        in.Name,
		SortOrder:   sortOrder,
		Version:     1,
		UpdatedAt:   s.now().UTC(),
		UpdatedBy:   actorPtr(actor),
	}
	if in.Type == models.NodeRequest {
		node.Request = in.Request.Clone(true)
		if node.Request == nil {
			node.Request = models.DefaultRequestSpec()
		}
	}

	if err := s.repo.CreateNode(ctx, node); err != nil {
		return nil, mapRepoErr(err)
	}
	if announce {
		s.publish(ctx, notify.Event{Type: notify.NodeCreated, WorkspaceID: node.WorkspaceID, NodeID: node.ID})
	}
	return node, nil
}

// Patch updates the provided structural fields, increments the version and
// refreshes the audit fields. A new parent must be a folder outside the
// node's own subtree.
func (s *Store) Patch(ctx context.Context, actor, workspaceID, nodeID string, patch models.NodePatch) (*models.Node, error) {
	node, err := s.repo.GetNode(ctx, workspaceID, nodeID)
	if err != nil {
		return nil, mapRepoErr(err)
	}

	if patch.Name != nil {
		if !validName(*patch.Name) {
			return nil, apperr.BadRequest("invalid_name")
		}
		node.Name = *patch.Name
	}
	if patch.ParentID.Set {
		if err := s.checkReparent(ctx, node, patch.ParentID.Value); err != nil {
			return nil, err
		}
		node.ParentID = patch.ParentID.Value
	}
	if patch.SortOrder != nil {
		node.SortOrder = *patch.SortOrder
	}
	node.UpdatedAt = s.now().UTC()
	node.UpdatedBy = actorPtr(actor)

	if err := s.repo.PatchNode(ctx, node); err != nil {
		return nil, mapRepoErr(err)
	}
	s.publish(ctx, notify.Event{Type: notify.NodeUpdated, WorkspaceID: workspaceID, NodeID: nodeID})
	return node, nil
}

// checkReparent rejects a parent that is not a folder, or that is the node
// itself or one of its descendants.
func (s *Store) checkReparent(ctx context.Context, node *models.Node, parentID *string) error {
	if parentID == nil {
		return nil
	}
	if err := s.ensureFolder(ctx, node.WorkspaceID, parentID); err != nil {
		return err
	}
	if *parentID == node.ID {
		return apperr.BadRequest("invalid_parent")
	}
	nodes, err := s.repo.ListNodes(ctx, node.WorkspaceID)
	if err != nil {
		return mapRepoErr(err)
	}
	parentOf := make(map[string]string, len(nodes))
	for _, n := range nodes {
		parentOf[n.ID] = n.ParentKey()
	}
	seen := make(map[string]bool)
	for cur := *parentID; cur != "" && !seen[cur]; cur = parentOf[cur] {
		if cur == node.ID {
			return apperr.BadRequest("invalid_parent")
		}
		seen[cur] = true
	}
	return nil
}

// GetRequest returns the request content of a REQUEST node.
func (s *Store) GetRequest(ctx context.Context, workspaceID, nodeID string) (*models.RequestView, error) {
	node, err := s.getRequestNode(ctx, workspaceID, nodeID)
	if err != nil {
		return nil, err
	}
	return &models.RequestView{ID: node.ID, Name: node.Name, Version: node.Version, Request: node.Request}, nil
}

// UpdateRequest replaces the request content of a REQUEST node if its
// version still equals expectedVersion. A lost race yields a Conflict
// carrying the current version; nothing is written in that case.
func (s *Store) UpdateRequest(ctx context.Context, actor, workspaceID, nodeID string, expectedVersion int, spec *models.RequestSpec) (*models.RequestView, error) {
	if spec == nil {
		return nil, apperr.BadRequest("invalid_request")
	}
	node := &models.Node{
		ID:          nodeID,
		WorkspaceID: workspaceID,
		Type:        models.NodeRequest,
		Request:     spec.Clone(true),
		UpdatedAt:   s.now().UTC(),
		UpdatedBy:   actorPtr(actor),
	}
	if err := s.repo.UpdateRequest(ctx, node, expectedVersion); err != nil {
		return nil, mapRepoErr(err)
	}
	s.publish(ctx, notify.Event{Type: notify.RequestUpdated, WorkspaceID: workspaceID, NodeID: nodeID})
	return &models.RequestView{ID: nodeID, Name: node.Name, Version: node.Version, Request: node.Request}, nil
}

// Remove deletes a node and all of its descendants and returns how many
// nodes were deleted. Only the removed root is announced.
func (s *Store) Remove(ctx context.Context, workspaceID, nodeID string) (int, error) {
	if _, err := s.repo.GetNode(ctx, workspaceID, nodeID); err != nil {
		return 0, mapRepoErr(err)
	}

	ids := []string{nodeID}
	seen := map[string]bool{nodeID: true}
	level := []string{nodeID}
	for len(level) > 0 {
		children, err := s.repo.ListChildIDs(ctx, workspaceID, level)
		if err != nil {
			return 0, mapRepoErr(err)
		}
		level = level[:0:0]
		for _, id := range children {
			if seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
			level = append(level, id)
		}
	}

	deleted, err := s.repo.DeleteNodes(ctx, workspaceID, ids)
	if err != nil {
		return 0, mapRepoErr(err)
	}
	s.publish(ctx, notify.Event{Type: notify.NodeDeleted, WorkspaceID: workspaceID, NodeID: nodeID})
	return deleted, nil
}

// RemoveRequest deletes a REQUEST node.
func (s *Store) RemoveRequest(ctx context.Context, workspaceID, nodeID string) (int, error) {
	if _, err := s.getRequestNode(ctx, workspaceID, nodeID); err != nil {
		return 0, err
	}
	return s.Remove(ctx, workspaceID, nodeID)
}

// RemoveAll deletes every node of a workspace in bulk.
func (s *Store) RemoveAll(ctx context.Context, workspaceID string) (int, error) {
	n, err := s.repo.DeleteWorkspaceNodes(ctx, workspaceID)
	if err != nil {
		return 0, mapRepoErr(err)
	}
	return n, nil
}

// RootFolder returns the first root folder of a workspace, creating one
// named "Root" when there is none.
func (s *Store) RootFolder(ctx context.Context, actor, workspaceID string) (*models.Node, error) {
	root, err := s.repo.FindRootFolder(ctx, workspaceID)
	if err == nil {
		return root, nil
	}
	if !errors.Is(err, repository.ErrNodeNotFound) {
		return nil, mapRepoErr(err)
	}
	return s.Create(ctx, actor, models.CreateNodeInput{
		WorkspaceID: workspaceID,
		Type:        models.NodeFolder,
		Name:        "Root",
	})
}

func (s *Store) getRequestNode(ctx context.Context, workspaceID, nodeID string) (*models.Node, error) {
	node, err := s.repo.GetNode(ctx, workspaceID, nodeID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if node.Type != models.NodeRequest || node.Request == nil {
		return nil, apperr.NotFound(fmt.Errorf("node %s is not a request", nodeID))
	}
	return node, nil
}

// ensureFolder checks that parentID, when set, names a FOLDER of the workspace.
func (s *Store) ensureFolder(ctx context.Context, workspaceID string, parentID *string) error {
	if parentID == nil {
		return nil
	}
	parent, err := s.repo.GetNode(ctx, workspaceID, *parentID)
	if err != nil {
		if errors.Is(err, repository.ErrNodeNotFound) {
			return apperr.BadRequest("invalid_parent")
		}
		return mapRepoErr(err)
	}
	if parent.Type != models.NodeFolder {
		return apperr.BadRequest("invalid_parent")
	}
	return nil
}

// sortOrderFor returns explicit, or one past the largest sibling order.
func (s *Store) sortOrderFor(ctx context.Context, workspaceID string, parentID *string, explicit *int) (int, error) {
	if explicit != nil {
		return *explicit, nil
	}
	highest, ok, err := s.repo.MaxSortOrder(ctx, workspaceID, parentID)
	if err != nil {
		return 0, mapRepoErr(err)
	}
	if !ok {
		return 0, nil
	}
	return highest + 1, nil
}

func validName(name string) bool {
	n := utf8.RuneCountInString(name)
	return n >= 1 && n <= MaxNameLength
}

func actorPtr(actor string) *string {
	if actor == "" {
		return nil
	}
	return &actor
}

// mapRepoErr translates repository sentinels into application errors.
func mapRepoErr(err error) error {
	var mismatch *repository.VersionMismatchError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &mismatch):
		return apperr.VersionMismatch(mismatch.Current)
	case errors.Is(err, repository.ErrNodeNotFound), errors.Is(err, repository.ErrWorkspaceNotFound):
		return apperr.NotFound(err)
	case errors.Is(err, repository.ErrInvalidInput):
		return apperr.BadRequest("invalid_input")
	default:
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return err
		}
		return fmt.Errorf("tree store: %w", err)
	}
}
