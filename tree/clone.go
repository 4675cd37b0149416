package tree

import (
	"context"

	"github.com/ammiranda/request_tree/internal/apperr"
	"github.com/ammiranda/request_tree/models"
	"github.com/ammiranda/request_tree/notify"
)

// CloneRequest copies a REQUEST node under opts.TargetParentID, or under
// the source's parent when no target is given. The copy starts at version 1
// and is appended after its new siblings.
func (s *Store) CloneRequest(ctx context.Context, actor, workspaceID, nodeID string, opts models.CloneRequestOptions) (*models.Node, error) {
	source, err := s.getRequestNode(ctx, workspaceID, nodeID)
	if err != nil {
		return nil, err
	}

	parentID := opts.TargetParentID
	if parentID == nil {
		parentID = source.ParentID
	}
	name := source.Name
	if opts.Name != nil {
		name = *opts.Name
	}

	return s.Create(ctx, actor, models.CreateNodeInput{
		WorkspaceID: workspaceID,
		ParentID:    parentID,
		Type:        models.NodeRequest,
		Name:        name,
		Request:     source.Request.Clone(opts.IncludeAuth),
	})
}

// CloneTree copies a FOLDER node under opts.TargetParentID. A shallow clone
// creates one empty folder. A deep clone recreates the whole subtree from a
// single snapshot of the workspace, parents before children, with auth
// included. Each creation is an independent write: on failure the nodes
// created so far remain and the result counts only those.
func (s *Store) CloneTree(ctx context.Context, actor, workspaceID, nodeID string, opts models.CloneTreeOptions) (models.CloneResult, error) {
	root, err := s.repo.GetNode(ctx, workspaceID, nodeID)
	if err != nil {
		return models.CloneResult{}, mapRepoErr(err)
	}
	if root.Type != models.NodeFolder {
		return models.CloneResult{}, apperr.NotFound(nil)
	}
	if err := s.ensureFolder(ctx, workspaceID, opts.TargetParentID); err != nil {
		return models.CloneResult{}, err
	}

	name := root.Name
	if opts.Name != nil {
		name = *opts.Name
	}

	var descendants []*models.Node
	if opts.Mode != models.CloneShallow {
		// Snapshot before any write so a clone into its own subtree terminates.
		order, err := s.subtree(ctx, workspaceID, root)
		if err != nil {
			return models.CloneResult{}, err
		}
		descendants = order[1:]
	}

	rootClone, err := s.create(ctx, actor, false, models.CreateNodeInput{
		WorkspaceID: workspaceID,
		ParentID:    opts.TargetParentID,
		Type:        models.NodeFolder,
		Name:        name,
	})
	if err != nil {
		return models.CloneResult{}, err
	}
	result := models.CloneResult{RootID: rootClone.ID, Count: 1}

	newIDs := map[string]string{root.ID: rootClone.ID}
	for _, n := range descendants {
		parent, ok := newIDs[n.ParentKey()]
		if !ok {
			continue
		}
		sortOrder := n.SortOrder
		created, err := s.create(ctx, actor, false, models.CreateNodeInput{
			WorkspaceID: workspaceID,
			ParentID:    &parent,
			Type:        n.Type,
			Name:        n.Name,
			SortOrder:   &sortOrder,
			Request:     n.Request.Clone(true),
		})
		if err != nil {
			s.logger.Warn("deep clone stopped",
				"workspace_id", workspaceID,
				"source_id", nodeID,
				"created", result.Count,
				"error", err,
			)
			s.publishCloned(ctx, workspaceID, result)
			return result, err
		}
		newIDs[n.ID] = created.ID
		result.Count++
	}

	s.publishCloned(ctx, workspaceID, result)
	return result, nil
}

func (s *Store) publishCloned(ctx context.Context, workspaceID string, result models.CloneResult) {
	s.publish(ctx, notify.Event{
		Type:        notify.TreeCloned,
		WorkspaceID: workspaceID,
		RootID:      result.RootID,
		Count:       result.Count,
	})
}

// subtree returns root followed by its descendants in breadth-first order,
// siblings in (sortOrder, name) order.
func (s *Store) subtree(ctx context.Context, workspaceID string, root *models.Node) ([]*models.Node, error) {
	nodes, err := s.repo.ListNodes(ctx, workspaceID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	children := make(map[string][]*models.Node)
	for _, n := range nodes {
		if n.ParentID != nil {
			children[*n.ParentID] = append(children[*n.ParentID], n)
		}
	}

	order := []*models.Node{root}
	seen := map[string]bool{root.ID: true}
	for i := 0; i < len(order); i++ {
		for _, child := range children[order[i].ID] {
			if seen[child.ID] {
				continue
			}
			seen[child.ID] = true
			order = append(order, child)
		}
	}
	return order, nil
}
