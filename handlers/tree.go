package handlers

import (
	"log/slog"
	"net/http"

	"github.com/ammiranda/request_tree/cache"
	"github.com/ammiranda/request_tree/internal/logging"
	"github.com/ammiranda/request_tree/models"
	"github.com/ammiranda/request_tree/tree"

	"github.com/gin-gonic/gin"
)

// TreeHandler handles tree, node and request HTTP requests
type TreeHandler struct {
	store  *tree.Store
	cache  cache.CacheProvider
	logger *slog.Logger
}

// NewTreeHandler creates a new TreeHandler instance
func NewTreeHandler(store *tree.Store, provider cache.CacheProvider, logger *slog.Logger) *TreeHandler {
	if provider == nil {
		provider = cache.NoCache{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &TreeHandler{
		store:  store,
		cache:  provider,
		logger: logger,
	}
}

// BuildTree nests a flat, ordered node list by parentId. Nodes whose parent
// is missing are returned as roots.
func BuildTree(nodes []*models.TreeNode) []*models.TreeNode {
	nodeMap := make(map[string]*models.TreeNode, len(nodes))
	for _, node := range nodes {
		node.Children = make([]*models.TreeNode, 0)
		nodeMap[node.ID] = node
	}

	rootNodes := make([]*models.TreeNode, 0)
	for _, node := range nodes {
		if node.ParentID != nil {
			if parent, exists := nodeMap[*node.ParentID]; exists && parent != node {
				parent.AddChild(node)
				continue
			}
		}
		rootNodes = append(rootNodes, node)
	}
	return rootNodes
}

// GetTree returns the nested tree of a workspace
func (h *TreeHandler) GetTree(c *gin.Context) {
	ctx := c.Request.Context()
	workspaceID := c.Param("workspaceId")

	// Try to get from cache first
	if cachedTree, found := h.cache.GetTree(ctx, workspaceID); found {
		c.JSON(http.StatusOK, cachedTree)
		return
	}

	nodes, err := h.store.Tree(ctx, workspaceID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	rootNodes := BuildTree(nodes)

	h.cache.SetTree(ctx, workspaceID, rootNodes)
	c.JSON(http.StatusOK, rootNodes)
}

// CreateNode creates a new node in the tree
func (h *TreeHandler) CreateNode(c *gin.Context) {
	var req models.CreateNodeRequest
	if !bindJSON(c, &req) {
		return
	}

	node, err := h.store.Create(c.Request.Context(), actorOf(c), models.CreateNodeInput{
		WorkspaceID: c.Param("workspaceId"),
		ParentID:    req.ParentID,
		Type:        req.Type,
		Name:        req.Name,
		SortOrder:   req.SortOrder,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, node)
}

// PatchNode changes the name, parent or sort order of a node
func (h *TreeHandler) PatchNode(c *gin.Context) {
	var req models.PatchNodeRequest
	if !bindJSON(c, &req) {
		return
	}

	node, err := h.store.Patch(c.Request.Context(), actorOf(c), c.Param("workspaceId"), c.Param("nodeId"), models.NodePatch{
		Name:      req.Name,
		ParentID:  req.ParentID,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, node)
}

// DeleteNode deletes a node and its descendants
func (h *TreeHandler) DeleteNode(c *gin.Context) {
	deleted, err := h.store.Remove(c.Request.Context(), c.Param("workspaceId"), c.Param("nodeId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "deleted": deleted})
}

// GetRequest returns the request content of a REQUEST node
func (h *TreeHandler) GetRequest(c *gin.Context) {
	view, err := h.store.GetRequest(c.Request.Context(), c.Param("workspaceId"), c.Param("nodeId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// UpdateRequest replaces the request content if the version still matches
func (h *TreeHandler) UpdateRequest(c *gin.Context) {
	var req models.UpdateRequestRequest
	if !bindJSON(c, &req) {
		return
	}
	spec, err := req.ToSpec()
	if err != nil {
		respondError(c, h.logger, specError(err))
		return
	}

	view, err := h.store.UpdateRequest(c.Request.Context(), actorOf(c), c.Param("workspaceId"), c.Param("nodeId"), req.Version, spec)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// DeleteRequest deletes a REQUEST node
func (h *TreeHandler) DeleteRequest(c *gin.Context) {
	deleted, err := h.store.RemoveRequest(c.Request.Context(), c.Param("workspaceId"), c.Param("nodeId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "deleted": deleted})
}

// CloneRequest copies a REQUEST node
func (h *TreeHandler) CloneRequest(c *gin.Context) {
	var req models.CloneRequestRequest
	if !bindJSON(c, &req) {
		return
	}
	opts := models.CloneRequestOptions{
		TargetParentID: req.TargetParentID,
		Name:           req.Name,
		IncludeAuth:    req.IncludeAuth == nil || *req.IncludeAuth,
	}

	node, err := h.store.CloneRequest(c.Request.Context(), actorOf(c), c.Param("workspaceId"), c.Param("nodeId"), opts)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, node)
}

// CloneTree copies a folder, and in deep mode its whole subtree
func (h *TreeHandler) CloneTree(c *gin.Context) {
	var req models.CloneTreeRequest
	if !bindJSON(c, &req) {
		return
	}
	opts := models.CloneTreeOptions{
		TargetParentID: req.TargetParentID,
		Name:           req.Name,
		Mode:           req.Mode,
	}

	result, err := h.store.CloneTree(c.Request.Context(), actorOf(c), c.Param("workspaceId"), c.Param("nodeId"), opts)
	if err != nil && result.RootID == "" {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}
