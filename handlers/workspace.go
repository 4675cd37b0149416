package handlers

import (
	"log/slog"
	"net/http"

	"github.com/ammiranda/request_tree/internal/logging"
	"github.com/ammiranda/request_tree/models"
	"github.com/ammiranda/request_tree/tree"

	"github.com/gin-gonic/gin"
)

// WorkspaceHandler handles workspace lifecycle requests
type WorkspaceHandler struct {
	store  *tree.Store
	logger *slog.Logger
}

// NewWorkspaceHandler creates a new WorkspaceHandler instance
func NewWorkspaceHandler(store *tree.Store, logger *slog.Logger) *WorkspaceHandler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &WorkspaceHandler{store: store, logger: logger}
}

// Create creates a workspace and its root folder
func (h *WorkspaceHandler) Create(c *gin.Context) {
	var req models.WorkspaceRequest
	if !bindJSON(c, &req) {
		return
	}
	ws, root, err := h.store.CreateWorkspace(c.Request.Context(), actorOf(c), req.Name)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"workspace": ws, "root": root})
}

// Get returns a workspace
func (h *WorkspaceHandler) Get(c *gin.Context) {
	ws, err := h.store.GetWorkspace(c.Request.Context(), c.Param("workspaceId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ws)
}

// Rename changes the workspace name
func (h *WorkspaceHandler) Rename(c *gin.Context) {
	var req models.WorkspaceRequest
	if !bindJSON(c, &req) {
		return
	}
	ws, err := h.store.RenameWorkspace(c.Request.Context(), c.Param("workspaceId"), req.Name)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ws)
}

// Delete removes a workspace and all of its nodes
func (h *WorkspaceHandler) Delete(c *gin.Context) {
	deleted, err := h.store.DeleteWorkspace(c.Request.Context(), c.Param("workspaceId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "deletedNodes": deleted})
}
