package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ammiranda/request_tree/internal/logging"
	"github.com/ammiranda/request_tree/models"
	"github.com/ammiranda/request_tree/runner"

	"github.com/gin-gonic/gin"
)

// RunnerHandler executes stored requests
type RunnerHandler struct {
	engine *runner.Engine
	logger *slog.Logger
}

// NewRunnerHandler creates a new RunnerHandler instance
func NewRunnerHandler(engine *runner.Engine, logger *slog.Logger) *RunnerHandler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &RunnerHandler{engine: engine, logger: logger}
}

// Execute performs the outbound call of a REQUEST node
func (h *RunnerHandler) Execute(c *gin.Context) {
	var req models.ExecuteRequest
	if !bindJSON(c, &req) {
		return
	}
	var timeout time.Duration
	if req.TimeoutMs != nil {
		timeout = time.Duration(*req.TimeoutMs) * time.Millisecond
	}

	result, err := h.engine.Execute(c.Request.Context(), c.Param("workspaceId"), req.NodeID, timeout)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
