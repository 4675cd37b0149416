package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/ammiranda/request_tree/converter"
	"github.com/ammiranda/request_tree/internal/logging"

	"github.com/gin-gonic/gin"
)

// MaxImportBytes bounds the size of an uploaded collection document.
const MaxImportBytes = 32 << 20

// PostmanHandler handles collection import and export
type PostmanHandler struct {
	converter *converter.Converter
	logger    *slog.Logger
}

// NewPostmanHandler creates a new PostmanHandler instance
func NewPostmanHandler(conv *converter.Converter, logger *slog.Logger) *PostmanHandler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &PostmanHandler{converter: conv, logger: logger}
}

// Import creates the folders and requests of an uploaded collection
func (h *PostmanHandler) Import(c *gin.Context) {
	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxImportBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload_too_large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_postman_collection"})
		return
	}

	result, err := h.converter.Import(c.Request.Context(), actorOf(c), c.Param("workspaceId"), data)
	if err != nil && result.Created == 0 {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": err == nil, "rootId": result.RootID, "created": result.Created})
}

// Export returns the workspace as a collection document
func (h *PostmanHandler) Export(c *gin.Context) {
	doc, err := h.converter.Export(c.Request.Context(), c.Param("workspaceId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}
