package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ammiranda/request_tree/cache"
	"github.com/ammiranda/request_tree/converter"
	"github.com/ammiranda/request_tree/internal/logging"
	"github.com/ammiranda/request_tree/metrics"
	"github.com/ammiranda/request_tree/notify"
	"github.com/ammiranda/request_tree/ratelimit"
	"github.com/ammiranda/request_tree/runner"
	"github.com/ammiranda/request_tree/tree"

	"github.com/gin-gonic/gin"
)

// Services are the dependencies of the HTTP surface. Cache, Hub, Limiter
// and Metrics may be nil.
type Services struct {
	Store     *tree.Store
	Converter *converter.Converter
	Engine    *runner.Engine
	Cache     cache.CacheProvider
	Hub       *notify.Hub
	Limiter   *ratelimit.Limiter
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Heartbeat time.Duration
}

// NewRouter builds the gin engine with every route of the service.
func NewRouter(s Services) *gin.Engine {
	if s.Logger == nil {
		s.Logger = logging.NewNop()
	}
	if s.Hub == nil {
		s.Hub = notify.NewHub(0)
	}

	treeHandler := NewTreeHandler(s.Store, s.Cache, s.Logger)
	workspaceHandler := NewWorkspaceHandler(s.Store, s.Logger)
	postmanHandler := NewPostmanHandler(s.Converter, s.Logger)
	runnerHandler := NewRunnerHandler(s.Engine, s.Logger)
	eventsHandler := NewEventsHandler(s.Hub, s.Heartbeat)

	r := gin.Default()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(s.Metrics.Handler()))

	// API routes
	api := r.Group("/api", RequireActor())
	{
		api.POST("/workspaces", workspaceHandler.Create)

		ws := api.Group("/workspaces/:workspaceId")
		viewer := RequireRole(RoleViewer)
		editor := RequireRole(RoleEditor)
		owner := RequireRole(RoleOwner)

		ws.GET("", viewer, workspaceHandler.Get)
		ws.PATCH("", owner, workspaceHandler.Rename)
		ws.DELETE("", owner, workspaceHandler.Delete)

		ws.GET("/tree", viewer, treeHandler.GetTree)
		ws.GET("/events", viewer, eventsHandler.Stream)

		ws.POST("/nodes", editor, treeHandler.CreateNode)
		ws.PATCH("/nodes/:nodeId", editor, treeHandler.PatchNode)
		ws.DELETE("/nodes/:nodeId", editor, treeHandler.DeleteNode)
		ws.POST("/nodes/:nodeId/clone", editor, treeHandler.CloneRequest)
		ws.POST("/nodes/:nodeId/clone-tree", editor, treeHandler.CloneTree)

		ws.GET("/requests/:nodeId", viewer, treeHandler.GetRequest)
		ws.PUT("/requests/:nodeId", editor, treeHandler.UpdateRequest)
		ws.DELETE("/requests/:nodeId", editor, treeHandler.DeleteRequest)

		ws.POST("/postman/import", editor, RateLimit(s.Limiter, ratelimit.ClassImport, s.Metrics), postmanHandler.Import)
		ws.GET("/postman/export", viewer, postmanHandler.Export)

		ws.POST("/runner/execute", viewer, RateLimit(s.Limiter, ratelimit.ClassExecute, s.Metrics), runnerHandler.Execute)
	}

	return r
}
