package handlers

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/ammiranda/request_tree/metrics"
	"github.com/ammiranda/request_tree/ratelimit"

	"github.com/gin-gonic/gin"
)

const (
	// ActorHeader carries the id of the authenticated caller.
	ActorHeader = "X-Actor-ID"
	// RoleHeader carries the caller's role in the addressed workspace.
	RoleHeader = "X-Workspace-Role"

	actorKey = "actor"
	roleKey  = "role"
)

// Role is a workspace membership level.
type Role int

const (
	RoleNone Role = iota
	RoleViewer
	RoleEditor
	RoleAdmin
	RoleOwner
)

// ParseRole maps VIEWER, EDITOR, ADMIN and OWNER to a Role.
func ParseRole(s string) Role {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "VIEWER":
		return RoleViewer
	case "EDITOR":
		return RoleEditor
	case "ADMIN":
		return RoleAdmin
	case "OWNER":
		return RoleOwner
	default:
		return RoleNone
	}
}

func (r Role) String() string {
	switch r {
	case RoleViewer:
		return "VIEWER"
	case RoleEditor:
		return "EDITOR"
	case RoleAdmin:
		return "ADMIN"
	case RoleOwner:
		return "OWNER"
	default:
		return ""
	}
}

// RequireActor rejects requests without an actor id.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := strings.TrimSpace(c.GetHeader(ActorHeader))
		if actor == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// RequireRole rejects callers whose workspace role is below minRole.
func RequireRole(minRole Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := ParseRole(c.GetHeader(RoleHeader))
		if role == RoleNone || role < minRole {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Set(roleKey, role)
		c.Next()
	}
}

// RateLimit counts the request against (class, actor) and answers 429 when
// the window is full. Store failures let the request through.
func RateLimit(limiter *ratelimit.Limiter, class string, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		decision, err := limiter.Allow(c.Request.Context(), class, actorOf(c))
		if err == nil && !decision.Allowed {
			m.RateLimited(class)
			retry := int(math.Ceil(decision.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
			return
		}
		c.Next()
	}
}

func actorOf(c *gin.Context) string {
	if v, ok := c.Get(actorKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return "anon"
}
