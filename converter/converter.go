// Package converter translates between a workspace tree and the nested
// collection interchange format.
package converter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/ammiranda/request_tree/internal/apperr"
	"github.com/ammiranda/request_tree/internal/logging"
	"github.com/ammiranda/request_tree/metrics"
	"github.com/ammiranda/request_tree/models"
	"github.com/ammiranda/request_tree/tree"
)

// DefaultMaxItems is the import ceiling used when none is configured.
const DefaultMaxItems = 2000

// Converter imports collections into a tree store and exports them back.
type Converter struct {
	store    *tree.Store
	maxItems int
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Converter)

// WithMaxItems sets the import ceiling. Values below 1 are ignored.
func WithMaxItems(n int) Option {
	return func(c *Converter) {
		if n >= 1 {
			c.maxItems = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Converter) {
		c.logger = logger
	}
}

// WithMetrics records imported node counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Converter) {
		c.metrics = m
	}
}

// New creates a converter over store.
func New(store *tree.Store, opts ...Option) *Converter {
	c := &Converter{
		store:    store,
		maxItems: DefaultMaxItems,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxItems returns the import ceiling.
func (c *Converter) MaxItems() int {
	return c.maxItems
}

// ImportResult reports where an import landed and how many nodes it created.
type ImportResult struct {
	RootID  string `json:"rootId"`
	Created int    `json:"created"`
}

// Import decodes a collection document and creates its folders and requests
// under the workspace root folder. The document is rejected as a whole when
// it is malformed or larger than the ceiling. Creation is a best-effort
// sequence: on failure the nodes created so far are kept and counted.
func (c *Converter) Import(ctx context.Context, actor, workspaceID string, document []byte) (ImportResult, error) {
	var doc map[string]any
	if err := json.Unmarshal(document, &doc); err != nil {
		return ImportResult{}, apperr.BadRequest("invalid_postman_collection")
	}
	items, ok := doc["item"].([]any)
	if !ok {
		return ImportResult{}, apperr.BadRequest("invalid_postman_collection")
	}
	if countItems(items) > c.maxItems {
		return ImportResult{}, apperr.BadRequestWith("import_too_large", map[string]any{"maxItems": c.maxItems})
	}

	root, err := c.store.RootFolder(ctx, actor, workspaceID)
	if err != nil {
		return ImportResult{}, err
	}

	res := ImportResult{RootID: root.ID}
	err = c.importItems(ctx, actor, workspaceID, root.ID, items, &res.Created)
	c.metrics.Imported(res.Created)
	if err != nil {
		c.logger.Warn("import stopped early",
			slog.String("workspace", workspaceID),
			slog.Int("created", res.Created),
			slog.Any("error", err))
		return res, err
	}
	c.logger.Info("collection imported",
		slog.String("workspace", workspaceID),
		slog.Int("created", res.Created))
	return res, nil
}

func (c *Converter) importItems(ctx context.Context, actor, workspaceID, parentID string, items []any, created *int) error {
	sortOrder := 0
	for _, raw := range items {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if children, isFolder := entry["item"].([]any); isFolder {
			order := sortOrder
			folder, err := c.store.Create(ctx, actor, models.CreateNodeInput{
				WorkspaceID: workspaceID,
				ParentID:    &parentID,
				Type:        models.NodeFolder,
				Name:        itemName(entry["name"], "Folder"),
				SortOrder:   &order,
			})
			if err != nil {
				return err
			}
			*created++
			sortOrder++
			if err := c.importItems(ctx, actor, workspaceID, folder.ID, children, created); err != nil {
				return err
			}
			continue
		}

		req, ok := entry["request"]
		if !ok || req == nil {
			continue
		}
		spec, err := toRequestSpec(req)
		if err != nil {
			return err
		}
		order := sortOrder
		if _, err := c.store.Create(ctx, actor, models.CreateNodeInput{
			WorkspaceID: workspaceID,
			ParentID:    &parentID,
			Type:        models.NodeRequest,
			Name:        itemName(entry["name"], "Request"),
			SortOrder:   &order,
			Request:     spec,
		}); err != nil {
			return err
		}
		*created++
		sortOrder++
	}
	return nil
}

// countItems counts a folder as one plus its contents and a request as one.
func countItems(items []any) int {
	n := 0
	for _, raw := range items {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if children, isFolder := entry["item"].([]any); isFolder {
			n += 1 + countItems(children)
			continue
		}
		if req, ok := entry["request"]; ok && req != nil {
			n++
		}
	}
	return n
}

// itemName falls back to def for empty names and truncates long ones.
func itemName(v any, def string) string {
	name := stringOf(v)
	if name == "" {
		return def
	}
	if utf8.RuneCountInString(name) > tree.MaxNameLength {
		name = string([]rune(name)[:tree.MaxNameLength])
	}
	return name
}

// Export rebuilds the nested collection document of a workspace.
func (c *Converter) Export(ctx context.Context, workspaceID string) (*Collection, error) {
	ws, err := c.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	nodes, err := c.store.Nodes(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	byParent := make(map[string][]*models.Node)
	for _, n := range nodes {
		byParent[n.ParentKey()] = append(byParent[n.ParentKey()], n)
	}

	name := ws.Name
	if name == "" {
		name = fmt.Sprintf("Workspace %s", workspaceID)
	}
	return &Collection{
		Info: Info{Name: name, Schema: SchemaURL},
		Item: buildItems(byParent, "", make(map[string]bool)),
	}, nil
}

// buildItems walks the parent index; children arrive already sorted.
func buildItems(byParent map[string][]*models.Node, parent string, seen map[string]bool) []Item {
	children := byParent[parent]
	out := make([]Item, 0, len(children))
	for _, n := range children {
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		if n.Type == models.NodeFolder {
			out = append(out, Item{Name: n.Name, Item: buildItems(byParent, n.ID, seen)})
			continue
		}
		out = append(out, Item{Name: n.Name, Request: fromRequestSpec(n.Request)})
	}
	return out
}
