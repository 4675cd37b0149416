package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ammiranda/request_tree/models"
)

// sqlStore holds the queries shared by the SQLite and Postgres repositories.
// Queries are written with '?' placeholders and rebound for Postgres.
type sqlStore struct {
	db       *sql.DB
	postgres bool
}

const nodeColumns = "id, workspace_id, parent_id, type, name, sort_order, version, updated_at, updated_by, request"

func (s *sqlStore) bind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *sqlStore) CreateWorkspace(ctx context.Context, ws *models.Workspace) error {
	if ws == nil || ws.ID == "" {
		return ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, s.bind("INSERT INTO workspaces (id, name, created_at) VALUES (?, ?, ?)"),
		ws.ID, ws.Name, ws.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("error creating workspace: %w", err)
	}
	return nil
}

func (s *sqlStore) GetWorkspace(ctx context.Context, id string) (*models.Workspace, error) {
	var ws models.Workspace
	err := s.db.QueryRowContext(ctx, s.bind("SELECT id, name, created_at FROM workspaces WHERE id = ?"), id).
		Scan(&ws.ID, &ws.Name, &ws.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWorkspaceNotFound
		}
		return nil, fmt.Errorf("error getting workspace: %w", err)
	}
	return &ws, nil
}

func (s *sqlStore) RenameWorkspace(ctx context.Context, id, name string) error {
	result, err := s.db.ExecContext(ctx, s.bind("UPDATE workspaces SET name = ? WHERE id = ?"), name, id)
	if err != nil {
		return fmt.Errorf("error renaming workspace: %w", err)
	}
	return requireRow(result, ErrWorkspaceNotFound)
}

func (s *sqlStore) DeleteWorkspace(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.bind("DELETE FROM workspaces WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("error deleting workspace: %w", err)
	}
	return requireRow(result, ErrWorkspaceNotFound)
}

func (s *sqlStore) CreateNode(ctx context.Context, node *models.Node) error {
	if err := validateNode(node); err != nil {
		return err
	}
	request, err := encodeRequest(node.Request)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.bind(
		"INSERT INTO nodes ("+nodeColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
		node.ID, node.WorkspaceID, node.ParentID, string(node.Type), node.Name,
		node.SortOrder, node.Version, node.UpdatedAt.UTC(), node.UpdatedBy, request,
	)
	if err != nil {
		return fmt.Errorf("error creating node: %w", err)
	}
	return nil
}

func (s *sqlStore) GetNode(ctx context.Context, workspaceID, id string) (*models.Node, error) {
	row := s.db.QueryRowContext(ctx, s.bind(
		"SELECT "+nodeColumns+" FROM nodes WHERE workspace_id = ? AND id = ?"), workspaceID, id)
	node, err := scanNode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNodeNotFound
		}
		return nil, fmt.Errorf("error getting node: %w", err)
	}
	return node, nil
}

func (s *sqlStore) ListNodes(ctx context.Context, workspaceID string) ([]*models.Node, error) {
	rows, err := s.db.QueryContext(ctx, s.bind(
		"SELECT "+nodeColumns+" FROM nodes WHERE workspace_id = ?"), workspaceID)
	if err != nil {
		return nil, fmt.Errorf("error listing nodes: %w", err)
	}
	defer rows.Close()

	nodes := make([]*models.Node, 0)
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning node: %w", err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}
	// Ordered in Go so every backend agrees regardless of collation.
	SortNodes(nodes)
	return nodes, nil
}

func (s *sqlStore) ListChildIDs(ctx context.Context, workspaceID string, parentIDs []string) ([]string, error) {
	var ids []string
	for _, chunk := range chunks(parentIDs) {
		args := append([]any{workspaceID}, toArgs(chunk)...)
		rows, err := s.db.QueryContext(ctx, s.bind(
			"SELECT id FROM nodes WHERE workspace_id = ? AND parent_id IN ("+placeholders(len(chunk))+")"), args...)
		if err != nil {
			return nil, fmt.Errorf("error listing children: %w", err)
		}
		ids, err = appendIDs(ids, rows)
		if err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func (s *sqlStore) MaxSortOrder(ctx context.Context, workspaceID string, parentID *string) (int, bool, error) {
	var highest sql.NullInt64
	var err error
	if parentID == nil {
		err = s.db.QueryRowContext(ctx, s.bind(
			"SELECT MAX(sort_order) FROM nodes WHERE workspace_id = ? AND parent_id IS NULL"), workspaceID).Scan(&highest)
	} else {
		err = s.db.QueryRowContext(ctx, s.bind(
			"SELECT MAX(sort_order) FROM nodes WHERE workspace_id = ? AND parent_id = ?"), workspaceID, *parentID).Scan(&highest)
	}
	if err != nil {
		return 0, false, fmt.Errorf("error reading sort order: %w", err)
	}
	return int(highest.Int64), highest.Valid, nil
}

func (s *sqlStore) FindRootFolder(ctx context.Context, workspaceID string) (*models.Node, error) {
	row := s.db.QueryRowContext(ctx, s.bind(
		"SELECT "+nodeColumns+" FROM nodes WHERE workspace_id = ? AND parent_id IS NULL AND type = ? "+
			"ORDER BY sort_order, name, id LIMIT 1"), workspaceID, string(models.NodeFolder))
	node, err := scanNode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNodeNotFound
		}
		return nil, fmt.Errorf("error finding root folder: %w", err)
	}
	return node, nil
}

func (s *sqlStore) PatchNode(ctx context.Context, node *models.Node) error {
	var version int
	err := s.db.QueryRowContext(ctx, s.bind(
		"UPDATE nodes SET name = ?, parent_id = ?, sort_order = ?, updated_at = ?, updated_by = ?, version = version + 1 "+
			"WHERE workspace_id = ? AND id = ? RETURNING version"),
		node.Name, node.ParentID, node.SortOrder, node.UpdatedAt.UTC(), node.UpdatedBy, node.WorkspaceID, node.ID,
	).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNodeNotFound
		}
		return fmt.Errorf("error patching node: %w", err)
	}
	node.Version = version
	return nil
}

func (s *sqlStore) UpdateRequest(ctx context.Context, node *models.Node, expectedVersion int) error {
	request, err := encodeRequest(node.Request)
	if err != nil {
		return err
	}
	if request == nil {
		return ErrInvalidInput
	}
	var (
		version int
		name    string
	)
	err = s.db.QueryRowContext(ctx, s.bind(
		"UPDATE nodes SET request = ?, updated_at = ?, updated_by = ?, version = version + 1 "+
			"WHERE workspace_id = ? AND id = ? AND type = ? AND version = ? RETURNING version, name"),
		request, node.UpdatedAt.UTC(), node.UpdatedBy, node.WorkspaceID, node.ID, string(models.NodeRequest), expectedVersion,
	).Scan(&version, &name)
	if err == nil {
		node.Version = version
		node.Name = name
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("error updating request: %w", err)
	}

	current, err := s.GetNode(ctx, node.WorkspaceID, node.ID)
	if err != nil {
		return err
	}
	if current.Type != models.NodeRequest {
		return ErrNodeNotFound
	}
	return &VersionMismatchError{Current: current.Version}
}

func (s *sqlStore) DeleteNodes(ctx context.Context, workspaceID string, ids []string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	deleted := 0
	for _, chunk := range chunks(ids) {
		args := append([]any{workspaceID}, toArgs(chunk)...)
		result, err := tx.ExecContext(ctx, s.bind(
			"DELETE FROM nodes WHERE workspace_id = ? AND id IN ("+placeholders(len(chunk))+")"), args...)
		if err != nil {
			return 0, fmt.Errorf("error deleting nodes: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("error getting rows affected: %w", err)
		}
		deleted += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing delete: %w", err)
	}
	return deleted, nil
}

func (s *sqlStore) DeleteWorkspaceNodes(ctx context.Context, workspaceID string) (int, error) {
	result, err := s.db.ExecContext(ctx, s.bind("DELETE FROM nodes WHERE workspace_id = ?"), workspaceID)
	if err != nil {
		return 0, fmt.Errorf("error deleting workspace nodes: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error getting rows affected: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*models.Node, error) {
	var (
		node      models.Node
		nodeType  string
		parentID  sql.NullString
		updatedBy sql.NullString
		updatedAt time.Time
		request   []byte
	)
	err := row.Scan(&node.ID, &node.WorkspaceID, &parentID, &nodeType, &node.Name,
		&node.SortOrder, &node.Version, &updatedAt, &updatedBy, &request)
	if err != nil {
		return nil, err
	}
	node.Type = models.NodeType(nodeType)
	node.UpdatedAt = updatedAt.UTC()
	if parentID.Valid {
		node.ParentID = &parentID.String
	}
	if updatedBy.Valid {
		node.UpdatedBy = &updatedBy.String
	}
	if len(request) > 0 {
		var spec models.RequestSpec
		if err := json.Unmarshal(request, &spec); err != nil {
			return nil, fmt.Errorf("error decoding request of node %s: %w", node.ID, err)
		}
		node.Request = &spec
	}
	return &node, nil
}

// encodeRequest returns nil for folders so the column stays NULL.
func encodeRequest(spec *models.RequestSpec) (any, error) {
	if spec == nil {
		return nil, nil
	}
	data, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("error encoding request: %w", err)
	}
	return string(data), nil
}

func requireRow(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func appendIDs(ids []string, rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const chunkSize = 500

func chunks(ids []string) [][]string {
	var out [][]string
	for len(ids) > 0 {
		n := chunkSize
		if len(ids) < n {
			n = len(ids)
		}
		out = append(out, ids[:n])
		ids = ids[n:]
	}
	return out
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
