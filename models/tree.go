package models

import (
	"errors"
	"time"
)

// NodeType is fixed at creation.
type NodeType string

const (
	NodeFolder  NodeType = "FOLDER"
	NodeRequest NodeType = "REQUEST"
)

// Valid reports whether t is a known node type.
func (t NodeType) Valid() bool {
	return t == NodeFolder || t == NodeRequest
}

var (
	// ErrInvalidBodyType is returned when a request names an unknown body type
	ErrInvalidBodyType = errors.New("invalid body type")
	// ErrInvalidAuthType is returned when a request names an unknown auth type
	ErrInvalidAuthType = errors.New("invalid auth type")
)

// Node is one element of a workspace's request tree. Request is set if and
// only if Type is REQUEST.
type Node struct {
	ID          string       `json:"id"`
	WorkspaceID string       `json:"workspaceId"`
	ParentID    *string      `json:"parentId"`
	Type        NodeType     `json:"type"`
	Name        string       `json:"name"`
	SortOrder   int          `json:"sortOrder"`
	Version     int          `json:"version"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	UpdatedBy   *string      `json:"updatedBy"`
	Request     *RequestSpec `json:"request"`
}

// ParentKey returns the parent id, or "" for a root node.
func (n *Node) ParentKey() string {
	if n.ParentID == nil {
		return ""
	}
	return *n.ParentID
}

// Workspace scopes a tree.
type Workspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// TreeNode is the summary view of a node used by the tree listing.
type TreeNode struct {
	ID        string      `json:"id"`
	ParentID  *string     `json:"parentId"`
	Type      NodeType    `json:"type"`
	Name      string      `json:"name"`
	SortOrder int         `json:"sortOrder"`
	Version   int         `json:"version"`
	Method    *string     `json:"method"`
	URLRaw    *string     `json:"urlRaw"`
	Children  []*TreeNode `json:"children"`
}

// NewTreeNode creates the summary of a node without children.
func NewTreeNode(n *Node) *TreeNode {
	t := &TreeNode{
		ID:        n.ID,
		ParentID:  n.ParentID,
		Type:      n.Type,
		Name:      n.Name,
		SortOrder: n.SortOrder,
		Version:   n.Version,
		Children:  make([]*TreeNode, 0),
	}
	if n.Type == NodeRequest && n.Request != nil {
		method, url := n.Request.Method, n.Request.URLRaw
		t.Method = &method
		t.URLRaw = &url
	}
	return t
}

// AddChild adds a child node to the current node
func (t *TreeNode) AddChild(child *TreeNode) {
	t.Children = append(t.Children, child)
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
