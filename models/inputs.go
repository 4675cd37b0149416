package models

// CreateNodeInput describes a node to create. Request is only read for
// REQUEST nodes; nil means the default empty request.
type CreateNodeInput struct {
	WorkspaceID string
	ParentID    *string
	Type        NodeType
	Name        string
	SortOrder   *int
	Request     *RequestSpec
}

// NodePatch lists the structural fields to change. Nil / unset fields are
// left untouched.
type NodePatch struct {
	Name      *string
	ParentID  Nullable[string]
	SortOrder *int
}

// Empty reports whether the patch changes nothing.
func (p NodePatch) Empty() bool {
	return p.Name == nil && !p.ParentID.Set && p.SortOrder == nil
}

// CloneRequestOptions controls cloneRequest.
type CloneRequestOptions struct {
	TargetParentID *string
	Name           *string
	IncludeAuth    bool
}

// CloneMode selects between a single folder copy and a full subtree copy.
type CloneMode string

const (
	CloneShallow CloneMode = "shallow"
	CloneDeep    CloneMode = "deep"
)

// CloneTreeOptions controls cloneTree.
type CloneTreeOptions struct {
	TargetParentID *string
	Name           *string
	Mode           CloneMode
}

// CloneResult reports the new subtree root and how many nodes were created.
type CloneResult struct {
	RootID string `json:"rootId"`
	Count  int    `json:"count"`
}

// RequestView is the detail view of a REQUEST node.
type RequestView struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Version int          `json:"version"`
	Request *RequestSpec `json:"request"`
}
