package models

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Nullable distinguishes an absent JSON field (Set=false) from an explicit
// null (Set=true, Value=nil).
type Nullable[T any] struct {
	Set   bool
	Value *T
}

// UnmarshalJSON is only called when the key is present.
func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	n.Set = true
	if string(data) == "null" {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

// NullableOf returns a set Nullable holding v.
func NullableOf[T any](v T) Nullable[T] {
	return Nullable[T]{Set: true, Value: &v}
}

// CreateNodeRequest represents the request body for creating a node
type CreateNodeRequest struct {
	ParentID  *string  `json:"parentId" validate:"omitempty,min=1"`
	Type      NodeType `json:"type" validate:"required,oneof=FOLDER REQUEST"`
	Name      string   `json:"name" validate:"required,min=1,max=200"`
	SortOrder *int     `json:"sortOrder"`
}

// PatchNodeRequest represents the request body for patching a node
type PatchNodeRequest struct {
	Name      *string          `json:"name" validate:"omitempty,min=1,max=200"`
	ParentID  Nullable[string] `json:"parentId"`
	SortOrder *int             `json:"sortOrder"`
}

// UpdateRequestRequest represents the request body for replacing the
// content of a REQUEST node
type UpdateRequestRequest struct {
	Version        int            `json:"version" validate:"required,min=1"`
	Method         string         `json:"method" validate:"required,min=1,max=10"`
	URLRaw         string         `json:"urlRaw" validate:"max=4000"`
	Headers        []KV           `json:"headers" validate:"max=200,dive"`
	Query          []KV           `json:"query" validate:"max=200,dive"`
	BodyType       BodyType       `json:"bodyType" validate:"required,oneof=none raw json urlencoded formdata graphql"`
	BodyRaw        *string        `json:"bodyRaw" validate:"omitempty,max=1000000"`
	BodyURLEncoded []FormItem     `json:"bodyUrlEncoded" validate:"max=200,dive"`
	BodyFormData   []FormItem     `json:"bodyFormData" validate:"max=200,dive"`
	BodyGraphQL    *GraphQLBody   `json:"bodyGraphql"`
	AuthType       AuthType       `json:"authType" validate:"required,oneof=none bearer basic apiKey oauth2"`
	Auth           map[string]any `json:"auth"`
}

// ToSpec converts the request body into a RequestSpec.
func (r *UpdateRequestRequest) ToSpec() (*RequestSpec, error) {
	raw := ""
	if r.BodyRaw != nil {
		raw = *r.BodyRaw
	}
	body, err := NewBody(r.BodyType, raw, r.BodyURLEncoded, r.BodyFormData, r.BodyGraphQL)
	if err != nil {
		return nil, err
	}
	auth, err := NewAuth(r.AuthType, r.Auth)
	if err != nil {
		return nil, err
	}
	return &RequestSpec{
		Method:  r.Method,
		URLRaw:  r.URLRaw,
		Headers: nonNilKV(r.Headers),
		Query:   nonNilKV(r.Query),
		Body:    body,
		Auth:    auth,
	}, nil
}

// CloneRequestRequest represents the request body for cloning a request
type CloneRequestRequest struct {
	TargetParentID *string `json:"targetParentId" validate:"omitempty,min=1"`
	Name           *string `json:"name" validate:"omitempty,min=1,max=200"`
	IncludeAuth    *bool   `json:"includeAuth"`
}

// CloneTreeRequest represents the request body for cloning a folder
type CloneTreeRequest struct {
	TargetParentID *string   `json:"targetParentId" validate:"required,min=1"`
	Name           *string   `json:"name" validate:"omitempty,min=1,max=200"`
	Mode           CloneMode `json:"mode" validate:"required,oneof=deep shallow"`
}

// ExecuteRequest represents the request body for executing a request node
type ExecuteRequest struct {
	NodeID    string `json:"nodeId" validate:"required,min=1"`
	TimeoutMs *int   `json:"timeoutMs" validate:"omitempty,min=500,max=120000"`
}

// WorkspaceRequest represents the request body for creating or renaming a workspace
type WorkspaceRequest struct {
	Name string `json:"name" validate:"required,min=1,max=120"`
}

// Validate validates the create node request
func (r *CreateNodeRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the patch node request
func (r *PatchNodeRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the update request body
func (r *UpdateRequestRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the clone request body
func (r *CloneRequestRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the clone tree body
func (r *CloneTreeRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the execute body
func (r *ExecuteRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the workspace body
func (r *WorkspaceRequest) Validate() error {
	return validate.Struct(r)
}
