package models

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"
)

// KV is one entry of a header, query or url-encoded list.
type KV struct {
	Key     string `json:"key" validate:"max=200"`
	Value   string `json:"value" validate:"max=10000"`
	Enabled bool   `json:"enabled"`
}

// UnmarshalJSON treats a missing "enabled" flag as enabled.
func (kv *KV) UnmarshalJSON(data []byte) error {
	var aux struct {
		Key     string `json:"key"`
		Value   string `json:"value"`
		Enabled *bool  `json:"enabled"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	kv.Key = aux.Key
	kv.Value = aux.Value
	kv.Enabled = aux.Enabled == nil || *aux.Enabled
	return nil
}

// FormItem is a url-encoded or multipart form field. Type is an optional
// tag ("text", "file") carried for form-data.
type FormItem struct {
	Key     string `json:"key" validate:"max=200"`
	Value   string `json:"value" validate:"max=10000"`
	Enabled bool   `json:"enabled"`
	Type    string `json:"type,omitempty" validate:"max=50"`
}

// UnmarshalJSON treats a missing "enabled" flag as enabled.
func (f *FormItem) UnmarshalJSON(data []byte) error {
	var aux struct {
		Key     string `json:"key"`
		Value   string `json:"value"`
		Enabled *bool  `json:"enabled"`
		Type    string `json:"type"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	f.Key = aux.Key
	f.Value = aux.Value
	f.Type = aux.Type
	f.Enabled = aux.Enabled == nil || *aux.Enabled
	return nil
}

// BodyType tags the active body payload of a request.
type BodyType string

const (
	BodyNone       BodyType = "none"
	BodyRaw        BodyType = "raw"
	BodyJSON       BodyType = "json"
	BodyURLEncoded BodyType = "urlencoded"
	BodyFormData   BodyType = "formdata"
	BodyGraphQL    BodyType = "graphql"
)

// Body is the payload of a request. Exactly one concrete type is stored, so
// a request can never carry stale data for another body type.
type Body interface {
	BodyType() BodyType
}

type NoBody struct{}

type RawBody struct {
	Text string
}

type JSONBody struct {
	Text string
}

type URLEncodedBody struct {
	Fields []FormItem
}

type FormDataBody struct {
	Fields []FormItem
}

// GraphQLBody keeps variables as an opaque string; consumers parse it.
type GraphQLBody struct {
	Query     string `json:"query" validate:"max=1000000"`
	Variables string `json:"variables" validate:"max=1000000"`
}

func (NoBody) BodyType() BodyType         { return BodyNone }
func (RawBody) BodyType() BodyType        { return BodyRaw }
func (JSONBody) BodyType() BodyType       { return BodyJSON }
func (URLEncodedBody) BodyType() BodyType { return BodyURLEncoded }
func (FormDataBody) BodyType() BodyType   { return BodyFormData }
func (GraphQLBody) BodyType() BodyType    { return BodyGraphQL }

// AuthType tags the active authentication scheme of a request.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBearer AuthType = "bearer"
	AuthBasic  AuthType = "basic"
	AuthAPIKey AuthType = "apiKey"
	AuthOAuth2 AuthType = "oauth2"
)

// Auth is the authentication scheme of a request.
type Auth interface {
	AuthType() AuthType
}

type NoAuth struct{}

type BearerAuth struct {
	Token string `mapstructure:"token"`
}

type BasicAuth struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// APIKeyAuth sends Key=Value either as a header or, when In is "query", as
// a query parameter.
type APIKeyAuth struct {
	Key   string `mapstructure:"key"`
	Value string `mapstructure:"value"`
	In    string `mapstructure:"in"`
}

// OAuth2Auth carries arbitrary provider fields; accessToken or token is
// used at execution time.
type OAuth2Auth struct {
	Params map[string]string
}

func (NoAuth) AuthType() AuthType     { return AuthNone }
func (BearerAuth) AuthType() AuthType { return AuthBearer }
func (BasicAuth) AuthType() AuthType  { return AuthBasic }
func (APIKeyAuth) AuthType() AuthType { return AuthAPIKey }
func (OAuth2Auth) AuthType() AuthType { return AuthOAuth2 }

// AccessToken returns accessToken, falling back to token.
func (a OAuth2Auth) AccessToken() string {
	if t := a.Params["accessToken"]; t != "" {
		return t
	}
	return a.Params["token"]
}

// RequestSpec is the HTTP request definition stored in a REQUEST node.
type RequestSpec struct {
	Method  string
	URLRaw  string
	Headers []KV
	Query   []KV
	Body    Body
	Auth    Auth
}

// DefaultRequestSpec is the content of a freshly created REQUEST node.
func DefaultRequestSpec() *RequestSpec {
	return &RequestSpec{
		Method:  "GET",
		Headers: []KV{},
		Query:   []KV{},
		Body:    NoBody{},
		Auth:    NoAuth{},
	}
}

// Clone returns a deep copy. When includeAuth is false the copy has no auth.
func (r *RequestSpec) Clone(includeAuth bool) *RequestSpec {
	if r == nil {
		return nil
	}
	out := &RequestSpec{
		Method:  r.Method,
		URLRaw:  r.URLRaw,
		Headers: append([]KV{}, r.Headers...),
		Query:   append([]KV{}, r.Query...),
		Body:    NoBody{},
		Auth:    NoAuth{},
	}
	switch b := r.Body.(type) {
	case URLEncodedBody:
		out.Body = URLEncodedBody{Fields: append([]FormItem{}, b.Fields...)}
	case FormDataBody:
		out.Body = FormDataBody{Fields: append([]FormItem{}, b.Fields...)}
	case nil:
	default:
		out.Body = b
	}
	if includeAuth {
		switch a := r.Auth.(type) {
		case OAuth2Auth:
			params := make(map[string]string, len(a.Params))
			for k, v := range a.Params {
				params[k] = v
			}
			out.Auth = OAuth2Auth{Params: params}
		case nil:
		default:
			out.Auth = a
		}
	}
	return out
}

// requestSpecWire is the flat document shape of a RequestSpec.
type requestSpecWire struct {
	Method         string         `json:"method"`
	URLRaw         string         `json:"urlRaw"`
	Headers        []KV           `json:"headers"`
	Query          []KV           `json:"query"`
	BodyType       BodyType       `json:"bodyType"`
	BodyRaw        *string        `json:"bodyRaw"`
	BodyURLEncoded []FormItem     `json:"bodyUrlEncoded"`
	BodyFormData   []FormItem     `json:"bodyFormData"`
	BodyGraphQL    *GraphQLBody   `json:"bodyGraphql"`
	AuthType       AuthType       `json:"authType"`
	Auth           map[string]any `json:"auth"`
}

// MarshalJSON writes the flat document shape. Payload fields that do not
// belong to the active body type are written empty.
func (r RequestSpec) MarshalJSON() ([]byte, error) {
	w := requestSpecWire{
		Method:         r.Method,
		URLRaw:         r.URLRaw,
		Headers:        nonNilKV(r.Headers),
		Query:          nonNilKV(r.Query),
		BodyURLEncoded: []FormItem{},
		BodyFormData:   []FormItem{},
		BodyType:       BodyNone,
		AuthType:       AuthNone,
		Auth:           map[string]any{},
	}
	if r.Body != nil {
		w.BodyType = r.Body.BodyType()
	}
	switch b := r.Body.(type) {
	case RawBody:
		w.BodyRaw = &b.Text
	case JSONBody:
		w.BodyRaw = &b.Text
	case URLEncodedBody:
		w.BodyURLEncoded = nonNilForm(b.Fields)
	case FormDataBody:
		w.BodyFormData = nonNilForm(b.Fields)
	case GraphQLBody:
		w.BodyGraphQL = &b
	}
	if r.Auth != nil {
		w.AuthType = r.Auth.AuthType()
		w.Auth = AuthToMap(r.Auth)
	}
	return json.Marshal(w)
}

// UnmarshalJSON reads the flat document shape, keeping only the payload
// that matches bodyType.
func (r *RequestSpec) UnmarshalJSON(data []byte) error {
	var w requestSpecWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	bodyRaw := ""
	if w.BodyRaw != nil {
		bodyRaw = *w.BodyRaw
	}
	var gql *GraphQLBody
	if w.BodyGraphQL != nil {
		gql = w.BodyGraphQL
	}
	body, err := NewBody(w.BodyType, bodyRaw, w.BodyURLEncoded, w.BodyFormData, gql)
	if err != nil {
		return err
	}
	auth, err := NewAuth(w.AuthType, w.Auth)
	if err != nil {
		return err
	}
	r.Method = w.Method
	r.URLRaw = w.URLRaw
	r.Headers = nonNilKV(w.Headers)
	r.Query = nonNilKV(w.Query)
	r.Body = body
	r.Auth = auth
	return nil
}

// NewBody builds the body union for bodyType from the candidate payloads.
// Payloads for other body types are dropped.
func NewBody(bodyType BodyType, raw string, urlEncoded, formData []FormItem, gql *GraphQLBody) (Body, error) {
	switch bodyType {
	case BodyNone, "":
		return NoBody{}, nil
	case BodyRaw:
		return RawBody{Text: raw}, nil
	case BodyJSON:
		return JSONBody{Text: raw}, nil
	case BodyURLEncoded:
		return URLEncodedBody{Fields: nonNilForm(urlEncoded)}, nil
	case BodyFormData:
		return FormDataBody{Fields: nonNilForm(formData)}, nil
	case BodyGraphQL:
		if gql == nil {
			return GraphQLBody{}, nil
		}
		return *gql, nil
	default:
		return nil, fmt.Errorf("%w: unknown body type %q", ErrInvalidBodyType, bodyType)
	}
}

// NewAuth decodes an open key/value map into the auth union for authType.
func NewAuth(authType AuthType, fields map[string]any) (Auth, error) {
	switch authType {
	case AuthNone, "":
		return NoAuth{}, nil
	case AuthBearer:
		var a BearerAuth
		if err := decodeAuth(fields, &a); err != nil {
			return nil, err
		}
		return a, nil
	case AuthBasic:
		var a BasicAuth
		if err := decodeAuth(fields, &a); err != nil {
			return nil, err
		}
		return a, nil
	case AuthAPIKey:
		var a APIKeyAuth
		if err := decodeAuth(fields, &a); err != nil {
			return nil, err
		}
		return a, nil
	case AuthOAuth2:
		params := map[string]string{}
		if err := decodeAuth(fields, &params); err != nil {
			return nil, err
		}
		return OAuth2Auth{Params: params}, nil
	default:
		return nil, fmt.Errorf("%w: unknown auth type %q", ErrInvalidAuthType, authType)
	}
}

func decodeAuth(fields map[string]any, out any) error {
	if len(fields) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(fields); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAuthType, err)
	}
	return nil
}

// AuthToMap flattens an auth union back into its open key/value shape.
func AuthToMap(a Auth) map[string]any {
	switch v := a.(type) {
	case BearerAuth:
		return map[string]any{"token": v.Token}
	case BasicAuth:
		return map[string]any{"username": v.Username, "password": v.Password}
	case APIKeyAuth:
		return map[string]any{"key": v.Key, "value": v.Value, "in": v.In}
	case OAuth2Auth:
		out := make(map[string]any, len(v.Params))
		for k, val := range v.Params {
			out[k] = val
		}
		return out
	default:
		return map[string]any{}
	}
}

// SortedParams returns the oauth2 parameter keys in a stable order.
func (a OAuth2Auth) SortedParams() []string {
	keys := make([]string, 0, len(a.Params))
	for k := range a.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func nonNilKV(in []KV) []KV {
	if in == nil {
		return []KV{}
	}
	return in
}

func nonNilForm(in []FormItem) []FormItem {
	if in == nil {
		return []FormItem{}
	}
	return in
}
