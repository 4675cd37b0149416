package converter

import "encoding/json"

// SchemaURL identifies the collection format written by Export.
const SchemaURL = "https://schema.getpostman.com/json/collection/v2.1.0/collection.json"

// Collection is an exported collection document.
type Collection struct {
	Info Info   `json:"info"`
	Item []Item `json:"item"`
}

// Info names the collection.
type Info struct {
	Name   string `json:"name"`
	Schema string `json:"schema"`
}

// Item is a folder (Request nil, Item holds the children) or a request.
type Item struct {
	Name    string
	Item    []Item
	Request *Request
}

// MarshalJSON writes folders as {name, item} with item always present and
// requests as {name, request, response}.
func (i Item) MarshalJSON() ([]byte, error) {
	if i.Request == nil {
		children := i.Item
		if children == nil {
			children = []Item{}
		}
		return json.Marshal(struct {
			Name string `json:"name"`
			Item []Item `json:"item"`
		}{i.Name, children})
	}
	return json.Marshal(struct {
		Name     string   `json:"name"`
		Request  *Request `json:"request"`
		Response []any    `json:"response"`
	}{i.Name, i.Request, []any{}})
}

// Request is the exported request block.
type Request struct {
	Method string `json:"method"`
	Header []KV   `json:"header"`
	URL    URL    `json:"url"`
	Auth   *Auth  `json:"auth,omitempty"`
	Body   *Body  `json:"body,omitempty"`
}

// KV is an exported header, query or form entry. Disabled is only written
// for disabled entries.
type KV struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Disabled bool   `json:"disabled,omitempty"`
	Type     string `json:"type,omitempty"`
}

// URL is the exported url block.
type URL struct {
	Raw   string `json:"raw"`
	Query []KV   `json:"query,omitempty"`
}

// AuthParam is one entry of an auth parameter list.
type AuthParam struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Auth is the exported auth block; only the list matching Type is set.
type Auth struct {
	Type   string      `json:"type"`
	Bearer []AuthParam `json:"bearer,omitempty"`
	Basic  []AuthParam `json:"basic,omitempty"`
	APIKey []AuthParam `json:"apikey,omitempty"`
	OAuth2 []AuthParam `json:"oauth2,omitempty"`
}

// Body is the exported body block.
type Body struct {
	Mode       string       `json:"mode"`
	Raw        *string      `json:"raw,omitempty"`
	Options    *BodyOptions `json:"options,omitempty"`
	URLEncoded []KV         `json:"urlencoded,omitempty"`
	FormData   []KV         `json:"formdata,omitempty"`
	GraphQL    *GraphQL     `json:"graphql,omitempty"`
}

// BodyOptions carries the raw language hint.
type BodyOptions struct {
	Raw RawOptions `json:"raw"`
}

// RawOptions names the language of a raw body.
type RawOptions struct {
	Language string `json:"language"`
}

// GraphQL is the exported graphql body.
type GraphQL struct {
	Query     string `json:"query"`
	Variables string `json:"variables"`
}
