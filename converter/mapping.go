package converter

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/ammiranda/request_tree/models"
)

// toRequestSpec normalizes a loosely typed request entry. A bare string is
// treated as the url of a GET request.
func toRequestSpec(raw any) (*models.RequestSpec, error) {
	spec := models.DefaultRequestSpec()
	req, ok := raw.(map[string]any)
	if !ok {
		spec.URLRaw = stringOf(raw)
		return spec, nil
	}

	if m := stringOf(req["method"]); m != "" {
		spec.Method = strings.ToUpper(m)
	}
	spec.URLRaw = urlRaw(req["url"])
	if u, ok := req["url"].(map[string]any); ok {
		spec.Query = kvList(u["query"])
	}
	spec.Headers = kvList(req["header"])
	spec.Auth = authFrom(req["auth"])

	body, err := bodyFrom(req["body"])
	if err != nil {
		return nil, err
	}
	spec.Body = body
	return spec, nil
}

// urlRaw prefers the raw form and otherwise rebuilds the url from its parts.
func urlRaw(v any) string {
	switch u := v.(type) {
	case string:
		return u
	case map[string]any:
		if raw, ok := u["raw"].(string); ok {
			return raw
		}
		raw := joinParts(u["host"], ".")
		if protocol := stringOf(u["protocol"]); protocol != "" {
			raw = protocol + "://" + raw
		}
		if path := joinParts(u["path"], "/"); path != "" {
			raw += "/" + path
		}
		return raw
	default:
		return ""
	}
}

func joinParts(v any, sep string) string {
	switch p := v.(type) {
	case string:
		return strings.Trim(p, sep)
	case []any:
		parts := make([]string, 0, len(p))
		for _, s := range p {
			parts = append(parts, stringOf(s))
		}
		return strings.Join(parts, sep)
	default:
		return ""
	}
}

// kvList keeps entries with a string key; a truthy disabled flag disables.
func kvList(v any) []models.KV {
	list, _ := v.([]any)
	out := make([]models.KV, 0, len(list))
	for _, raw := range list {
		e, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		key, ok := e["key"].(string)
		if !ok {
			continue
		}
		out = append(out, models.KV{Key: key, Value: stringOf(e["value"]), Enabled: !truthy(e["disabled"])})
	}
	return out
}

// formList is kvList for body fields; file fields fall back to their src.
func formList(v any) []models.FormItem {
	list, _ := v.([]any)
	out := make([]models.FormItem, 0, len(list))
	for _, raw := range list {
		e, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		key, ok := e["key"].(string)
		if !ok {
			continue
		}
		value := e["value"]
		if value == nil {
			value = e["src"]
		}
		out = append(out, models.FormItem{
			Key:     key,
			Value:   stringOf(value),
			Enabled: !truthy(e["disabled"]),
			Type:    stringOf(e["type"]),
		})
	}
	return out
}

// authParams flattens [{key, value}] lists; plain objects are accepted as is.
func authParams(v any) map[string]any {
	out := map[string]any{}
	switch p := v.(type) {
	case []any:
		for _, raw := range p {
			e, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if key, ok := e["key"].(string); ok {
				out[key] = stringOf(e["value"])
			}
		}
	case map[string]any:
		for k, val := range p {
			out[k] = stringOf(val)
		}
	}
	return out
}

func authFrom(v any) models.Auth {
	a, ok := v.(map[string]any)
	if !ok {
		return models.NoAuth{}
	}
	switch strings.ToLower(stringOf(a["type"])) {
	case "bearer":
		p := authParams(a["bearer"])
		return models.BearerAuth{Token: stringOf(p["token"])}
	case "basic":
		p := authParams(a["basic"])
		return models.BasicAuth{Username: stringOf(p["username"]), Password: stringOf(p["password"])}
	case "apikey":
		p := authParams(a["apikey"])
		return models.APIKeyAuth{Key: stringOf(p["key"]), Value: stringOf(p["value"]), In: stringOf(p["in"])}
	case "oauth2":
		p := authParams(a["oauth2"])
		params := make(map[string]string, len(p))
		for k, val := range p {
			params[k] = stringOf(val)
		}
		return models.OAuth2Auth{Params: params}
	default:
		return models.NoAuth{}
	}
}

func bodyFrom(v any) (models.Body, error) {
	b, ok := v.(map[string]any)
	if !ok {
		return models.NoBody{}, nil
	}
	switch stringOf(b["mode"]) {
	case "raw":
		text := stringOf(b["raw"])
		if rawLanguage(b["options"]) == "json" {
			return models.JSONBody{Text: text}, nil
		}
		return models.RawBody{Text: text}, nil
	case "urlencoded":
		return models.URLEncodedBody{Fields: formList(b["urlencoded"])}, nil
	case "formdata":
		return models.FormDataBody{Fields: formList(b["formdata"])}, nil
	case "graphql":
		g, _ := b["graphql"].(map[string]any)
		return models.GraphQLBody{Query: stringOf(g["query"]), Variables: stringOf(g["variables"])}, nil
	default:
		return models.NoBody{}, nil
	}
}

func rawLanguage(v any) string {
	opts, _ := v.(map[string]any)
	raw, _ := opts["raw"].(map[string]any)
	return strings.ToLower(stringOf(raw["language"]))
}

// fromRequestSpec is the inverse of toRequestSpec.
func fromRequestSpec(spec *models.RequestSpec) *Request {
	if spec == nil {
		spec = models.DefaultRequestSpec()
	}
	req := &Request{
		Method: spec.Method,
		Header: exportKV(spec.Headers),
		URL:    URL{Raw: spec.URLRaw, Query: exportKV(spec.Query)},
		Auth:   exportAuth(spec.Auth),
		Body:   exportBody(spec.Body),
	}
	if len(req.URL.Query) == 0 {
		req.URL.Query = nil
	}
	return req
}

func exportKV(in []models.KV) []KV {
	out := make([]KV, 0, len(in))
	for _, kv := range in {
		out = append(out, KV{Key: kv.Key, Value: kv.Value, Disabled: !kv.Enabled})
	}
	return out
}

func exportForm(in []models.FormItem) []KV {
	out := make([]KV, 0, len(in))
	for _, f := range in {
		out = append(out, KV{Key: f.Key, Value: f.Value, Disabled: !f.Enabled, Type: f.Type})
	}
	return out
}

func exportAuth(a models.Auth) *Auth {
	switch v := a.(type) {
	case models.BearerAuth:
		return &Auth{Type: "bearer", Bearer: []AuthParam{{Key: "token", Value: v.Token}}}
	case models.BasicAuth:
		return &Auth{Type: "basic", Basic: []AuthParam{
			{Key: "username", Value: v.Username},
			{Key: "password", Value: v.Password},
		}}
	case models.APIKeyAuth:
		return &Auth{Type: "apikey", APIKey: []AuthParam{
			{Key: "key", Value: v.Key},
			{Key: "value", Value: v.Value},
			{Key: "in", Value: v.In},
		}}
	case models.OAuth2Auth:
		params := make([]AuthParam, 0, len(v.Params))
		for _, k := range v.SortedParams() {
			params = append(params, AuthParam{Key: k, Value: v.Params[k]})
		}
		return &Auth{Type: "oauth2", OAuth2: params}
	default:
		return nil
	}
}

func exportBody(b models.Body) *Body {
	switch v := b.(type) {
	case models.RawBody:
		text := v.Text
		return &Body{Mode: "raw", Raw: &text}
	case models.JSONBody:
		text := v.Text
		return &Body{Mode: "raw", Raw: &text, Options: &BodyOptions{Raw: RawOptions{Language: "json"}}}
	case models.URLEncodedBody:
		return &Body{Mode: "urlencoded", URLEncoded: exportForm(v.Fields)}
	case models.FormDataBody:
		return &Body{Mode: "formdata", FormData: exportForm(v.Fields)}
	case models.GraphQLBody:
		return &Body{Mode: "graphql", GraphQL: &GraphQL{Query: v.Query, Variables: v.Variables}}
	default:
		return nil
	}
}

// stringOf renders a decoded JSON value as text. Objects and arrays are
// re-encoded so graphql variables survive as an opaque string.
func stringOf(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		b, err := json.Marshal(s)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// truthy follows the loose truthiness of the interchange format's flags.
func truthy(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case string:
		return b != "" && b != "false"
	case float64:
		return b != 0
	default:
		return true
	}
}
