package runner

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/url"
	"strings"

	"github.com/ammiranda/request_tree/models"
)

// outbound is the prepared payload of a call. Preview is nil for bodies
// that cannot be shown as text.
type outbound struct {
	body    []byte
	preview *string
}

// headerSet keeps the outbound headers with their original spelling;
// lookups ignore case.
type headerSet struct {
	keys   []string
	values map[string]string
}

func newHeaderSet() *headerSet {
	return &headerSet{values: make(map[string]string)}
}

// Set overwrites an existing key of any case.
func (h *headerSet) Set(key, value string) {
	for _, k := range h.keys {
		if strings.EqualFold(k, key) {
			h.values[k] = value
			return
		}
	}
	h.keys = append(h.keys, key)
	h.values[key] = value
}

func (h *headerSet) Has(key string) bool {
	for _, k := range h.keys {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

// setDefault sets key only when no header of that name exists.
func (h *headerSet) setDefault(key, value string) {
	if !h.Has(key) {
		h.Set(key, value)
	}
}

// Map returns a copy for the request echo.
func (h *headerSet) Map() map[string]string {
	out := make(map[string]string, len(h.keys))
	for _, k := range h.keys {
		out[k] = h.values[k]
	}
	return out
}

// buildBody encodes the request body and sets a default Content-Type.
// GET and HEAD never carry a body.
func buildBody(method string, b models.Body, headers *headerSet) (outbound, error) {
	if method == "GET" || method == "HEAD" {
		return outbound{}, nil
	}
	switch v := b.(type) {
	case models.RawBody:
		return textBody(v.Text), nil
	case models.JSONBody:
		headers.setDefault("Content-Type", "application/json")
		return textBody(v.Text), nil
	case models.URLEncodedBody:
		headers.setDefault("Content-Type", "application/x-www-form-urlencoded")
		return textBody(encodeForm(v.Fields)), nil
	case models.FormDataBody:
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		for _, f := range v.Fields {
			if !f.Enabled || f.Key == "" {
				continue
			}
			if err := w.WriteField(f.Key, f.Value); err != nil {
				return outbound{}, err
			}
		}
		if err := w.Close(); err != nil {
			return outbound{}, err
		}
		headers.setDefault("Content-Type", w.FormDataContentType())
		return outbound{body: buf.Bytes()}, nil
	case models.GraphQLBody:
		payload := map[string]any{"query": v.Query}
		if vars := strings.TrimSpace(v.Variables); vars != "" {
			if json.Valid([]byte(vars)) {
				payload["variables"] = json.RawMessage(vars)
			} else {
				payload["variables"] = v.Variables
			}
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return outbound{}, err
		}
		headers.setDefault("Content-Type", "application/json")
		return textBody(string(data)), nil
	default:
		return outbound{}, nil
	}
}

func textBody(s string) outbound {
	return outbound{body: []byte(s), preview: &s}
}

// encodeForm encodes enabled fields in their given order.
func encodeForm(fields []models.FormItem) string {
	pairs := make([]string, 0, len(fields))
	for _, f := range fields {
		if !f.Enabled || f.Key == "" {
			continue
		}
		pairs = append(pairs, url.QueryEscape(f.Key)+"="+url.QueryEscape(f.Value))
	}
	return strings.Join(pairs, "&")
}

// appendQuery adds key=value to the raw query, keeping existing parameters
// in place.
func appendQuery(u *url.URL, key, value string) {
	pair := url.QueryEscape(key) + "=" + url.QueryEscape(value)
	if u.RawQuery == "" {
		u.RawQuery = pair
		return
	}
	u.RawQuery += "&" + pair
}
