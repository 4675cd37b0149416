package runner

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ammiranda/request_tree/internal/apperr"
	"github.com/ammiranda/request_tree/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource serves request specs keyed by node id.
type fakeSource map[string]*models.RequestSpec

func (s fakeSource) GetRequest(_ context.Context, _, nodeID string) (*models.RequestView, error) {
	spec, ok := s[nodeID]
	if !ok {
		return nil, apperr.NotFound(nil)
	}
	return &models.RequestView{ID: nodeID, Version: 1, Request: spec}, nil
}

// captured is what the test server saw of the last call.
type captured struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   string
}

type testServer struct {
	*httptest.Server
	hits int64
	last atomic.Value
}

// setupServer starts a server that records each call and answers per path.
func setupServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://api.example.test/final", http.StatusFound)
	})
	mux.HandleFunc("/escape", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://169.254.169.254/latest/meta-data", http.StatusFound)
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "hello world")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ts.last.Store(captured{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   string(body),
		})
		w.Header().Set("X-Served-By", "test")
		w.Header().Add("Set-Cookie", "a=1")
		w.Header().Add("Set-Cookie", "b=2")
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"ok":true}`)
	})
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&ts.hits, 1)
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) lastCall(t *testing.T) captured {
	t.Helper()
	c, ok := ts.last.Load().(captured)
	require.True(t, ok, "server was not called")
	return c
}

// client dials the test server whatever host the url names.
func (ts *testServer) client() *http.Client {
	addr := ts.Listener.Addr().String()
	return &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
	}}
}

func newEngine(ts *testServer, source fakeSource, opts ...Option) *Engine {
	opts = append([]Option{WithResolver(testResolver), WithHTTPClient(ts.client())}, opts...)
	return New(source, opts...)
}

func spec(method, rawURL string) *models.RequestSpec {
	s := models.DefaultRequestSpec()
	s.Method = method
	s.URLRaw = rawURL
	return s
}

func TestExecuteSuccess(t *testing.T) {
	ts := setupServer(t)
	req := spec("post", "http://api.example.test/users?existing=1")
	req.Headers = []models.KV{
		{Key: "X-Trace", Value: "abc", Enabled: true},
		{Key: "X-Skip", Value: "no", Enabled: false},
	}
	req.Query = []models.KV{
		{Key: "page", Value: "2", Enabled: true},
		{Key: "off", Value: "x", Enabled: false},
	}
	req.Body = models.JSONBody{Text: `{"name":"x"}`}
	req.Auth = models.BearerAuth{Token: "tok"}
	engine := newEngine(ts, fakeSource{"n1": req})

	res, err := engine.Execute(context.Background(), "ws", "n1", 0)
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, http.StatusCreated, res.Status)
	assert.Equal(t, "Created", res.StatusText)
	assert.Equal(t, `{"ok":true}`, res.Body)
	assert.Equal(t, "test", res.Headers["x-served-by"])
	assert.Equal(t, "a=1, b=2", res.Headers["set-cookie"])
	assert.False(t, res.Redirected)
	assert.Equal(t, "http://api.example.test/users?existing=1&page=2", res.ResolvedURL)

	// Echo of what was sent
	assert.Equal(t, "POST", res.Request.Method)
	assert.Equal(t, "http://api.example.test/users?existing=1&page=2", res.Request.URL)
	assert.Equal(t, "Bearer tok", res.Request.Headers["Authorization"])
	assert.Equal(t, "application/json", res.Request.Headers["Content-Type"])
	require.NotNil(t, res.Request.Body)
	assert.Equal(t, `{"name":"x"}`, *res.Request.Body)

	call := ts.lastCall(t)
	assert.Equal(t, "POST", call.Method)
	assert.Equal(t, "existing=1&page=2", call.Query)
	assert.Equal(t, "abc", call.Header.Get("X-Trace"))
	assert.Empty(t, call.Header.Get("X-Skip"))
	assert.Equal(t, "Bearer tok", call.Header.Get("Authorization"))
	assert.Equal(t, `{"name":"x"}`, call.Body)
}

func TestExecuteAuth(t *testing.T) {
	tests := []struct {
		name   string
		auth   models.Auth
		header string
		query  string
	}{
		{"basic", models.BasicAuth{Username: "u", Password: "p"}, "Basic dTpw", ""},
		{"oauth2", models.OAuth2Auth{Params: map[string]string{"accessToken": "at"}}, "Bearer at", ""},
		{"oauth2 token fallback", models.OAuth2Auth{Params: map[string]string{"token": "t2"}}, "Bearer t2", ""},
		{"api key query", models.APIKeyAuth{Key: "api_key", Value: "k", In: "query"}, "", "api_key=k"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := setupServer(t)
			req := spec("GET", "http://api.example.test/")
			req.Auth = tt.auth
			res, err := newEngine(ts, fakeSource{"n": req}).Execute(context.Background(), "ws", "n", 0)
			require.NoError(t, err)
			require.True(t, res.OK)

			call := ts.lastCall(t)
			assert.Equal(t, tt.header, call.Header.Get("Authorization"))
			assert.Equal(t, tt.query, call.Query)
		})
	}

	t.Run("oauth2 replaces a manual authorization header", func(t *testing.T) {
		ts := setupServer(t)
		req := spec("GET", "http://api.example.test/")
		req.Headers = []models.KV{{Key: "authorization", Value: "Basic stale", Enabled: true}}
		req.Auth = models.OAuth2Auth{Params: map[string]string{"accessToken": "at", "tokenType": "bearer"}}
		res, err := newEngine(ts, fakeSource{"n": req}).Execute(context.Background(), "ws", "n", 0)
		require.NoError(t, err)
		require.True(t, res.OK)

		assert.Equal(t, "Bearer at", ts.lastCall(t).Header.Get("Authorization"))
		assert.Equal(t, "Bearer at", res.Request.Headers["Authorization"])
		assert.NotContains(t, res.Request.Headers, "authorization")
	})

	t.Run("api key header", func(t *testing.T) {
		ts := setupServer(t)
		req := spec("GET", "http://api.example.test/")
		req.Auth = models.APIKeyAuth{Key: "X-Api-Key", Value: "k"}
		_, err := newEngine(ts, fakeSource{"n": req}).Execute(context.Background(), "ws", "n", 0)
		require.NoError(t, err)
		assert.Equal(t, "k", ts.lastCall(t).Header.Get("X-Api-Key"))
	})
}

func TestExecuteBodies(t *testing.T) {
	t.Run("get never sends a body", func(t *testing.T) {
		ts := setupServer(t)
		req := spec("GET", "http://api.example.test/")
		req.Body = models.RawBody{Text: "ignored"}
		res, err := newEngine(ts, fakeSource{"n": req}).Execute(context.Background(), "ws", "n", 0)
		require.NoError(t, err)
		assert.Nil(t, res.Request.Body)
		assert.Empty(t, ts.lastCall(t).Body)
	})

	t.Run("urlencoded", func(t *testing.T) {
		ts := setupServer(t)
		req := spec("POST", "http://api.example.test/")
		req.Body = models.URLEncodedBody{Fields: []models.FormItem{
			{Key: "a b", Value: "1&2", Enabled: true},
			{Key: "skip", Value: "x", Enabled: false},
		}}
		_, err := newEngine(ts, fakeSource{"n": req}).Execute(context.Background(), "ws", "n", 0)
		require.NoError(t, err)
		call := ts.lastCall(t)
		assert.Equal(t, "a+b=1%262", call.Body)
		assert.Equal(t, "application/x-www-form-urlencoded", call.Header.Get("Content-Type"))
	})

	t.Run("explicit content type wins", func(t *testing.T) {
		ts := setupServer(t)
		req := spec("PUT", "http://api.example.test/")
		req.Headers = []models.KV{{Key: "content-type", Value: "application/vnd.api+json", Enabled: true}}
		req.Body = models.JSONBody{Text: "{}"}
		_, err := newEngine(ts, fakeSource{"n": req}).Execute(context.Background(), "ws", "n", 0)
		require.NoError(t, err)
		assert.Equal(t, "application/vnd.api+json", ts.lastCall(t).Header.Get("Content-Type"))
	})

	t.Run("formdata", func(t *testing.T) {
		ts := setupServer(t)
		req := spec("POST", "http://api.example.test/")
		req.Body = models.FormDataBody{Fields: []models.FormItem{{Key: "field", Value: "value", Enabled: true}}}
		res, err := newEngine(ts, fakeSource{"n": req}).Execute(context.Background(), "ws", "n", 0)
		require.NoError(t, err)
		assert.Nil(t, res.Request.Body)
		call := ts.lastCall(t)
		assert.Contains(t, call.Header.Get("Content-Type"), "multipart/form-data; boundary=")
		assert.Contains(t, call.Body, `name="field"`)
		assert.Contains(t, call.Body, "value")
	})

	t.Run("graphql", func(t *testing.T) {
		ts := setupServer(t)
		req := spec("POST", "http://api.example.test/graphql")
		req.Body = models.GraphQLBody{Query: "{ me }", Variables: `{"id": 1}`}
		_, err := newEngine(ts, fakeSource{"n": req}).Execute(context.Background(), "ws", "n", 0)
		require.NoError(t, err)
		var payload map[string]any
		require.NoError(t, json.Unmarshal([]byte(ts.lastCall(t).Body), &payload))
		assert.Equal(t, "{ me }", payload["query"])
		assert.Equal(t, map[string]any{"id": float64(1)}, payload["variables"])
	})
}

func TestExecuteBlockedBeforeNetwork(t *testing.T) {
	ts := setupServer(t)
	engine := newEngine(ts, fakeSource{
		"private":  spec("GET", "http://10.0.0.5/admin"),
		"resolves": spec("GET", "http://internal.example.test/"),
		"meta":     spec("GET", "http://metadata.google.internal/"),
		"proto":    spec("GET", "gopher://api.example.test/"),
		"bad":      spec("GET", "not a url"),
	})

	for node, code := range map[string]string{
		"private":  "blocked_ip",
		"resolves": "blocked_ip",
		"meta":     "blocked_host",
		"proto":    "invalid_protocol",
		"bad":      "invalid_url",
	} {
		_, err := engine.Execute(context.Background(), "ws", node, 0)
		assert.ErrorIs(t, err, apperr.BadRequest(code), node)
	}
	assert.EqualValues(t, 0, atomic.LoadInt64(&ts.hits))

	_, err := engine.Execute(context.Background(), "ws", "missing", 0)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestExecuteTimeout(t *testing.T) {
	ts := setupServer(t)
	engine := newEngine(ts, fakeSource{"n": spec("GET", "http://api.example.test/slow")})

	res, err := engine.Execute(context.Background(), "ws", "n", 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, ErrorTimeout, res.Error)
	assert.Less(t, res.TimeMs, int64(2000))

	data, err := json.Marshal(res)
	require.NoError(t, err)
	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, false, wire["ok"])
	assert.Equal(t, "timeout", wire["error"])
	_, hasStatus := wire["status"]
	assert.False(t, hasStatus)
}

func TestExecuteFetchError(t *testing.T) {
	ts := setupServer(t)
	engine := newEngine(ts, fakeSource{"n": spec("GET", "http://api.example.test/")})
	ts.Close()

	res, err := engine.Execute(context.Background(), "ws", "n", 0)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, ErrorFetch, res.Error)
}

func TestExecuteRedirects(t *testing.T) {
	ts := setupServer(t)
	engine := newEngine(ts, fakeSource{
		"follow": spec("GET", "http://api.example.test/start"),
		"escape": spec("GET", "http://api.example.test/escape"),
	})

	res, err := engine.Execute(context.Background(), "ws", "follow", 0)
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.True(t, res.Redirected)
	assert.Equal(t, "http://api.example.test/final", res.ResolvedURL)
	assert.Equal(t, "/final", ts.lastCall(t).Path)

	// A redirect towards a private address is refused
	res, err = engine.Execute(context.Background(), "ws", "escape", 0)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, ErrorFetch, res.Error)
}

func TestExecuteTruncatesResponse(t *testing.T) {
	ts := setupServer(t)
	engine := newEngine(ts, fakeSource{"n": spec("GET", "http://api.example.test/big")}, WithMaxResponseBytes(4))

	res, err := engine.Execute(context.Background(), "ws", "n", 0)
	require.NoError(t, err)
	assert.Equal(t, "hell", res.Body)
	assert.True(t, res.Truncated)
}

func TestClampTimeout(t *testing.T) {
	engine := New(fakeSource{}, WithTimeouts(5*time.Second, 30*time.Second))

	assert.Equal(t, 5*time.Second, engine.ClampTimeout(0))
	assert.Equal(t, 5*time.Second, engine.ClampTimeout(-time.Second))
	assert.Equal(t, 10*time.Second, engine.ClampTimeout(10*time.Second))
	assert.Equal(t, 30*time.Second, engine.ClampTimeout(time.Minute))

	engine = New(fakeSource{})
	assert.Equal(t, DefaultTimeout, engine.ClampTimeout(0))
	assert.Equal(t, DefaultMaxTimeout, engine.ClampTimeout(time.Hour))
}

func TestGuardedTransportRefusesPrivateDial(t *testing.T) {
	ts := setupServer(t)
	client := &http.Client{Transport: guardedTransport()}

	_, err := client.Get(ts.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, errBlockedDial)
	assert.EqualValues(t, 0, atomic.LoadInt64(&ts.hits))

	for _, address := range []string{"[::1%lo]:80", "[fe80::1%eth0]:443", "[fd00::1%eth0]:8080", "[::ffff:127.0.0.1]:80"} {
		assert.ErrorIs(t, refusePrivateDial("tcp", address, nil), errBlockedDial, address)
	}
	assert.NoError(t, refusePrivateDial("tcp", "93.184.216.34:80", nil))
}
