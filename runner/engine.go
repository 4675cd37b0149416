// Package runner executes stored request definitions as outbound HTTP calls
// behind a safety gate that keeps them away from internal networks.
package runner

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ammiranda/request_tree/internal/apperr"
	"github.com/ammiranda/request_tree/internal/logging"
	"github.com/ammiranda/request_tree/metrics"
	"github.com/ammiranda/request_tree/models"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout          = 20 * time.Second
	DefaultMaxTimeout       = 120 * time.Second
	DefaultMaxResponseBytes = 10 << 20
	maxRedirects            = 10
)

// Failure classifications of an execution.
const (
	ErrorTimeout = "timeout"
	ErrorFetch   = "fetch_error"
)

var errBlockedDial = errors.New("connection to a private address blocked")

// RequestSource loads the request content of a REQUEST node.
type RequestSource interface {
	GetRequest(ctx context.Context, workspaceID, nodeID string) (*models.RequestView, error)
}

// RequestEcho describes the outbound request actually sent.
type RequestEcho struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    *string           `json:"body"`
}

// Result is the outcome of an execution. Failures (OK false) only carry
// TimeMs, Error and Request.
type Result struct {
	OK          bool
	Status      int
	StatusText  string
	TimeMs      int64
	Headers     map[string]string
	Body        string
	Truncated   bool
	Request     RequestEcho
	ResolvedURL string
	Redirected  bool
	Error       string
}

func (r Result) MarshalJSON() ([]byte, error) {
	if !r.OK {
		return json.Marshal(struct {
			OK      bool        `json:"ok"`
			TimeMs  int64       `json:"timeMs"`
			Error   string      `json:"error"`
			Request RequestEcho `json:"request"`
		}{false, r.TimeMs, r.Error, r.Request})
	}
	return json.Marshal(struct {
		OK          bool              `json:"ok"`
		Status      int               `json:"status"`
		StatusText  string            `json:"statusText"`
		TimeMs      int64             `json:"timeMs"`
		Headers     map[string]string `json:"headers"`
		Body        string            `json:"body"`
		Truncated   bool              `json:"truncated,omitempty"`
		Request     RequestEcho       `json:"request"`
		ResolvedURL string            `json:"resolvedUrl"`
		Redirected  bool              `json:"redirected"`
	}{true, r.Status, r.StatusText, r.TimeMs, r.Headers, r.Body, r.Truncated, r.Request, r.ResolvedURL, r.Redirected})
}

// Engine performs executions. It is safe for concurrent use.
type Engine struct {
	source           RequestSource
	resolver         Resolver
	allowedHosts     []string
	gate             *Gate
	client           *http.Client
	limiter          *rate.Limiter
	defaultTimeout   time.Duration
	maxTimeout       time.Duration
	maxResponseBytes int64
	logger           *slog.Logger
	metrics          *metrics.Metrics
}

type Option func(*Engine)

// WithResolver replaces the system DNS resolver used by the gate.
func WithResolver(r Resolver) Option {
	return func(e *Engine) {
		e.resolver = r
	}
}

// WithAllowedHosts restricts execution to the given hosts and their
// subdomains.
func WithAllowedHosts(hosts []string) Option {
	return func(e *Engine) {
		e.allowedHosts = hosts
	}
}

// WithHTTPClient replaces the outbound client. The redirect policy is
// always installed by the engine.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) {
		e.client = c
	}
}

// WithTimeouts sets the default timeout and the largest accepted one.
func WithTimeouts(def, limit time.Duration) Option {
	return func(e *Engine) {
		if def > 0 {
			e.defaultTimeout = def
		}
		if limit > 0 {
			e.maxTimeout = limit
		}
	}
}

// WithMaxResponseBytes caps the response body read into a result.
func WithMaxResponseBytes(n int64) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxResponseBytes = n
		}
	}
}

// WithOutboundRate limits outbound calls process-wide. perSecond <= 0
// disables the limit.
func WithOutboundRate(perSecond float64, burst int) Option {
	return func(e *Engine) {
		if perSecond <= 0 {
			e.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics records execution outcomes and blocked targets.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New creates an engine reading requests from source.
func New(source RequestSource, opts ...Option) *Engine {
	e := &Engine{
		source:           source,
		limiter:          rate.NewLimiter(rate.Inf, 0),
		defaultTimeout:   DefaultTimeout,
		maxTimeout:       DefaultMaxTimeout,
		maxResponseBytes: DefaultMaxResponseBytes,
		logger:           logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.maxTimeout < e.defaultTimeout {
		e.maxTimeout = e.defaultTimeout
	}
	e.gate = NewGate(e.resolver, e.allowedHosts)

	if e.client == nil {
		e.client = &http.Client{Transport: guardedTransport()}
	} else {
		c := *e.client
		e.client = &c
	}
	e.client.CheckRedirect = e.checkRedirect
	return e
}

// Gate returns the safety gate used before every call and redirect.
func (e *Engine) Gate() *Gate {
	return e.gate
}

// guardedTransport refuses connections to private addresses at dial time,
// so a host that resolves differently after the gate ran is still blocked.
func guardedTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   refusePrivateDial,
	}
	return &http.Transport{
		Proxy:                 nil,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

// refusePrivateDial is the dialer control hook of guardedTransport.
func refusePrivateDial(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	addr, err := netip.ParseAddr(host)
	if err != nil || IsPrivateAddr(addr) {
		return errBlockedDial
	}
	return nil
}

func (e *Engine) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if err := e.gate.Check(req.Context(), req.URL); err != nil {
		e.metrics.Blocked("redirect")
		return err
	}
	return nil
}

// ClampTimeout returns the default for a non-positive timeout and caps
// larger values at the configured maximum.
func (e *Engine) ClampTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return e.defaultTimeout
	}
	if timeout > e.maxTimeout {
		return e.maxTimeout
	}
	return timeout
}

// Execute loads a REQUEST node and performs its call. Policy rejections
// (bad url, blocked target) are returned as errors before any network
// access; transport failures and timeouts are returned as a Result with
// OK false.
func (e *Engine) Execute(ctx context.Context, workspaceID, nodeID string, timeout time.Duration) (*Result, error) {
	view, err := e.source.GetRequest(ctx, workspaceID, nodeID)
	if err != nil {
		return nil, err
	}
	spec := view.Request
	if spec == nil {
		return nil, apperr.NotFound(fmt.Errorf("node %s has no request", nodeID))
	}

	method := strings.ToUpper(strings.TrimSpace(spec.Method))
	if method == "" {
		method = http.MethodGet
	}

	headers := newHeaderSet()
	for _, h := range spec.Headers {
		if h.Enabled && h.Key != "" {
			headers.Set(h.Key, h.Value)
		}
	}

	target, err := url.Parse(strings.TrimSpace(spec.URLRaw))
	if err != nil || target.Scheme == "" {
		return nil, apperr.BadRequest("invalid_url")
	}
	for _, q := range spec.Query {
		if q.Enabled && q.Key != "" {
			appendQuery(target, q.Key, q.Value)
		}
	}
	token := injectAuth(spec.Auth, headers, target)

	if err := e.gate.Check(ctx, target); err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			e.metrics.Blocked(appErr.Code)
		}
		e.logger.Warn("execution blocked",
			slog.String("workspace", workspaceID),
			slog.String("node", nodeID),
			slog.String("host", target.Hostname()),
			slog.Any("error", err))
		return nil, err
	}

	payload, err := buildBody(method, spec.Body, headers)
	if err != nil {
		return nil, apperr.BadRequest("invalid_body")
	}

	echoHeaders := headers.Map()
	if token != nil {
		for k := range echoHeaders {
			if strings.EqualFold(k, "Authorization") {
				delete(echoHeaders, k)
			}
		}
		echoHeaders["Authorization"] = token.Type() + " " + token.AccessToken
	}
	echo := RequestEcho{
		Method:  method,
		URL:     target.String(),
		Headers: echoHeaders,
		Body:    payload.preview,
	}
	return e.do(ctx, workspaceID, nodeID, e.ClampTimeout(timeout), target, headers, token, payload, echo), nil
}

func (e *Engine) do(ctx context.Context, workspaceID, nodeID string, timeout time.Duration, target *url.URL, headers *headerSet, token *oauth2.Token, payload outbound, echo RequestEcho) *Result {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	fail := func(err error) *Result {
		elapsed := time.Since(start)
		kind := ErrorFetch
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			kind = ErrorTimeout
		}
		if errors.Is(err, errBlockedDial) {
			e.metrics.Blocked("dial")
		}
		e.metrics.ObserveExecution(kind, elapsed)
		e.logger.Info("execution failed",
			slog.String("workspace", workspaceID),
			slog.String("node", nodeID),
			slog.String("kind", kind),
			slog.Any("error", err))
		return &Result{OK: false, TimeMs: elapsed.Milliseconds(), Error: kind, Request: echo}
	}

	var body io.Reader
	if payload.body != nil {
		body = bytes.NewReader(payload.body)
	}
	req, err := http.NewRequestWithContext(callCtx, echo.Method, target.String(), body)
	if err != nil {
		return fail(err)
	}
	for k, v := range headers.Map() {
		req.Header.Set(k, v)
	}
	if token != nil {
		token.SetAuthHeader(req)
	}

	if err := e.limiter.Wait(callCtx); err != nil {
		return fail(err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()
	elapsed := time.Since(start)

	data, err := io.ReadAll(io.LimitReader(resp.Body, e.maxResponseBytes+1))
	if err != nil {
		return fail(err)
	}
	truncated := int64(len(data)) > e.maxResponseBytes
	if truncated {
		data = data[:e.maxResponseBytes]
	}

	resHeaders := make(map[string]string, len(resp.Header))
	for k, v := range resp.Header {
		resHeaders[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	resolved := resp.Request.URL.String()

	e.metrics.ObserveExecution("ok", elapsed)
	e.logger.Info("request executed",
		slog.String("workspace", workspaceID),
		slog.String("node", nodeID),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", elapsed))

	return &Result{
		OK:          true,
		Status:      resp.StatusCode,
		StatusText:  statusText(resp),
		TimeMs:      elapsed.Milliseconds(),
		Headers:     resHeaders,
		Body:        string(data),
		Truncated:   truncated,
		Request:     echo,
		ResolvedURL: resolved,
		Redirected:  resolved != echo.URL,
	}
}

// injectAuth adds the credentials of a to the headers or the url. OAuth2
// credentials are returned as a token for the outgoing request instead.
func injectAuth(a models.Auth, headers *headerSet, target *url.URL) *oauth2.Token {
	switch v := a.(type) {
	case models.BearerAuth:
		if v.Token != "" {
			headers.Set("Authorization", "Bearer "+v.Token)
		}
	case models.BasicAuth:
		cred := base64.StdEncoding.EncodeToString([]byte(v.Username + ":" + v.Password))
		headers.Set("Authorization", "Basic "+cred)
	case models.APIKeyAuth:
		if v.Key == "" {
			return nil
		}
		if strings.EqualFold(v.In, "query") {
			appendQuery(target, v.Key, v.Value)
			return nil
		}
		headers.Set(v.Key, v.Value)
	case models.OAuth2Auth:
		if access := v.AccessToken(); access != "" {
			return &oauth2.Token{AccessToken: access, TokenType: v.Params["tokenType"]}
		}
	}
	return nil
}

func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		return http.StatusText(resp.StatusCode)
	}
	return text
}
