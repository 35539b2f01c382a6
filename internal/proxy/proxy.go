package proxy

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/code-wheel/mcp-http-security/internal/observability"
)

// hopHeaders are headers that should not be forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

type startTimeKey struct{}

// ReverseProxy forwards requests to a single upstream.
type ReverseProxy struct {
	target         *url.URL
	proxy          *httputil.ReverseProxy
	logger         observability.Logger
	metrics        *Metrics
	transport      http.RoundTripper
	errorHandler   func(http.ResponseWriter, *http.Request, error)
	modifyResponse func(*http.Response) error
	flushInterval  time.Duration
	timeout        time.Duration
	stripHeaders   []string
}

// ProxyOption is a functional option for configuring the proxy.
type ProxyOption func(*ReverseProxy)

// WithProxyLogger sets the logger for the proxy.
func WithProxyLogger(logger observability.Logger) ProxyOption {
	return func(p *ReverseProxy) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics *Metrics) ProxyOption {
	return func(p *ReverseProxy) {
		p.metrics = metrics
	}
}

// WithTransport sets the transport for the proxy.
func WithTransport(transport http.RoundTripper) ProxyOption {
	return func(p *ReverseProxy) {
		p.transport = transport
	}
}

// WithErrorHandler sets the error handler for the proxy.
func WithErrorHandler(handler func(http.ResponseWriter, *http.Request, error)) ProxyOption {
	return func(p *ReverseProxy) {
		p.errorHandler = handler
	}
}

// WithModifyResponse sets the response modifier for the proxy.
func WithModifyResponse(modifier func(*http.Response) error) ProxyOption {
	return func(p *ReverseProxy) {
		p.modifyResponse = modifier
	}
}

// WithFlushInterval sets the flush interval for streaming responses.
func WithFlushInterval(interval time.Duration) ProxyOption {
	return func(p *ReverseProxy) {
		p.flushInterval = interval
	}
}

// WithTimeout bounds each upstream request. Zero means no limit.
func WithTimeout(timeout time.Duration) ProxyOption {
	return func(p *ReverseProxy) {
		p.timeout = timeout
	}
}

// WithStripHeaders removes the named request headers before forwarding,
// typically the headers carrying the API key.
func WithStripHeaders(headers ...string) ProxyOption {
	return func(p *ReverseProxy) {
		p.stripHeaders = append(p.stripHeaders, headers...)
	}
}

// NewReverseProxy creates a reverse proxy for the upstream URL.
func NewReverseProxy(upstream string, opts ...ProxyOption) (*ReverseProxy, error) {
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, NewInvalidTargetError(upstream, err)
	}
	if (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return nil, NewInvalidTargetError(upstream, nil)
	}

	p := &ReverseProxy{
		target:        target,
		logger:        observability.NopLogger(),
		flushInterval: -1, // Immediate flush
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.errorHandler == nil {
		p.errorHandler = p.defaultErrorHandler
	}

	p.proxy = &httputil.ReverseProxy{
		Director:       p.director,
		Transport:      p.transport,
		FlushInterval:  p.flushInterval,
		ErrorHandler:   p.handleError,
		ModifyResponse: p.handleResponse,
	}

	return p, nil
}

// Target returns the upstream URL.
func (p *ReverseProxy) Target() *url.URL {
	u := *p.target
	return &u
}

// ServeHTTP implements http.Handler.
func (p *ReverseProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithValue(r.Context(), startTimeKey{}, time.Now())
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	p.proxy.ServeHTTP(w, r.WithContext(ctx))
}

// director modifies the request before forwarding.
func (p *ReverseProxy) director(req *http.Request) {
	clientHost := req.Host

	req.URL.Scheme = p.target.Scheme
	req.URL.Host = p.target.Host
	req.URL.Path, req.URL.RawPath = joinPath(p.target, req.URL)
	if p.target.RawQuery != "" {
		if req.URL.RawQuery == "" {
			req.URL.RawQuery = p.target.RawQuery
		} else {
			req.URL.RawQuery = p.target.RawQuery + "&" + req.URL.RawQuery
		}
	}

	// Remove hop-by-hop headers
	for _, h := range hopHeaders {
		req.Header.Del(h)
	}
	for _, h := range p.stripHeaders {
		req.Header.Del(h)
	}

	// httputil appends the client address to X-Forwarded-For.
	if req.TLS != nil {
		req.Header.Set("X-Forwarded-Proto", "https")
	} else {
		req.Header.Set("X-Forwarded-Proto", "http")
	}
	req.Header.Set("X-Forwarded-Host", clientHost)

	// Set Host header
	req.Host = p.target.Host
}

func (p *ReverseProxy) handleResponse(resp *http.Response) error {
	p.metrics.recordUpstream(resp.StatusCode, since(resp.Request.Context()))
	if p.modifyResponse != nil {
		return p.modifyResponse(resp)
	}
	return nil
}

func (p *ReverseProxy) handleError(w http.ResponseWriter, r *http.Request, err error) {
	_, _, label := classify(err)
	p.metrics.recordError(label)
	p.errorHandler(w, r, err)
}

// defaultErrorHandler is the default error handler.
func (p *ReverseProxy) defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	sentinel, status, _ := classify(err)

	if status == StatusClientClosedRequest {
		p.logger.Debug("client closed request",
			observability.String("path", r.URL.Path),
		)
		w.WriteHeader(status)
		return
	}

	p.logger.Error("proxy error",
		observability.String("path", r.URL.Path),
		observability.String("method", r.Method),
		observability.String("upstream", p.target.Host),
		observability.Error(err),
	)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, `{"error":"`+sentinel.Error()+`"}`)
}

// Handler returns an http.Handler for the proxy.
func (p *ReverseProxy) Handler() http.Handler {
	return p
}

// UpstreamAddress returns host:port of the upstream for connectivity checks.
func (p *ReverseProxy) UpstreamAddress() string {
	if p.target.Port() != "" {
		return p.target.Host
	}
	port := "80"
	if p.target.Scheme == "https" {
		port = "443"
	}
	return net.JoinHostPort(p.target.Hostname(), port)
}

func since(ctx context.Context) time.Duration {
	start, ok := ctx.Value(startTimeKey{}).(time.Time)
	if !ok {
		return 0
	}
	return time.Since(start)
}

// joinPath prefixes the request path with the upstream base path.
func joinPath(base, req *url.URL) (p, rawPath string) {
	if base.Path == "" || base.Path == "/" {
		return req.Path, req.RawPath
	}
	p = path.Join(base.Path, req.Path)
	if strings.HasSuffix(req.Path, "/") && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p, ""
}
