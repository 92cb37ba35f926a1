// Package service implements the proxy forwarding and static asset logic.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"edge-proxy/internal/client"
	"edge-proxy/internal/config"
	"edge-proxy/internal/model"
	"edge-proxy/internal/proxylog"
)

var (
	// ErrBadUpstreamURI is returned when base + path-and-query is not a valid absolute URI.
	ErrBadUpstreamURI = errors.New("invalid upstream URI")
	// ErrUpstreamUnreachable wraps any failure to obtain a response from the upstream.
	ErrUpstreamUnreachable = errors.New("upstream unreachable")
)

// hopByHopHeaders are connection-scoped and never relayed (RFC 7230 §6.1).
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Doer sends a prepared upstream request.
type Doer interface {
	Do(req *http.Request) (*model.ProxyResponse, error)
}

// ProxyService forwards requests to the single configured upstream.
type ProxyService struct {
	client   Doer
	recorder proxylog.Recorder
	logger   *slog.Logger
	baseURL  string
}

// NewProxyService creates a ProxyService. The base URL was validated when the
// config was loaded; it is checked again here so a hand-built config cannot
// reach the request path.
func NewProxyService(c *client.UpstreamClient, rec proxylog.Recorder, cfg *config.Config, logger *slog.Logger) (*ProxyService, error) {
	return newProxyService(c, rec, cfg.Proxy.BaseURL, logger)
}

func newProxyService(c Doer, rec proxylog.Recorder, baseURL string, logger *slog.Logger) (*ProxyService, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base_url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream base_url %q is not absolute", baseURL)
	}

	return &ProxyService{
		client:   c,
		recorder: rec,
		logger:   logger.With("component", "proxy_service"),
		baseURL:  strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Forward sends a ProxyRequest to the upstream and returns its response.
// The body is streamed in both directions; the caller is responsible for
// closing the response body.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	target, err := s.TargetURL(pr.RequestURI)
	s.recorder.RecordProxy(pr.Method, s.baseURL+pr.RequestURI)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(pr.Ctx, pr.Method, target.String(), pr.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadUpstreamURI, err)
	}
	// Keep the exact bytes the client sent rather than url.URL's re-encoding.
	req.URL = target
	req.Header = cloneEndToEnd(pr.Header)
	req.ContentLength = pr.ContentLength
	if pr.Body == nil || pr.Body == http.NoBody {
		req.Body = http.NoBody
		req.ContentLength = 0
	}

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"target", target.String(),
	)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnreachable, err)
	}

	resp.Header = cloneEndToEnd(resp.Header)
	return resp, nil
}

// TargetURL concatenates the upstream base and the request's path-and-query
// without any normalization.
func (s *ProxyService) TargetURL(requestURI string) (*url.URL, error) {
	raw := s.baseURL + requestURI
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadUpstreamURI, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not absolute", ErrBadUpstreamURI, raw)
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u, nil
}

// cloneEndToEnd copies h without hop-by-hop headers, including any listed in
// the Connection header.
func cloneEndToEnd(h http.Header) http.Header {
	dst := h.Clone()
	if dst == nil {
		return make(http.Header)
	}
	for _, v := range dst.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				dst.Del(name)
			}
		}
	}
	for _, name := range hopByHopHeaders {
		dst.Del(name)
	}
	return dst
}
