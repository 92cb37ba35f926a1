// Package model defines the transient request and response values that flow
// through the edge server.
package model

import (
	"context"
	"io"
	"net/http"
)

// ProxyRequest represents a client request to be forwarded upstream.
// RequestURI is the path-and-query exactly as the client sent it.
type ProxyRequest struct {
	Ctx           context.Context
	Method        string
	RequestURI    string
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64
}

// ProxyResponse represents the upstream response to be streamed back.
type ProxyResponse struct {
	StatusCode    int
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64 // -1 when unknown
}
