package middleware

import (
	"compress/gzip"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

const (
	encodingBrotli = "br"
	encodingGzip   = "gzip"
)

// CompressConfig configures the Compress middleware.
type CompressConfig struct {
	Skipper echomw.Skipper
	// GzipLevel is a compress/gzip level; 0 selects gzip.DefaultCompression.
	GzipLevel int
	// Logger receives encoder failures; nil selects slog.Default().
	Logger *slog.Logger
}

// Compress returns an Echo middleware that encodes response bodies with
// brotli or gzip, whichever the client prefers. The decision is taken when
// the handler writes its header, and bytes are encoded as they are written,
// so streamed responses are never buffered whole. Every response that could
// have been encoded carries Vary: Accept-Encoding, encoded or not.
func Compress(cfg CompressConfig) echo.MiddlewareFunc {
	if cfg.Skipper == nil {
		cfg.Skipper = echomw.DefaultSkipper
	}
	if cfg.GzipLevel == 0 {
		cfg.GzipLevel = gzip.DefaultCompression
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("component", "compress")

	pools := map[string]*sync.Pool{
		encodingGzip: {New: func() any {
			// Level was validated at config load.
			w, _ := gzip.NewWriterLevel(io.Discard, cfg.GzipLevel)
			return w
		}},
		encodingBrotli: {New: func() any {
			return brotli.NewWriterLevel(io.Discard, brotli.DefaultCompression)
		}},
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper(c) {
				return next(c)
			}
			// HEAD answers are never encoded but still vary like GET.
			var encoding string
			if c.Request().Method != http.MethodHead {
				encoding = negotiateEncoding(c.Request().Header.Get(echo.HeaderAcceptEncoding))
			}

			res := c.Response()
			cw := &compressWriter{ResponseWriter: res.Writer, encoding: encoding, pool: pools[encoding]}
			res.Writer = cw
			defer func() {
				if err := cw.Close(); err != nil {
					logger.Error("closing response encoder",
						"err", err,
						"encoding", encoding,
						"path", c.Request().URL.Path,
					)
				}
				res.Writer = cw.ResponseWriter
			}()

			return next(c)
		}
	}
}

// encoder is the common surface of *gzip.Writer and *brotli.Writer.
type encoder interface {
	io.WriteCloser
	Flush() error
	Reset(io.Writer)
}

type compressWriter struct {
	http.ResponseWriter
	encoding string // "" when the client accepts neither coding
	pool     *sync.Pool

	enc         encoder // nil when the response passes through
	wroteHeader bool
}

func (w *compressWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		h := w.Header()
		if shouldCompress(code, h) {
			addVary(h, echo.HeaderAcceptEncoding)
			if w.encoding != "" {
				h.Set(echo.HeaderContentEncoding, w.encoding)
				h.Del(echo.HeaderContentLength)
				w.enc = w.pool.Get().(encoder)
				w.enc.Reset(w.ResponseWriter)
			}
		}
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *compressWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.enc == nil {
		return w.ResponseWriter.Write(b)
	}
	return w.enc.Write(b)
}

// Flush pushes buffered compressed bytes to the client.
func (w *compressWriter) Flush() {
	if w.enc != nil {
		_ = w.enc.Flush()
	}
	_ = http.NewResponseController(w.ResponseWriter).Flush()
}

func (w *compressWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Close writes the encoding trailer and returns the encoder to its pool.
func (w *compressWriter) Close() error {
	if w.enc == nil {
		return nil
	}
	err := w.enc.Close()
	w.enc.Reset(io.Discard)
	w.pool.Put(w.enc)
	w.enc = nil
	return err
}

// addVary appends field to the Vary header unless it is already listed.
func addVary(h http.Header, field string) {
	for _, v := range h.Values(echo.HeaderVary) {
		for _, f := range strings.Split(v, ",") {
			f = strings.TrimSpace(f)
			if f == "*" || strings.EqualFold(f, field) {
				return
			}
		}
	}
	h.Add(echo.HeaderVary, field)
}

// shouldCompress reports whether a response with this status and header
// may be encoded.
func shouldCompress(code int, h http.Header) bool {
	switch {
	case code < http.StatusOK,
		code == http.StatusNoContent,
		code == http.StatusPartialContent,
		code == http.StatusNotModified:
		return false
	case h.Get(echo.HeaderContentEncoding) != "",
		h.Get("Content-Range") != "":
		return false
	}

	ct := strings.ToLower(h.Get(echo.HeaderContentType))
	if ct == "image/svg+xml" || strings.HasPrefix(ct, "image/svg+xml;") {
		return true
	}
	for _, prefix := range incompressibleTypes {
		if strings.HasPrefix(ct, prefix) {
			return false
		}
	}
	return true
}

// incompressibleTypes are media types that are already compressed.
var incompressibleTypes = []string{
	"image/",
	"audio/",
	"video/",
	"font/woff",
	"application/zip",
	"application/gzip",
	"application/x-gzip",
	"application/zstd",
	"application/x-7z-compressed",
	"application/x-rar-compressed",
}

// negotiateEncoding picks "br" or "gzip" from an Accept-Encoding header, or
// "" when neither is acceptable. Brotli wins ties.
func negotiateEncoding(header string) string {
	if header == "" {
		return ""
	}

	q := map[string]float64{}
	for _, part := range strings.Split(header, ",") {
		name, params, _ := strings.Cut(part, ";")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "x-gzip" {
			name = encodingGzip
		}
		if name == "" {
			continue
		}

		weight := 1.0
		for _, p := range strings.Split(params, ";") {
			k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
			if !ok || !strings.EqualFold(strings.TrimSpace(k), "q") {
				continue
			}
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil || f < 0 || f > 1 {
				f = 0
			}
			weight = f
		}
		q[name] = weight
	}

	weightOf := func(name string) float64 {
		if w, ok := q[name]; ok {
			return w
		}
		return q["*"]
	}

	br, gz := weightOf(encodingBrotli), weightOf(encodingGzip)
	switch {
	case br > 0 && br >= gz:
		return encodingBrotli
	case gz > 0:
		return encodingGzip
	}
	return ""
}
