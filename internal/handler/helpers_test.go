package handler

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"edge-proxy/internal/client"
	"edge-proxy/internal/config"
	"edge-proxy/internal/proxylog"
	"edge-proxy/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestConfig returns a config with a fresh static root holding files.
func newTestConfig(t *testing.T, upstreamURL string, files map[string]string) *config.Config {
	t.Helper()
	root := t.TempDir()
	for name, body := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return &config.Config{
		Proxy: config.ProxyConfig{
			APIPrefix:       "/api",
			BaseURL:         upstreamURL,
			TimeoutSeconds:  10,
			IdleConnections: 10,
		},
		Static: config.StaticConfig{Root: root, Index: "index.html"},
	}
}

func newTestProxyHandler(t *testing.T, cfg *config.Config) *ProxyHandler {
	t.Helper()
	logger := discardLogger()
	uc := client.NewUpstreamClient(cfg, logger, nil)
	svc, err := service.NewProxyService(uc, proxylog.NewSlog(logger), cfg, logger)
	if err != nil {
		t.Fatalf("NewProxyService: %v", err)
	}
	return NewProxyHandler(svc, logger)
}

func newTestStaticHandler(t *testing.T, cfg *config.Config) *StaticHandler {
	t.Helper()
	svc, err := service.NewStaticService(cfg, discardLogger())
	if err != nil {
		t.Fatalf("NewStaticService: %v", err)
	}
	return NewStaticHandler(svc, nil, discardLogger())
}
