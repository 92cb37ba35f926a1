package proxylog

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestConsole_RecordProxy(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, true)
	c.now = func() time.Time { return time.Date(2024, 1, 2, 15, 4, 5, 6_000_000, time.UTC) }

	c.RecordProxy("GET", "http://localhost:9000/api/users?active=true")

	want := " proxy [2024-01-02 15:04:05.006] http://localhost:9000/api/users?active=true \n"
	if got := buf.String(); got != want {
		t.Errorf("line = %q, want %q", got, want)
	}
}

func TestConsole_ConcurrentLinesStayWhole(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, true)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordProxy("GET", "http://upstream/api/x")
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 50 {
		t.Fatalf("got %d lines, want 50", len(lines))
	}
	for _, l := range lines {
		if !strings.HasPrefix(l, " proxy [") || !strings.HasSuffix(l, " http://upstream/api/x ") {
			t.Errorf("interleaved line: %q", l)
		}
	}
}

func TestSlog_RecordProxy(t *testing.T) {
	var buf bytes.Buffer
	s := NewSlog(slog.New(slog.NewJSONHandler(&buf, nil)))

	s.RecordProxy("POST", "http://localhost:9000/api/items")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry["msg"] != "proxy" {
		t.Errorf("msg = %v, want %q", entry["msg"], "proxy")
	}
	if entry["target"] != "http://localhost:9000/api/items" {
		t.Errorf("target = %v, want %q", entry["target"], "http://localhost:9000/api/items")
	}
	if entry["method"] != "POST" {
		t.Errorf("method = %v, want %q", entry["method"], "POST")
	}
}
