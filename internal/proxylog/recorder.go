// Package proxylog records one line per proxied request.
package proxylog

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/fatih/color"
)

// timeLayout matches "2006-01-02 15:04:05.000".
const timeLayout = "2006-01-02 15:04:05.000"

// Recorder records a proxied-request event. Implementations must not block
// the caller for long and must never fail the forward.
type Recorder interface {
	RecordProxy(method, target string)
}

// Console prints a colorized line per forward:
//
//	 proxy [2024-01-02 15:04:05.000] http://localhost:9000/api/users
type Console struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time

	tag, stamp, uri *color.Color
}

// NewConsole returns a Console writing to out. Colors follow fatih/color's
// terminal detection unless noColor forces them off.
func NewConsole(out io.Writer, noColor bool) *Console {
	c := &Console{
		out:   out,
		now:   time.Now,
		tag:   color.New(color.BgBlue, color.FgWhite),
		stamp: color.New(color.FgGreen),
		uri:   color.New(color.FgCyan),
	}
	if noColor {
		c.tag.DisableColor()
		c.stamp.DisableColor()
		c.uri.DisableColor()
	}
	return c
}

// RecordProxy implements Recorder. Write errors are dropped.
func (c *Console) RecordProxy(_, target string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, _ = c.tag.Fprint(c.out, " proxy ")
	_, _ = c.stamp.Fprintf(c.out, "[%s]", c.now().Format(timeLayout))
	_, _ = c.uri.Fprintf(c.out, " %s ", target)
	_, _ = io.WriteString(c.out, "\n")
}

// Slog records forwards as structured log lines.
type Slog struct {
	logger *slog.Logger
}

// NewSlog returns a Slog recorder.
func NewSlog(logger *slog.Logger) *Slog {
	return &Slog{logger: logger.With("component", "proxy")}
}

// RecordProxy implements Recorder.
func (s *Slog) RecordProxy(method, target string) {
	s.logger.Info("proxy", "method", method, "target", target)
}
