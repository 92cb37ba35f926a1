package service

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"edge-proxy/internal/config"
)

var (
	// ErrNotFound is returned when no regular file exists at the resolved path.
	ErrNotFound = errors.New("static asset not found")
	// ErrPathTraversal is returned when a request path would leave the static
	// root. It wraps ErrNotFound so callers answer it exactly like a miss.
	ErrPathTraversal = fmt.Errorf("%w: path escapes static root", ErrNotFound)
	// ErrIsDirectory is returned when the path names a directory but lacks the
	// trailing slash; callers should redirect.
	ErrIsDirectory = errors.New("static path is a directory")
	// ErrStaticIO wraps filesystem failures other than not-found.
	ErrStaticIO = errors.New("static asset I/O error")
)

// Asset is an opened static file. The caller must Close it.
type Asset struct {
	*os.File
	Name string // base name, used for content-type inference
	Info fs.FileInfo
}

// StaticService resolves request paths against the static root.
type StaticService struct {
	root   string // absolute, symlinks evaluated
	index  string
	logger *slog.Logger
}

// NewStaticService creates a StaticService for cfg.Static.Root.
func NewStaticService(cfg *config.Config, logger *slog.Logger) (*StaticService, error) {
	abs, err := filepath.Abs(cfg.Static.Root)
	if err != nil {
		return nil, fmt.Errorf("static root: %w", err)
	}
	root, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("static root: %w", err)
	}
	index := cfg.Static.Index
	if index == "" {
		index = "index.html"
	}
	return &StaticService{
		root:   root,
		index:  index,
		logger: logger.With("component", "static_service"),
	}, nil
}

// Open resolves urlPath under the root and opens the file it names. A path
// ending in '/' serves the directory's index file.
func (s *StaticService) Open(urlPath string) (*Asset, error) {
	rel, err := cleanRelative(urlPath)
	if err != nil {
		return nil, err
	}

	full := filepath.Join(s.root, filepath.FromSlash(rel))
	if strings.HasSuffix(urlPath, "/") {
		full = filepath.Join(full, s.index)
	}

	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		return nil, classifyFSError(err)
	}
	if !s.contains(resolved) {
		return nil, ErrPathTraversal
	}

	f, err := os.Open(resolved)
	if err != nil {
		return nil, classifyFSError(err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, classifyFSError(err)
	}
	if info.IsDir() {
		_ = f.Close()
		if strings.HasSuffix(urlPath, "/") {
			// The index name itself is a directory.
			return nil, ErrNotFound
		}
		return nil, ErrIsDirectory
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, ErrNotFound
	}

	return &Asset{File: f, Name: info.Name(), Info: info}, nil
}

func (s *StaticService) contains(p string) bool {
	if p == s.root {
		return true
	}
	return strings.HasPrefix(p, s.root+string(filepath.Separator))
}

// cleanRelative turns a URL path into a slash-separated path relative to the
// root. Any ".." that climbs above the root rejects the request outright
// instead of being clamped, as does a NUL byte or a backslash.
func cleanRelative(urlPath string) (string, error) {
	if strings.ContainsAny(urlPath, "\x00\\") {
		return "", ErrPathTraversal
	}

	var parts []string
	for _, seg := range strings.Split(urlPath, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(parts) == 0 {
				return "", ErrPathTraversal
			}
			parts = parts[:len(parts)-1]
		default:
			parts = append(parts, seg)
		}
	}
	return strings.Join(parts, "/"), nil
}

func classifyFSError(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case errors.Is(err, syscall.ENOTDIR):
		// A path component is a regular file.
		return ErrNotFound
	default:
		return fmt.Errorf("%w: %w", ErrStaticIO, err)
	}
}
