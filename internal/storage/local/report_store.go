// Package local implements a report store on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/tender-analyzer/internal/storage"
)

// Config captures the parameters for the local filesystem report store.
type Config struct {
	// BaseDir is the directory reports are written to.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// ReportStore writes reports as files in one directory.
type ReportStore struct {
	baseDir string
}

// New creates a local report store, creating BaseDir when missing and
// verifying it is writable.
func New(cfg Config) (*ReportStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	probe, err := os.CreateTemp(cfg.BaseDir, ".writable-*")
	if err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	_ = probe.Close()
	if err := os.Remove(probe.Name()); err != nil {
		return nil, fmt.Errorf("failed to clean up probe file: %w", err)
	}

	return &ReportStore{baseDir: cfg.BaseDir}, nil
}

// Put writes data to a temporary file in the same directory and renames it
// over name, so readers never see a partial report. It returns a file:// URI.
func (s *ReportStore) Put(_ context.Context, name string, data []byte) (string, error) {
	if err := storage.ValidateName(name); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(s.baseDir, ".tmp-"+name+"-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", fmt.Errorf("sync report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("close report: %w", err)
	}
	// #nosec G302 -- reports are served to other local readers.
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return "", fmt.Errorf("chmod report: %w", err)
	}

	fullPath := filepath.Join(s.baseDir, name)
	if err := os.Rename(tmpName, fullPath); err != nil {
		cleanup()
		return "", fmt.Errorf("rename report: %w", err)
	}
	return fmt.Sprintf("file://%s", fullPath), nil
}

// List returns the report file names in the directory, sorted.
func (s *ReportStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read report dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	return storage.FilterReports(names), nil
}

// Open returns a reader over the named report.
func (s *ReportStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	if err := storage.ValidateName(name); err != nil {
		return nil, storage.ErrReportNotFound
	}
	// #nosec G304 -- name is validated to stay inside baseDir.
	f, err := os.Open(filepath.Join(s.baseDir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storage.ErrReportNotFound
		}
		return nil, fmt.Errorf("open report: %w", err)
	}
	return f, nil
}
