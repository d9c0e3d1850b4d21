// Package staging downloads an announcement's technical-specification files
// into a freshly cleared local directory.
package staging

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/tender-analyzer/internal/tender"
)

// DefaultMaxFiles bounds the attachments staged for one announcement.
const DefaultMaxFiles = 3

// PolicyViolation reports that an announcement carries more attachments than
// the staging policy allows. It is never retried.
type PolicyViolation struct {
	Count int
	Max   int
}

func (v *PolicyViolation) Error() string {
	return fmt.Sprintf("Too many files to upload! (%d > %d)", v.Count, v.Max)
}

// Outcome is the result of one retrieval. Exactly one of Paths or Violation
// is meaningful: a violation means nothing was downloaded.
type Outcome struct {
	Paths []string
	// Digests holds the content hash of each path, index-aligned with Paths.
	Digests   []string
	Violation *PolicyViolation
}

// Config controls the attachment policy.
type Config struct {
	MaxFiles int
	// Hasher digests downloaded content; nil skips digests.
	Hasher tender.Hasher
}

// Retriever downloads file references through a tender.Fetcher.
type Retriever struct {
	fetcher  tender.Fetcher
	hasher   tender.Hasher
	maxFiles int
	logger   *zap.Logger
}

// New builds a Retriever.
func New(cfg Config, fetcher tender.Fetcher, logger *zap.Logger) *Retriever {
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = DefaultMaxFiles
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{fetcher: fetcher, hasher: cfg.Hasher, maxFiles: cfg.MaxFiles, logger: logger}
}

// Reset makes dir an existing, empty directory. Files, symlinks and
// subdirectories are removed; a path that exists but is not a directory is an
// error.
func Reset(dir string) error {
	info, err := os.Lstat(dir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create staging dir: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("stat staging dir: %w", err)
	case !info.IsDir():
		return fmt.Errorf("%s is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read staging dir: %w", err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("clear staging dir: %w", err)
		}
	}
	return nil
}

// Check applies the attachment policy without touching the filesystem.
func (r *Retriever) Check(files []tender.TechSpecFile) *PolicyViolation {
	names := make(map[string]struct{}, len(files))
	for i, f := range files {
		names[fileName(f.FileName, i)] = struct{}{}
	}
	if len(names) > r.maxFiles {
		return &PolicyViolation{Count: len(names), Max: r.maxFiles}
	}
	return nil
}

// Retrieve resets dir, applies the attachment policy and downloads every file
// sequentially. Any failed download aborts the retrieval.
func (r *Retriever) Retrieve(
	ctx context.Context,
	creds tender.Credentials,
	dir string,
	files []tender.TechSpecFile,
) (Outcome, error) {
	if err := Reset(dir); err != nil {
		return Outcome{}, err
	}
	if violation := r.Check(files); violation != nil {
		return Outcome{Violation: violation}, nil
	}

	seen := make(map[string]int, len(files))
	paths := make([]string, 0, len(files))
	digests := make([]string, 0, len(files))
	for i, f := range files {
		resp, err := r.fetcher.Fetch(ctx, tender.FetchRequest{
			Method:  http.MethodGet,
			URL:     f.FileLink,
			Headers: creds.Header(),
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("download %s: %w", f.FileName, err)
		}
		if err := resp.CheckStatus(); err != nil {
			return Outcome{}, fmt.Errorf("download %s: %w", f.FileName, err)
		}

		name := fileName(f.FileName, i)
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, resp.Body, 0o600); err != nil {
			return Outcome{}, fmt.Errorf("write %s: %w", name, err)
		}
		digest, err := r.digest(resp.Body)
		if err != nil {
			return Outcome{}, fmt.Errorf("hash %s: %w", name, err)
		}
		if idx, ok := seen[name]; ok {
			digests[idx] = digest
		} else {
			seen[name] = len(paths)
			paths = append(paths, path)
			digests = append(digests, digest)
		}
		r.logger.Info("staged file",
			zap.String("path", path),
			zap.Int("bytes", len(resp.Body)),
			zap.String("sha256", digest),
		)
	}
	return Outcome{Paths: paths, Digests: digests}, nil
}

func (r *Retriever) digest(data []byte) (string, error) {
	if r.hasher == nil {
		return "", nil
	}
	return r.hasher.Hash(data)
}

// fileName reduces a portal file name to a safe base name.
func fileName(name string, index int) string {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	switch base {
	case "", ".", "..", "/":
		return "file-" + strconv.Itoa(index+1)
	}
	return base
}
