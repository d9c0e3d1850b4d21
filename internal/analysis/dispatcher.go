// Package analysis uploads staged files to a text-analysis service and runs
// the fixed analysis branches over them concurrently.
package analysis

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/tender-analyzer/internal/analysis/prompts"
	"github.com/JakeFAU/tender-analyzer/internal/metrics"
	"github.com/JakeFAU/tender-analyzer/internal/tender"
)

// FileHandle identifies content previously uploaded to the service.
type FileHandle struct {
	ID   string
	Name string
}

// Service is the external analysis backend.
type Service interface {
	Upload(ctx context.Context, path string) (FileHandle, error)
	Generate(ctx context.Context, prompt string, files []FileHandle) (string, error)
}

// Branch is one prompt and the record key its output is stored under.
type Branch struct {
	Label  string
	Prompt string
}

// Branches returns the technical-specification and affiliation branches.
func Branches(set prompts.Set) []Branch {
	return []Branch{
		{Label: tender.LabelTechSpec, Prompt: set.TechSpec},
		{Label: tender.LabelAffiliate, Prompt: set.Affiliate},
	}
}

// Result is the outcome of one branch. A failed branch keeps its error.
type Result struct {
	Label string
	Text  string
	Err   error
}

// Value is the text stored in the report: the generated text, or an
// "Error: ..." string for a failed branch.
func (r Result) Value() string {
	if r.Err != nil {
		return "Error: " + r.Err.Error()
	}
	return r.Text
}

// Dispatcher drives uploads and analysis branches against a Service.
type Dispatcher struct {
	service  Service
	branches []Branch
	logger   *zap.Logger
}

// New builds a Dispatcher running the given branches.
func New(service Service, branches []Branch, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{service: service, branches: branches, logger: logger}
}

// UploadAll uploads every path in order. onUpload, if set, is called before
// each upload with its 0-based index, the total and the file's base name.
// The first failure aborts the remaining uploads.
func (d *Dispatcher) UploadAll(
	ctx context.Context,
	paths []string,
	onUpload func(i, n int, name string),
) ([]FileHandle, error) {
	handles := make([]FileHandle, 0, len(paths))
	for i, path := range paths {
		name := filepath.Base(path)
		if onUpload != nil {
			onUpload(i, len(paths), name)
		}
		handle, err := d.service.Upload(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", name, err)
		}
		d.logger.Debug("file uploaded", zap.String("file", name), zap.String("file_id", handle.ID))
		handles = append(handles, handle)
	}
	return handles, nil
}

// Analyze runs every branch concurrently with all handles and waits for all
// of them. A failing or panicking branch never affects the others. onDone, if
// set, is called once per resolved branch with the running count; calls are
// serialized. Results come back in branch order.
func (d *Dispatcher) Analyze(
	ctx context.Context,
	files []FileHandle,
	onDone func(done, total int, result Result),
) []Result {
	results := make([]Result, len(d.branches))
	var (
		mu   sync.Mutex
		done int
	)
	var g errgroup.Group
	for i, branch := range d.branches {
		g.Go(func() error {
			result := d.run(ctx, branch, files)
			results[i] = result
			metrics.ObserveBranch(result.Label, result.Err == nil)

			mu.Lock()
			defer mu.Unlock()
			done++
			if onDone != nil {
				onDone(done, len(d.branches), result)
			}
			return nil
		})
	}
	// Branch failures are captured in results; Wait has nothing to report.
	_ = g.Wait()
	return results
}

func (d *Dispatcher) run(ctx context.Context, branch Branch, files []FileHandle) (result Result) {
	result.Label = branch.Label
	defer func() {
		if p := recover(); p != nil {
			result.Text = ""
			result.Err = fmt.Errorf("analysis panicked: %v", p)
		}
		if result.Err != nil {
			d.logger.Warn("analysis branch failed", zap.String("label", branch.Label), zap.Error(result.Err))
		}
	}()
	result.Text, result.Err = d.service.Generate(ctx, branch.Prompt, files)
	return result
}
