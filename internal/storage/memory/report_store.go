// Package memory keeps reports in memory for development and tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/JakeFAU/tender-analyzer/internal/storage"
)

// ReportStore stores reports in a map and returns memory:// URIs.
type ReportStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewReportStore creates a new in-memory report store.
func NewReportStore() *ReportStore {
	return &ReportStore{data: make(map[string][]byte)}
}

// Put stores a copy of data under name.
func (s *ReportStore) Put(_ context.Context, name string, data []byte) (string, error) {
	if err := storage.ValidateName(name); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[name] = append([]byte(nil), data...)
	return fmt.Sprintf("memory://%s", name), nil
}

// List returns the stored report names, sorted.
func (s *ReportStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.data))
	for name := range s.data {
		names = append(names, name)
	}
	return storage.FilterReports(names), nil
}

// Open returns a reader over a copy of the named report.
func (s *ReportStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[name]
	if !ok {
		return nil, storage.ErrReportNotFound
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), data...))), nil
}

// Get returns the raw bytes of a report (test helper).
func (s *ReportStore) Get(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[name]
	return append([]byte(nil), data...), ok
}
