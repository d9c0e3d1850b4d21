// Package storage holds what every report store shares: the not-found
// sentinel and report name rules.
package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrReportNotFound is returned when a named report does not exist.
var ErrReportNotFound = errors.New("report not found")

// ReportExt is the extension every persisted report carries.
const ReportExt = ".json"

// ValidateName rejects empty names and names that could escape the report
// namespace.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("report name is required")
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("invalid report name %q", name)
	}
	return nil
}

// FilterReports keeps report names in sorted order.
func FilterReports(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if strings.HasSuffix(n, ReportExt) && ValidateName(n) == nil {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}
