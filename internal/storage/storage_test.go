package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateName(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateName("goszakup_15755249.json"))
	for _, bad := range []string{"", "  ", ".", "..", "../x.json", `a\b.json`, "dir/x.json"} {
		assert.Error(t, ValidateName(bad), bad)
	}
}

func TestFilterReports(t *testing.T) {
	t.Parallel()

	got := FilterReports([]string{"b.json", "notes.txt", "a.json", ".tmp-123", "a.json.tmp"})
	assert.Equal(t, []string{"a.json", "b.json"}, got)
}
