// Package prompts carries the analysis prompt texts. The embedded defaults can
// be replaced by files on disk.
package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
)

//go:embed techspec.md
var defaultTechSpec string

//go:embed affiliate.md
var defaultAffiliate string

// Set holds one prompt per analysis branch.
type Set struct {
	TechSpec  string
	Affiliate string
}

// Default returns the embedded prompts.
func Default() Set {
	return Set{TechSpec: defaultTechSpec, Affiliate: defaultAffiliate}
}

// Load returns the embedded prompts, replacing each one whose override path is
// non-empty with that file's content.
func Load(techSpecPath, affiliatePath string) (Set, error) {
	set := Default()
	var err error
	if set.TechSpec, err = override(set.TechSpec, techSpecPath); err != nil {
		return Set{}, err
	}
	if set.Affiliate, err = override(set.Affiliate, affiliatePath); err != nil {
		return Set{}, err
	}
	return set, nil
}

func override(current, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return current, nil
	}
	// #nosec G304 -- prompt path comes from operator configuration.
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read prompt %s: %w", path, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("prompt %s is empty", path)
	}
	return text, nil
}
