// Package presets ships ready-made rule sets for common listing pages.
package presets

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/MingmaMoktan/Web-Scraping-Portfolio/internal/extracthtml"
)

//go:embed rules/*.yaml
var rulesFS embed.FS

// Names returns the available preset names, sorted.
func Names() []string {
	entries, err := rulesFS.ReadDir("rules")
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(out)
	return out
}

// Lookup returns a fresh copy of the named rule set.
func Lookup(name string) (*extracthtml.RuleSet, error) {
	b, err := rulesFS.ReadFile(path.Join("rules", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("unknown preset %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	rs, err := extracthtml.ParseRules(b, "yaml")
	if err != nil {
		return nil, fmt.Errorf("preset %s: %w", name, err)
	}
	return rs, nil
}
