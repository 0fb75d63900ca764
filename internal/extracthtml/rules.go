package extracthtml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// LoadRuleFile loads a rule set from a JSON or YAML file.
//
// The format follows the extension; unknown extensions try YAML then JSON.
func LoadRuleFile(path string) (*RuleSet, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var format string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	case ".json":
		format = "json"
	}

	rs, err := ParseRules(b, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return rs, nil
}

// ParseRules decodes a rule set. format is "json", "yaml" or "" to sniff.
func ParseRules(data []byte, format string) (*RuleSet, error) {
	var rs RuleSet
	switch format {
	case "json":
		if err := json.Unmarshal(data, &rs); err != nil {
			return nil, fmt.Errorf("parse rules json: %w", err)
		}
	case "yaml":
		if err := yaml.Unmarshal(data, &rs); err != nil {
			return nil, fmt.Errorf("parse rules yaml: %w", err)
		}
	default:
		if yerr := yaml.Unmarshal(data, &rs); yerr != nil {
			rs = RuleSet{}
			if jerr := json.Unmarshal(data, &rs); jerr != nil {
				return nil, fmt.Errorf("parse rules: %w", errors.Join(yerr, jerr))
			}
		}
	}

	if len(rs.Fields) == 0 {
		return nil, ErrNoFields
	}
	return &rs, nil
}
