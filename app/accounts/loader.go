package accounts

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/featherwatch/featherwatch/app/post"
)

// Account is one tracked account with optional per-account overrides.
// Zero overrides mean the run-wide defaults apply.
type Account struct {
	Handle     string `yaml:"handle"`
	MaxItems   int    `yaml:"max_items"`
	WindowDays int    `yaml:"window_days"`
}

type accountsFile struct {
	Accounts []Account `yaml:"accounts"`
}

// Load reads the tracked-account list from a YAML file. Handles are
// normalized, blank entries dropped and duplicates rejected.
func Load(path string) ([]Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts file: %w", err)
	}

	var file accountsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse accounts file: %w", err)
	}

	seen := make(map[string]bool)
	var accounts []Account
	for _, a := range file.Accounts {
		a.Handle = post.NormalizeHandle(strings.TrimSpace(a.Handle))
		if a.Handle == "" {
			continue
		}
		if seen[a.Handle] {
			return nil, fmt.Errorf("duplicate account %q", a.Handle)
		}
		seen[a.Handle] = true

		if a.MaxItems < 0 {
			return nil, fmt.Errorf("account %q: max_items must be non-negative", a.Handle)
		}
		if a.WindowDays < 0 {
			return nil, fmt.Errorf("account %q: window_days must be non-negative", a.Handle)
		}

		accounts = append(accounts, a)
	}

	if len(accounts) == 0 {
		return nil, fmt.Errorf("no accounts configured in %s", path)
	}

	return accounts, nil
}
