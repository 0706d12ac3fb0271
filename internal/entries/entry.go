package entries

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-shutters/internal/cover"
)

// Entry is one configured group of covers sharing options.
type Entry struct {
	// ID identifies the entry in the API and the options store.
	ID string `yaml:"id" json:"id"`

	// Name is a human-readable label.
	Name string `yaml:"name" json:"name"`

	// Data holds the entry's option values (see cover.Opt* keys).
	Data map[string]any `yaml:"data" json:"data"`
}

// file is the on-disk layout of the entries file.
type file struct {
	Entries []Entry `yaml:"entries"`
}

// Validate checks an entry's ID and cover list.
func (e Entry) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidEntry)
	}
	if len(cover.Options(e.Data).Covers()) == 0 {
		return fmt.Errorf("%w: entry %s lists no covers", ErrInvalidEntry, e.ID)
	}
	return nil
}

// LoadFile reads and validates an entries file.
//
// Parameters:
//   - path: Location of the YAML file
//
// Returns:
//   - []Entry: Entries in file order
//   - error: If the file cannot be read, parsed, or holds invalid entries
func LoadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path comes from trusted config
	if err != nil {
		return nil, fmt.Errorf("reading entries file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates entries from YAML.
func Parse(data []byte) ([]Entry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing entries file: %w", err)
	}

	seen := make(map[string]bool, len(f.Entries))
	for i := range f.Entries {
		e := &f.Entries[i]
		e.ID = strings.TrimSpace(e.ID)
		if e.Data == nil {
			e.Data = map[string]any{}
		}
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntry, e.ID)
		}
		seen[e.ID] = true
	}
	return f.Entries, nil
}
