package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

//go:embed licenses.json
var licensesJSON []byte

// Entry describes one license in the reference catalog. Key is the detection
// engine's license key; URL points at the canonical license text.
type Entry struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	SPDXID      string `json:"spdx_id"`
	Category    string `json:"category"` // permissive, copyleft, weak-copyleft, public-domain
	OSIApproved bool   `json:"osi_approved"`
	URL         string `json:"url"`
}

// Catalog holds the read-only license reference data, keyed by engine
// license key. Safe for concurrent use.
type Catalog struct {
	entries map[string]Entry
	keys    []string
}

// Load parses the embedded license data. Called once at startup.
// Parameters: none.
// Returns:
//   - *Catalog: populated catalog.
//   - error: when the embedded data is malformed or carries duplicate keys.
func Load() (*Catalog, error) {
	var entries []Entry
	if err := json.Unmarshal(licensesJSON, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse embedded license catalog: %w", err)
	}

	c := &Catalog{
		entries: make(map[string]Entry, len(entries)),
		keys:    make([]string, 0, len(entries)),
	}
	for _, e := range entries {
		key := strings.ToLower(e.Key)
		if key == "" {
			return nil, fmt.Errorf("license entry %q has no key", e.Name)
		}
		if _, dup := c.entries[key]; dup {
			return nil, fmt.Errorf("duplicate license key %q in catalog", key)
		}
		c.entries[key] = e
		c.keys = append(c.keys, key)
	}
	sort.Strings(c.keys)
	return c, nil
}

// Get looks up a license by its engine key, case-insensitively.
func (c *Catalog) Get(key string) (Entry, bool) {
	e, ok := c.entries[strings.ToLower(strings.TrimSpace(key))]
	return e, ok
}

// All returns every entry ordered by key.
func (c *Catalog) All() []Entry {
	out := make([]Entry, 0, len(c.keys))
	for _, k := range c.keys {
		out = append(out, c.entries[k])
	}
	return out
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}
