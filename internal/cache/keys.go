package cache

import (
	"fmt"
	"sort"
	"strings"
)

// Key prefixes. Script entries are invalidated individually, list entries
// by prefix since their parameters vary.
const (
	scriptKeyPrefix = "script:"
	listKeyPrefix   = "scripts:list:"
)

// ScriptKey is the cache key for a single script
func ScriptKey(scriptID string) string {
	return scriptKeyPrefix + scriptID
}

// ListKeyPrefix is the invalidation prefix covering all list entries
func ListKeyPrefix() string {
	return listKeyPrefix
}

// ListKey builds a deterministic cache key from normalized list
// parameters. Params are sorted by name so equivalent requests share an
// entry regardless of argument order.
func ListKey(params map[string]string) string {
	if len(params) == 0 {
		return listKeyPrefix + "all"
	}

	names := make([]string, 0, len(params))
	for name, value := range params {
		if value == "" {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return listKeyPrefix + "all"
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%s", name, params[name]))
	}

	return listKeyPrefix + strings.Join(parts, "&")
}
