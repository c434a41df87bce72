package engine

import (
	"encoding/json"
	"strings"
)

// resolvePath addresses a value inside a JSON state document. Paths accept
// an optional "$." prefix and use "." or "/" as segment separators, so
// "$.env.temp", "env.temp" and "/env/temp" are equivalent. A missing path
// or a non-object intermediate resolves to not-found, never an error.
func resolvePath(state json.RawMessage, path string) (any, bool) {
	if len(state) == 0 || path == "" {
		return nil, false
	}

	var doc map[string]any
	if err := json.Unmarshal(state, &doc); err != nil {
		return nil, false
	}

	path = strings.TrimPrefix(path, "$.")
	segments := strings.FieldsFunc(path, func(r rune) bool {
		return r == '.' || r == '/'
	})
	if len(segments) == 0 {
		return nil, false
	}

	var current any = doc
	for _, segment := range segments {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
