package auth

import (
	"fmt"
	"strings"
)

// lookup resolves a dotted path such as "headers.Authorization" inside
// nested maps. When a segment has no exact match it falls back to a
// case-insensitive match, since HTTP header names are case-insensitive.
func lookup(root any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	current := root
	for _, segment := range strings.Split(path, ".") {
		switch m := current.(type) {
		case map[string]any:
			v, ok := m[segment]
			if !ok {
				v, ok = foldLookup(m, segment)
			}
			if !ok {
				return nil, false
			}
			current = v
		case map[string]string:
			v, ok := m[segment]
			if !ok {
				for k, candidate := range m {
					if strings.EqualFold(k, segment) {
						v, ok = candidate, true
						break
					}
				}
			}
			if !ok {
				return nil, false
			}
			current = v
		default:
			return nil, false
		}
	}
	return current, current != nil
}

func foldLookup(m map[string]any, key string) (any, bool) {
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// lookupString resolves path and renders scalar values as strings.
func lookupString(root any, path string) (string, bool) {
	v, ok := lookup(root, path)
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case map[string]any, []any:
		return "", false
	default:
		return fmt.Sprint(s), true
	}
}

// leaf returns the last segment of a dotted path.
func leaf(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[i+1:]
	}
	return path
}

func stripBearer(token string) string {
	token = strings.TrimSpace(token)
	if strings.EqualFold(token, "bearer") {
		return ""
	}
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}
