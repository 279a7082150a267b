package normalize

import (
	"strconv"
	"strings"
)

// Resolve looks up a dotted path inside a decoded JSON value.
// A path segment that parses as an integer indexes into arrays.
// The full path is first tried as a literal key so that column names
// containing dots or spaces resolve without escaping.
//
// Resolve reports false when the path is absent, null, or a blank string.
func Resolve(raw map[string]any, path string) (any, bool) {
	if v, ok := raw[path]; ok {
		return v, present(v)
	}

	var cur any = raw
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, present(cur)
}

func present(v any) bool {
	switch s := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(s) != ""
	}
	return true
}
