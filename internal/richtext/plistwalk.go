package richtext

import (
	"bytes"

	"howett.net/plist"

	"github.com/wesm/chatvault/internal/textutil"
)

// plistLeafText parses data as a property list and returns the longest
// printable string leaf containing at least one letter or digit. Returns ""
// when data is not a plist or no usable leaf exists.
func plistLeafText(data []byte) string {
	if len(data) == 0 {
		return ""
	}

	var root interface{}
	if _, err := plist.Unmarshal(data, &root); err != nil {
		return ""
	}

	// Breadth-first so shallow leaves win ties against deeply nested
	// structural strings of equal length.
	best := ""
	queue := []interface{}{root}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		switch v := node.(type) {
		case string:
			if len(v) > len(best) && textutil.HasLetterOrDigit(v) && !isStructuralName(v) {
				best = v
			}
		case []interface{}:
			queue = append(queue, v...)
		case map[string]interface{}:
			for _, child := range v {
				queue = append(queue, child)
			}
		case map[interface{}]interface{}:
			for _, child := range v {
				queue = append(queue, child)
			}
		case []byte:
			// Nested archives inside plist leaves show up as data blobs;
			// recurse when they are themselves plists.
			if bytes.HasPrefix(v, []byte("bplist00")) || bytes.HasPrefix(bytes.TrimSpace(v), []byte("<?xml")) {
				var inner interface{}
				if _, err := plist.Unmarshal(v, &inner); err == nil {
					queue = append(queue, inner)
				}
			}
		}
	}
	return best
}

// isStructuralName filters class and key names that NSKeyedArchiver plists
// carry alongside real content.
func isStructuralName(s string) bool {
	switch s {
	case "$null", "NSObject", "NSString", "NSMutableString", "NSDictionary",
		"NSMutableDictionary", "NSArray", "NSMutableArray", "NSAttributedString",
		"NSMutableAttributedString", "NSKeyedArchiver":
		return true
	}
	return false
}
