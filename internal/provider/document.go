package provider

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Document is a decoded JSON object from a provider whose field names vary
// between services. Accessors take several candidate paths and return the
// first one present; a path may be dotted ("security.vpn").
type Document map[string]any

func (d Document) lookup(path string) (any, bool) {
	var cur any = map[string]any(d)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// String returns the first non-empty value among paths, formatted as text.
func (d Document) String(paths ...string) string {
	for _, p := range paths {
		v, ok := d.lookup(p)
		if !ok {
			continue
		}
		switch x := v.(type) {
		case string:
			if x != "" {
				return x
			}
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64)
		case json.Number:
			return x.String()
		case bool:
			return strconv.FormatBool(x)
		}
	}
	return ""
}

// Float returns the first numeric value among paths. Numeric strings count.
func (d Document) Float(paths ...string) (float64, bool) {
	for _, p := range paths {
		v, ok := d.lookup(p)
		if !ok {
			continue
		}
		switch x := v.(type) {
		case float64:
			return x, true
		case json.Number:
			if f, err := x.Float64(); err == nil {
				return f, true
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// Bool reports whether any of paths holds true (or "true", "yes", "1").
func (d Document) Bool(paths ...string) bool {
	for _, p := range paths {
		v, ok := d.lookup(p)
		if !ok {
			continue
		}
		switch x := v.(type) {
		case bool:
			if x {
				return true
			}
		case string:
			switch strings.ToLower(x) {
			case "true", "yes", "1":
				return true
			}
		case float64:
			if x != 0 {
				return true
			}
		}
	}
	return false
}
