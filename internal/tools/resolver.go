package tools

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Resolver maps tool arguments onto a GET request against the store backend.
//
// Path may contain {param} placeholders filled from arguments. Action, when
// set, is sent as the "action" query parameter so several tools can share one
// endpoint. Query maps argument names to query keys; arguments that are absent
// are left out of the request.
type Resolver struct {
	Path   string
	Action string
	Query  map[string]string
}

// URL builds the request URL for args relative to base.
func (r Resolver) URL(base string, args map[string]any) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + r.expandPath(args))
	if err != nil {
		return "", fmt.Errorf("building tool URL: %w", err)
	}
	q := u.Query()
	if r.Action != "" {
		q.Set("action", r.Action)
	}
	for arg, key := range r.Query {
		v, ok := args[arg]
		if !ok || v == nil {
			continue
		}
		q.Set(key, formatValue(v))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (r Resolver) expandPath(args map[string]any) string {
	path := r.Path
	for {
		start := strings.IndexByte(path, '{')
		if start < 0 {
			return path
		}
		end := strings.IndexByte(path[start:], '}')
		if end < 0 {
			return path
		}
		name := path[start+1 : start+end]
		value := ""
		if v, ok := args[name]; ok && v != nil {
			value = url.PathEscape(formatValue(v))
		}
		path = path[:start] + value + path[start+end+1:]
	}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
