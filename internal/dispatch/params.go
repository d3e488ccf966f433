package dispatch

import (
	"encoding/json"

	"github.com/memogarden/memogarden/internal/core"
	"github.com/memogarden/memogarden/internal/memerr"
)

func getString(params map[string]any, key string, required bool) (string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		if required {
			return "", memerr.Validation(key, "is required")
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", memerr.Validation(key, "must be a string")
	}
	return s, nil
}

// optStr reads an optional string param, returning "" for anything absent
// or of the wrong type rather than erroring.
func optStr(params map[string]any, key string) string {
	s, _ := getString(params, key, false)
	return s
}

func getStringPtr(params map[string]any, key string) *string {
	v, ok := params[key]
	if !ok || v == nil {
		return nil
	}
	if s, ok := v.(string); ok && s != "" {
		return &s
	}
	return nil
}

func getIntPtr(params map[string]any, key string) *int {
	v, ok := params[key]
	if !ok || v == nil {
		return nil
	}
	switch n := v.(type) {
	case int:
		return &n
	case float64:
		i := int(n)
		return &i
	}
	return nil
}

func getFloatPtr(params map[string]any, key string) *float64 {
	v, ok := params[key]
	if !ok || v == nil {
		return nil
	}
	switch n := v.(type) {
	case float64:
		return &n
	case int:
		f := float64(n)
		return &f
	}
	return nil
}

func getInt(params map[string]any, key string, def int) int {
	if p := getIntPtr(params, key); p != nil {
		return *p
	}
	return def
}

func getBool(params map[string]any, key string) bool {
	v, ok := params[key].(bool)
	return ok && v
}

func getStringSlice(params map[string]any, key string) []string {
	v, ok := params[key]
	if !ok || v == nil {
		return nil
	}
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

func getMap(params map[string]any, key string) map[string]any {
	m, _ := params[key].(map[string]any)
	return m
}

// toSetOps re-marshals a plain params map into core.SetOps, one
// json.RawMessage per field path.
func toSetOps(m map[string]any) (core.SetOps, error) {
	if m == nil {
		return nil, nil
	}
	out := make(core.SetOps, len(m))
	for k, v := range m {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, memerr.Validation("set."+k, "not serializable")
		}
		out[k] = raw
	}
	return out, nil
}
