package mcpserver

import (
	"encoding/json"
	"fmt"
	"strings"

	"dyntables/internal/domain"
)

// decodeArg decodes args[key] into target. Structured arguments may come
// as JSON text or as an already-decoded value. A missing key leaves
// target untouched.
func decodeArg(args map[string]any, key string, target any) error {
	v, ok := args[key]
	if !ok || v == nil {
		return nil
	}
	var data []byte
	switch x := v.(type) {
	case string:
		if strings.TrimSpace(x) == "" {
			return nil
		}
		data = []byte(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return domain.Validation("decode arguments", "%s is not valid JSON", key)
		}
		data = b
	}
	if err := json.Unmarshal(data, target); err != nil {
		return domain.Validation("decode arguments", "%s: %v", key, err)
	}
	return nil
}

func requireString(args map[string]any, key string) (string, error) {
	v, _ := args[key].(string)
	if strings.TrimSpace(v) == "" {
		return "", domain.Validation("decode arguments", "%s is required", key)
	}
	return v, nil
}

func getFloat(args map[string]any, key string, fallback float64) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	case string:
		var f float64
		if _, err := fmt.Sscan(v, &f); err == nil {
			return f
		}
	}
	return fallback
}

func getInt(args map[string]any, key string, fallback int) int {
	return int(getFloat(args, key, float64(fallback)))
}

func getBool(args map[string]any, key string) bool {
	switch v := args[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

func boolPtr(v bool) *bool { return &v }

// decodeArgs decodes the whole argument object into target. Values of the
// structured keys may be JSON text and are parsed first.
func decodeArgs(args map[string]any, target any, structured ...string) error {
	norm := make(map[string]any, len(args))
	for k, v := range args {
		norm[k] = v
	}
	for _, k := range structured {
		s, ok := norm[k].(string)
		if !ok {
			continue
		}
		if strings.TrimSpace(s) == "" {
			delete(norm, k)
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return domain.Validation("decode arguments", "%s is not valid JSON", k)
		}
		norm[k] = v
	}
	b, err := json.Marshal(norm)
	if err != nil {
		return domain.Validation("decode arguments", "arguments are not valid JSON")
	}
	if err := json.Unmarshal(b, target); err != nil {
		return domain.Validation("decode arguments", "%v", err)
	}
	return nil
}
