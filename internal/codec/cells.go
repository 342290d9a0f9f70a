package codec

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dyntables/internal/domain"
)

// DateLayout is the wire format of date cells.
const DateLayout = "2006-01-02"

var datetimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	DateLayout,
}

// EncodeCell converts a caller-supplied cell value into the bind value for
// its physical column. Datetime cells come back as time.Time, JSON cells as
// their serialized text.
func EncodeCell(def domain.ColumnDef, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch StorageFor(def.Type) {
	case StorageNumeric:
		return toFloat(v)
	case StorageBoolean:
		return toBool(v)
	case StorageDate:
		t, err := toTime(v)
		if err != nil {
			return nil, err
		}
		return t.Format(DateLayout), nil
	case StorageDatetime:
		t, err := toTime(v)
		if err != nil {
			return nil, err
		}
		return t.UTC(), nil
	case StorageJSON:
		return encodeJSON(def, v)
	default:
		return toText(v)
	}
}

// DecodeCell converts a scanned physical value back into a cell value.
// A nil result means the cell is absent; malformed stored JSON decodes to nil.
func DecodeCell(def domain.ColumnDef, raw any) any {
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}
	if raw == nil {
		return nil
	}
	switch StorageFor(def.Type) {
	case StorageNumeric:
		f, err := toFloat(raw)
		if err != nil {
			return nil
		}
		return f
	case StorageBoolean:
		b, err := toBool(raw)
		if err != nil {
			return nil
		}
		return b
	case StorageDate:
		switch t := raw.(type) {
		case time.Time:
			return t.Format(DateLayout)
		case string:
			if len(t) >= len(DateLayout) {
				if _, err := time.Parse(DateLayout, t[:len(DateLayout)]); err == nil {
					return t[:len(DateLayout)]
				}
			}
			return t
		}
		return fmt.Sprint(raw)
	case StorageDatetime:
		t, err := toTime(raw)
		if err != nil {
			return fmt.Sprint(raw)
		}
		return t.UTC().Format(time.RFC3339)
	case StorageJSON:
		s, ok := raw.(string)
		if !ok {
			return nil
		}
		var out any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil
		}
		return out
	default:
		if s, ok := raw.(string); ok {
			return s
		}
		return fmt.Sprint(raw)
	}
}

func toText(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case int, int64, int32, json.Number:
		return fmt.Sprint(x), nil
	case map[string]any, []any:
		return nil, fmt.Errorf("expected a text value, got %T", v)
	default:
		return fmt.Sprint(x), nil
	}
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("expected a number, got %q", x)
		}
		return f, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("expected a number, got %T", v)
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case int:
		return x != 0, nil
	case float64:
		return x != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "t", "1", "yes", "y", "on", "x":
			return true, nil
		case "false", "f", "0", "no", "n", "off", "":
			return false, nil
		}
		return false, fmt.Errorf("expected a boolean, got %q", x)
	}
	return false, fmt.Errorf("expected a boolean, got %T", v)
}

func toTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range datetimeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("expected an ISO-8601 date, got %q", x)
	}
	return time.Time{}, fmt.Errorf("expected an ISO-8601 date, got %T", v)
}

func encodeJSON(def domain.ColumnDef, v any) (any, error) {
	if def.Type == domain.ColTypeMultiSelect {
		ids, err := toStringList(v)
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(ids)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	if s, ok := v.(string); ok {
		trimmed := strings.TrimSpace(s)
		if (strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")) && json.Valid([]byte(trimmed)) {
			return trimmed, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json cell: %w", err)
	}
	return string(b), nil
}

func toStringList(v any) ([]string, error) {
	switch x := v.(type) {
	case []string:
		return x, nil
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected a list of strings, found %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		trimmed := strings.TrimSpace(x)
		if strings.HasPrefix(trimmed, "[") {
			var out []string
			if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
				return nil, fmt.Errorf("expected a list of strings: %w", err)
			}
			return out, nil
		}
		if trimmed == "" {
			return []string{}, nil
		}
		return []string{trimmed}, nil
	}
	return nil, fmt.Errorf("expected a list of strings, got %T", v)
}
