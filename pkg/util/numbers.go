package util

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ExtractFloat converts common scalar types into float64.
func ExtractFloat(val any) (float64, error) {
	switch v := val.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, nil
		}
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("unsupported float type %T", val)
	}
}

// ExtractInt converts common scalar types into int64. Fractional floats are rejected.
func ExtractInt(val any) (int64, error) {
	switch v := val.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("non-integral value %v", v)
		}
		return int64(v), nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, err
		}
		return ExtractInt(f)
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, fmt.Errorf("empty string")
		}
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported int type %T", val)
	}
}
