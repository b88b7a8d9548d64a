// Package config provides configuration loading and parsing for rampline.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// lookupSetting searches for a value in settings using multiple candidate keys.
// It performs case-insensitive matching by also checking lowercase versions.
func lookupSetting(settings map[string]any, candidates ...string) (any, bool) {
	for _, key := range candidates {
		if val, ok := settings[key]; ok {
			return val, true
		}
		lower := strings.ToLower(key)
		if val, ok := settings[lower]; ok {
			return val, true
		}
	}
	return nil, false
}

// asString converts an interface value to a string.
func asString(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	case []byte:
		return string(v), nil
	default:
		return fmt.Sprint(v), nil
	}
}

// asInt converts an interface value to an int.
// Handles all numeric types and string representations.
func asInt(value any) (int, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int8:
		return int(v), nil
	case int16:
		return int(v), nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint:
		return int(v), nil
	case uint8:
		return int(v), nil
	case uint16:
		return int(v), nil
	case uint32:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float32:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, nil
		}
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, err
		}
		return i, nil
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", value)
	}
}

// asBool converts an interface value to a bool.
func asBool(value any) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return false, nil
		}
		return strconv.ParseBool(strings.TrimSpace(v))
	default:
		return false, fmt.Errorf("unsupported boolean type %T", value)
	}
}

// asDuration converts an interface value to a time.Duration.
// Strings are parsed with time.ParseDuration; bare numbers are seconds,
// matching the sequence entries in ramp_up_wait and run_time.
func asDuration(value any) (time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, nil
		}
		d, err := time.ParseDuration(trimmed)
		if err == nil {
			return d, nil
		}
		secs, ferr := strconv.ParseFloat(trimmed, 64)
		if ferr != nil {
			return 0, err
		}
		return time.Duration(secs * float64(time.Second)), nil
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case float32:
		return time.Duration(float64(v) * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("unsupported duration type %T", value)
	}
}

// asIntList coerces a scalar or list value into an int slice.
// Scalar ramp values become single-element sequences.
func asIntList(value any) ([]int, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []any:
		out := make([]int, 0, len(v))
		for _, item := range v {
			i, err := asInt(item)
			if err != nil {
				return nil, err
			}
			out = append(out, i)
		}
		return out, nil
	case []int:
		out := make([]int, len(v))
		copy(out, v)
		return out, nil
	default:
		i, err := asInt(value)
		if err != nil {
			return nil, err
		}
		return []int{i}, nil
	}
}

// asDurationList coerces a scalar or list value into a duration slice.
func asDurationList(value any) ([]time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []any:
		out := make([]time.Duration, 0, len(v))
		for _, item := range v {
			d, err := asDuration(item)
			if err != nil {
				return nil, err
			}
			out = append(out, d)
		}
		return out, nil
	default:
		d, err := asDuration(value)
		if err != nil {
			return nil, err
		}
		return []time.Duration{d}, nil
	}
}

// asStringList coerces a scalar or list value into a string slice.
func asStringList(value any) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, err := asString(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out, nil
	case string:
		return []string{v}, nil
	default:
		return nil, fmt.Errorf("unsupported list type %T", value)
	}
}

// asSettings converts a nested config value into a settings map.
func asSettings(value any) (map[string]any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			s, err := asString(key)
			if err != nil {
				return nil, err
			}
			out[s] = item
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected mapping, got %T", value)
	}
}
