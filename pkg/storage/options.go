package storage

import (
	"fmt"
	"math"
)

// Options are decoded JSON objects, so numbers arrive as float64 and nested
// objects as map[string]any. The helpers below return ErrInvalidConfig when
// a key is present with the wrong type and the default when it is absent.

// StringOption returns options[name] and whether it was set
func StringOption(options map[string]any, name string) (string, bool, error) {
	raw, ok := options[name]
	if !ok || raw == nil {
		return "", false, nil
	}
	v, ok := raw.(string)
	if !ok {
		return "", false, fmt.Errorf("%w: option %q must be a string", ErrInvalidConfig, name)
	}
	return v, true, nil
}

// RequiredString returns options[name] or an error when it is missing or empty
func RequiredString(options map[string]any, name string) (string, error) {
	v, ok, err := StringOption(options, name)
	if err != nil {
		return "", err
	}
	if !ok || v == "" {
		return "", fmt.Errorf("%w: missing required option: %s", ErrInvalidConfig, name)
	}
	return v, nil
}

// BoolOption returns options[name] or def
func BoolOption(options map[string]any, name string, def bool) (bool, error) {
	raw, ok := options[name]
	if !ok || raw == nil {
		return def, nil
	}
	v, ok := raw.(bool)
	if !ok {
		return def, fmt.Errorf("%w: option %q must be a boolean", ErrInvalidConfig, name)
	}
	return v, nil
}

// IntOption returns options[name] or def
func IntOption(options map[string]any, name string, def int) (int, error) {
	raw, ok := options[name]
	if !ok || raw == nil {
		return def, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return def, fmt.Errorf("%w: option %q must be an integer", ErrInvalidConfig, name)
		}
		return int(v), nil
	default:
		return def, fmt.Errorf("%w: option %q must be an integer", ErrInvalidConfig, name)
	}
}

// MapOption returns the nested object options[name] and whether it was set
func MapOption(options map[string]any, name string) (map[string]any, bool, error) {
	raw, ok := options[name]
	if !ok || raw == nil {
		return nil, false, nil
	}
	v, ok := raw.(map[string]any)
	if !ok {
		return nil, false, fmt.Errorf("%w: option %q is malformed", ErrInvalidConfig, name)
	}
	return v, true, nil
}

// redactedKeys are replaced before options are exposed in admin status
var redactedKeys = map[string]bool{
	"private":         true,
	"secret_key":      true,
	"application_key": true,
}

// Redact returns a copy of options with credentials masked
func Redact(options map[string]any) map[string]any {
	out := make(map[string]any, len(options))
	for k, v := range options {
		switch {
		case redactedKeys[k]:
			out[k] = "***"
		default:
			if nested, ok := v.(map[string]any); ok {
				out[k] = Redact(nested)
			} else {
				out[k] = v
			}
		}
	}
	return out
}
