package tools

import "fmt"

func argString(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func argInt(args map[string]any, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}

func argInt64(args map[string]any, key string) (int64, bool) {
	n, ok := argInt(args, key)
	return int64(n), ok
}

func argStringSlice(args map[string]any, key string) []string {
	v, ok := args[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func argInt64Slice(args map[string]any, key string) []int64 {
	v, ok := args[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]int64, 0, len(raw))
	for _, item := range raw {
		switch n := item.(type) {
		case float64:
			out = append(out, int64(n))
		case int64:
			out = append(out, n)
		case int:
			out = append(out, int64(n))
		}
	}
	return out
}

func argBool(args map[string]any, key string) bool {
	v, ok := args[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func requireString(args map[string]any, key string) (string, error) {
	s, ok := argString(args, key)
	if !ok || s == "" {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	return s, nil
}

func requireInt64(args map[string]any, key string) (int64, error) {
	n, ok := argInt64(args, key)
	if !ok {
		return 0, fmt.Errorf("missing required argument %q", key)
	}
	return n, nil
}
