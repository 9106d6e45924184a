package nn

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/pkg/errors"
)

// Config holds the parameters of a layer built by name, as decoded from
// YAML or JSON: numbers may arrive as int or float64 and lists as []any.
// Keys follow the constructor parameter names in snake_case
// (in_features, kernel_size, padding, ...).
type Config map[string]any

// configReader reads typed values from a Config. The first failure sticks:
// later reads return defaults and err reports the failure.
type configReader struct {
	kind string
	cfg  Config
	used map[string]bool
	err  error
}

func newConfigReader(kind string, cfg Config) *configReader {
	return &configReader{kind: kind, cfg: cfg, used: make(map[string]bool)}
}

func (r *configReader) fail(key string, format string, args ...any) {
	if r.err == nil {
		r.err = errors.Wrapf(ErrInvalidConfig, "%s: %s: %s", r.kind, key, fmt.Sprintf(format, args...))
	}
}

func (r *configReader) lookup(key string) (any, bool) {
	r.used[key] = true
	v, ok := r.cfg[key]
	return v, ok && v != nil
}

func toInt(v any) (int, bool) {
	switch v := v.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == math.Trunc(v) {
			return int(v), true
		}
	}
	return 0, false
}

func (r *configReader) required(key string) bool {
	if _, ok := r.lookup(key); !ok {
		r.fail(key, "required")
		return false
	}
	return true
}

func (r *configReader) int(key string, def int) int {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	i, ok := toInt(v)
	if !ok {
		r.fail(key, "expected an integer, got %v", v)
		return def
	}
	return i
}

// optionalInt returns nil when key is absent.
func (r *configReader) optionalInt(key string) *int {
	if _, ok := r.lookup(key); !ok {
		return nil
	}
	i := r.int(key, 0)
	return &i
}

func (r *configReader) float(key string, def float64) float64 {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	switch v := v.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	r.fail(key, "expected a number, got %v", v)
	return def
}

func (r *configReader) bool(key string, def bool) bool {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		r.fail(key, "expected a boolean, got %v", v)
		return def
	}
	return b
}

func (r *configReader) string(key string, def string) string {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		r.fail(key, "expected a string, got %v", v)
		return def
	}
	return s
}

// ints accepts a single integer or a list of integers.
func (r *configReader) ints(key string) []int {
	v, ok := r.lookup(key)
	if !ok {
		return nil
	}
	if i, ok := toInt(v); ok {
		return []int{i}
	}
	var items []any
	switch v := v.(type) {
	case []any:
		items = v
	case []int:
		return slices.Clone(v)
	default:
		r.fail(key, "expected an integer or a list of integers, got %v", v)
		return nil
	}
	out := make([]int, len(items))
	for i, item := range items {
		n, ok := toInt(item)
		if !ok {
			r.fail(key, "expected an integer or a list of integers, got %v", v)
			return nil
		}
		out[i] = n
	}
	return out
}

func (r *configReader) padding(key string) PaddingMode {
	s := r.string(key, PaddingSame.String())
	if r.err != nil {
		return PaddingSame
	}
	m, err := ParsePaddingMode(s)
	if err != nil && r.err == nil {
		r.err = errors.WithMessage(err, r.kind)
	}
	return m
}

// done returns the first failure, or an error naming unknown keys.
func (r *configReader) done() error {
	if r.err != nil {
		return r.err
	}
	var unknown []string
	for key := range r.cfg {
		if !r.used[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return errors.Wrapf(ErrInvalidConfig, "%s: unknown parameters %s", r.kind, strings.Join(unknown, ", "))
	}
	return nil
}
