// Package filters holds the catalog of built-in callbacks that hookd can
// bind to tags from configuration.
package filters

import (
	"fmt"
	"sort"
	"strings"

	"github.com/garyjia/hookbus/pkg/hooks"
)

// Each built-in is a single value so that removing it by identity works.
var catalog = map[string]hooks.Callback{
	"text.trim":     hooks.Filter("text.trim", stringFilter(strings.TrimSpace)),
	"text.upper":    hooks.Filter("text.upper", stringFilter(strings.ToUpper)),
	"text.lower":    hooks.Filter("text.lower", stringFilter(strings.ToLower)),
	"text.prefix":   hooks.Filter("text.prefix", prefix),
	"text.suffix":   hooks.Filter("text.suffix", suffix),
	"text.replace":  hooks.Filter("text.replace", replace),
	"math.add":      hooks.Filter("math.add", add),
	"value.default": hooks.Filter("value.default", defaultValue),
}

// Lookup returns the built-in callback registered under name
func Lookup(name string) (hooks.Callback, bool) {
	cb, ok := catalog[name]
	return cb, ok
}

// Names lists the built-in callbacks
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Binding attaches a built-in to a tag
type Binding struct {
	Tag      string
	Name     string
	Priority int
}

// Bind attaches every binding to d. Unknown names are reported before any
// binding is applied.
func Bind(d *hooks.Dispatcher, bindings []Binding) error {
	callbacks := make([]hooks.Callback, len(bindings))
	for i, b := range bindings {
		cb, ok := Lookup(b.Name)
		if !ok {
			return fmt.Errorf("unknown filter %q for tag %q, available: %s",
				b.Name, b.Tag, strings.Join(Names(), ", "))
		}
		callbacks[i] = cb
	}
	for i, b := range bindings {
		d.AddAt(hooks.Tag(b.Tag), callbacks[i], b.Priority)
	}
	return nil
}

func stringFilter(fn func(string) string) hooks.FilterFunc {
	return func(value any, args []any) (any, error) {
		s, err := asString(value)
		if err != nil {
			return nil, err
		}
		return fn(s), nil
	}
}

func prefix(value any, args []any) (any, error) {
	s, err := asString(value)
	if err != nil {
		return nil, err
	}
	return stringArg(args, 0) + s, nil
}

func suffix(value any, args []any) (any, error) {
	s, err := asString(value)
	if err != nil {
		return nil, err
	}
	return s + stringArg(args, 0), nil
}

// replace substitutes every occurrence of args[0] with args[1].
func replace(value any, args []any) (any, error) {
	s, err := asString(value)
	if err != nil {
		return nil, err
	}
	if len(args) < 2 {
		return nil, fmt.Errorf("text.replace needs old and new arguments, got %d", len(args))
	}
	return strings.ReplaceAll(s, stringArg(args, 0), stringArg(args, 1)), nil
}

// add sums the value and every numeric argument.
func add(value any, args []any) (any, error) {
	total, err := asFloat(value)
	if err != nil {
		return nil, err
	}
	for i, arg := range args {
		n, err := asFloat(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		total += n
	}
	return total, nil
}

// defaultValue replaces a nil or empty string value with args[0].
func defaultValue(value any, args []any) (any, error) {
	if len(args) == 0 {
		return value, nil
	}
	if value == nil {
		return args[0], nil
	}
	if s, ok := value.(string); ok && s == "" {
		return args[0], nil
	}
	return value, nil
}

func asString(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return "", fmt.Errorf("expected text, got %T", value)
	}
}

func stringArg(args []any, i int) string {
	if i >= len(args) || args[i] == nil {
		return ""
	}
	if s, ok := args[i].(string); ok {
		return s
	}
	return fmt.Sprint(args[i])
}

func asFloat(value any) (float64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("expected number, got %T", value)
	}
}
