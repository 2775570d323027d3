package hooks

import (
	"fmt"
	"reflect"
)

// Callback is a unit of work attached to a tag. Call receives the value
// being threaded through the hook plus the extra arguments given to Run,
// and returns the value handed to the next callback.
//
// Callbacks are matched by ==, so implementations should be pointers or
// comparable values. Values whose dynamic type is not comparable never
// match in HasCallback or Remove
type Callback interface {
	Call(value any, args []any) (any, error)
}

// Namer is implemented by callbacks that carry a human readable name
type Namer interface {
	Name() string
}

// FilterFunc transforms a value
type FilterFunc func(value any, args []any) (any, error)

// ActionFunc runs for its side effects; the value passes through unchanged
type ActionFunc func(value any, args []any) error

type funcCallback struct {
	name string
	fn   FilterFunc
}

// Filter wraps fn as a Callback. Each call returns a distinct identity, so
// keep the result to remove it later
func Filter(name string, fn FilterFunc) Callback {
	return &funcCallback{name: name, fn: fn}
}

// Action wraps fn as a Callback that returns the incoming value unchanged
func Action(name string, fn ActionFunc) Callback {
	if fn == nil {
		return &funcCallback{name: name}
	}
	return &funcCallback{
		name: name,
		fn: func(value any, args []any) (any, error) {
			return value, fn(value, args)
		},
	}
}

func (c *funcCallback) Name() string { return c.name }

func (c *funcCallback) Call(value any, args []any) (any, error) {
	if c.fn == nil {
		return nil, fmt.Errorf("%w: %s has no function", ErrNotCallable, c.name)
	}
	return c.fn(value, args)
}

type methodCallback struct {
	receiver any
	method   string
}

// Method binds a method of receiver by name. Two Method callbacks are equal
// when they name the same method on the same receiver.
//
// The method is resolved when the hook runs. Its parameters are filled
// positionally from the value followed by the Run arguments; missing ones
// get zero values and surplus ones are dropped. The first non-error result
// becomes the new value (a method without one passes the value through) and
// a non-nil error result aborts the run
func Method(receiver any, method string) Callback {
	return methodCallback{receiver: receiver, method: method}
}

func (m methodCallback) Name() string {
	return fmt.Sprintf("%T.%s", m.receiver, m.method)
}

func (m methodCallback) Call(value any, args []any) (any, error) {
	if m.receiver == nil {
		return nil, fmt.Errorf("%w: nil receiver for method %s", ErrNotCallable, m.method)
	}
	fn := reflect.ValueOf(m.receiver).MethodByName(m.method)
	if !fn.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrNotCallable, m.Name())
	}
	return callReflect(fn, value, args)
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func callReflect(fn reflect.Value, value any, args []any) (any, error) {
	ft := fn.Type()
	in := make([]any, 0, len(args)+1)
	in = append(in, value)
	in = append(in, args...)

	fixed := ft.NumIn()
	if ft.IsVariadic() {
		fixed--
	}

	params := make([]reflect.Value, 0, len(in))
	for i := 0; i < fixed; i++ {
		var v any
		if i < len(in) {
			v = in[i]
		}
		pv, err := convertArg(v, ft.In(i))
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		params = append(params, pv)
	}
	if ft.IsVariadic() {
		elem := ft.In(ft.NumIn() - 1).Elem()
		for i := fixed; i < len(in); i++ {
			pv, err := convertArg(in[i], elem)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			params = append(params, pv)
		}
	}

	out := fn.Call(params)

	result, set := value, false
	for i, o := range out {
		if ft.Out(i) == errorType {
			if !o.IsNil() {
				return nil, o.Interface().(error)
			}
			continue
		}
		if !set {
			result, set = o.Interface(), true
		}
	}
	return result, nil
}

func convertArg(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if isNumeric(rv.Kind()) && isNumeric(t.Kind()) {
		return rv.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", v, t)
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// CallbackName returns a label for cb suitable for logs and listings
func CallbackName(cb Callback) string {
	if cb == nil {
		return "<nil>"
	}
	if n, ok := cb.(Namer); ok && n.Name() != "" {
		return n.Name()
	}
	return fmt.Sprintf("%T", cb)
}

// sameCallback reports whether a and b are the same callback without
// panicking on non-comparable dynamic types
func sameCallback(a, b Callback) (same bool) {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) || !reflect.TypeOf(a).Comparable() {
		return false
	}
	// Struct callbacks such as Method hold interface fields whose dynamic
	// values may not be comparable
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}
