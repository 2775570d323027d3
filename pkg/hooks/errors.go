package hooks

import "errors"

// ErrNotCallable is returned by Run when a registration cannot be invoked,
// such as a nil callback or a Method whose receiver lacks the named method
var ErrNotCallable = errors.New("callback is not callable")
