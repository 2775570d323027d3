package hooks

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultPriority is the priority used by Add and Remove
const DefaultPriority = 10

// Tag names a hook
type Tag string

// String returns the string representation of the tag
func (t Tag) String() string {
	return string(t)
}

// Registration describes one callback attached to a tag
type Registration struct {
	Priority int      `json:"priority"`
	Name     string   `json:"name"`
	Callback Callback `json:"-"`
}

type registration struct {
	callback Callback
	// removed is set when the registration is detached so that a run holding
	// a snapshot of its bucket skips it
	removed atomic.Bool
}

type hook struct {
	buckets map[int][]*registration
	// order lists bucket priorities in creation order; ascending while merged
	order  []int
	merged bool
}

func (h *hook) dropBucket(priority int) {
	for _, r := range h.buckets[priority] {
		r.removed.Store(true)
	}
	delete(h.buckets, priority)
	for i, p := range h.order {
		if p == priority {
			h.order = append(h.order[:i:i], h.order[i+1:]...)
			break
		}
	}
}

// Dispatcher holds tagged callbacks and runs them in priority order.
//
// Its maps are guarded by a mutex that is never held while a callback
// executes, so callbacks may freely add, remove or run hooks. The stack of
// running hooks is shared by every goroutine using the Dispatcher; hosts
// that run hooks concurrently and rely on Current or Doing must serialize
// their runs
type Dispatcher struct {
	mu     sync.Mutex
	hooks  map[Tag]*hook
	stack  []Tag
	counts map[Tag]int

	logger    *zap.Logger
	observers []Observer
}

// Option configures the dispatcher
type Option func(*Dispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithObserver adds an observer notified after every run
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		if o != nil {
			d.observers = append(d.observers, o)
		}
	}
}

// New creates an empty dispatcher
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		hooks:  make(map[Tag]*hook),
		counts: make(map[Tag]int),
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Add attaches cb to tag at DefaultPriority
func (d *Dispatcher) Add(tag Tag, cb Callback) *Dispatcher {
	return d.AddAt(tag, cb, DefaultPriority)
}

// AddAt attaches cb to tag at priority. The same callback may be added any
// number of times and runs once per registration
func (d *Dispatcher) AddAt(tag Tag, cb Callback, priority int) *Dispatcher {
	d.mu.Lock()
	h := d.hooks[tag]
	if h == nil {
		h = &hook{buckets: make(map[int][]*registration)}
		d.hooks[tag] = h
	}
	if _, ok := h.buckets[priority]; !ok {
		h.order = append(h.order, priority)
	}
	h.buckets[priority] = append(h.buckets[priority], &registration{callback: cb})
	h.merged = false
	d.mu.Unlock()

	d.logger.Debug("Callback added",
		zap.String("tag", string(tag)),
		zap.Int("priority", priority),
		zap.String("callback", CallbackName(cb)),
	)

	return d
}

// Has reports whether any callback is attached to tag
func (d *Dispatcher) Has(tag Tag) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	h := d.hooks[tag]
	return h != nil && len(h.buckets) > 0
}

// HasCallback returns the priority at which cb is attached to tag. The order
// in which priority buckets are searched is unspecified; when cb is attached
// at several priorities any one of them may be returned
func (d *Dispatcher) HasCallback(tag Tag, cb Callback) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	h := d.hooks[tag]
	if h == nil {
		return 0, false
	}
	for _, p := range h.order {
		for _, r := range h.buckets[p] {
			if sameCallback(r.callback, cb) {
				return p, true
			}
		}
	}
	return 0, false
}

// Run threads value through the callbacks attached to tag and returns the
// result. args are handed to every callback after the value. A tag without
// callbacks returns value unchanged.
//
// The run counter is incremented before any callback fires. The first
// callback error stops the run and is returned wrapped; callbacks that
// already ran keep their effects
func (d *Dispatcher) Run(tag Tag, value any, args ...any) (any, error) {
	start := time.Now()

	d.mu.Lock()
	d.counts[tag]++
	h := d.hooks[tag]
	if h == nil || len(h.buckets) == 0 {
		depth := len(d.stack) + 1
		d.mu.Unlock()
		d.notify(RunRecord{Tag: tag, Depth: depth, Duration: time.Since(start)})
		return value, nil
	}
	d.stack = append(d.stack, tag)
	depth := len(d.stack)
	d.mu.Unlock()

	result, fired, err := d.dispatch(tag, value, args)

	d.notify(RunRecord{
		Tag:      tag,
		Fired:    fired,
		Depth:    depth,
		Duration: time.Since(start),
		Err:      err,
	})

	return result, err
}

func (d *Dispatcher) dispatch(tag Tag, value any, args []any) (any, int, error) {
	defer d.pop(tag)

	fired := 0
	prev, started := 0, false
	for {
		priority, regs, ok := d.nextBucket(tag, prev, started)
		if !ok {
			return value, fired, nil
		}

		for _, r := range regs {
			if r.removed.Load() {
				continue
			}

			fired++
			var err error
			if r.callback == nil {
				err = ErrNotCallable
			} else {
				value, err = r.callback.Call(value, args)
			}
			if err != nil {
				d.logger.Error("Callback failed",
					zap.String("tag", string(tag)),
					zap.Int("priority", priority),
					zap.String("callback", CallbackName(r.callback)),
					zap.Error(err),
				)
				return nil, fired, fmt.Errorf("hook %s: callback %s at priority %d: %w",
					tag, CallbackName(r.callback), priority, err)
			}
		}

		prev, started = priority, true
	}
}

// nextBucket returns a copy of the lowest bucket above after, sorting the
// tag's priorities first if they changed since the last run
func (d *Dispatcher) nextBucket(tag Tag, after int, started bool) (int, []*registration, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	h := d.hooks[tag]
	if h == nil {
		return 0, nil, false
	}
	if !h.merged {
		sort.Ints(h.order)
		h.merged = true
	}

	i := 0
	if started {
		i = sort.SearchInts(h.order, after)
		if i < len(h.order) && h.order[i] == after {
			i++
		}
	}
	if i >= len(h.order) {
		return 0, nil, false
	}

	priority := h.order[i]
	bucket := h.buckets[priority]
	snapshot := make([]*registration, len(bucket))
	copy(snapshot, bucket)
	return priority, snapshot, true
}

func (d *Dispatcher) pop(tag Tag) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := len(d.stack) - 1; i >= 0; i-- {
		if d.stack[i] == tag {
			d.stack = append(d.stack[:i], d.stack[i+1:]...)
			return
		}
	}
}

func (d *Dispatcher) notify(rec RunRecord) {
	for _, o := range d.observers {
		o.ObserveRun(rec)
	}
}

// Remove detaches the first registration of cb at DefaultPriority
func (d *Dispatcher) Remove(tag Tag, cb Callback) bool {
	return d.RemoveAt(tag, cb, DefaultPriority)
}

// RemoveAt detaches the first registration of cb in the priority bucket of
// tag and reports whether one was found
func (d *Dispatcher) RemoveAt(tag Tag, cb Callback, priority int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	h := d.hooks[tag]
	if h == nil {
		return false
	}
	bucket, ok := h.buckets[priority]
	if !ok {
		return false
	}

	for i, r := range bucket {
		if !sameCallback(r.callback, cb) {
			continue
		}

		r.removed.Store(true)
		if len(bucket) == 1 {
			h.dropBucket(priority)
		} else {
			rest := make([]*registration, 0, len(bucket)-1)
			rest = append(rest, bucket[:i]...)
			rest = append(rest, bucket[i+1:]...)
			h.buckets[priority] = rest
		}
		h.merged = false
		if len(h.buckets) == 0 {
			delete(d.hooks, tag)
		}

		d.logger.Debug("Callback removed",
			zap.String("tag", string(tag)),
			zap.Int("priority", priority),
			zap.String("callback", CallbackName(cb)),
		)
		return true
	}

	return false
}

// RemoveAll detaches every callback of tag. It always reports true
func (d *Dispatcher) RemoveAll(tag Tag) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	h := d.hooks[tag]
	if h == nil {
		return true
	}
	for _, p := range append([]int(nil), h.order...) {
		h.dropBucket(p)
	}
	h.merged = false
	delete(d.hooks, tag)

	d.logger.Debug("Callbacks removed", zap.String("tag", string(tag)))
	return true
}

// RemoveAllAt detaches the callbacks of tag at priority, leaving other
// priorities intact. It always reports true
func (d *Dispatcher) RemoveAllAt(tag Tag, priority int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	h := d.hooks[tag]
	if h == nil {
		return true
	}
	h.dropBucket(priority)
	h.merged = false
	if len(h.buckets) == 0 {
		delete(d.hooks, tag)
	}

	d.logger.Debug("Callbacks removed",
		zap.String("tag", string(tag)),
		zap.Int("priority", priority),
	)
	return true
}

// Current returns the most recently started hook that is still running
func (d *Dispatcher) Current() (Tag, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.stack) == 0 {
		return "", false
	}
	return d.stack[len(d.stack)-1], true
}

// Doing reports whether any hook is running
func (d *Dispatcher) Doing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.stack) > 0
}

// DoingTag reports whether tag is running, either as the current hook or
// as an outer hook whose callback started the current one
func (d *Dispatcher) DoingTag(tag Tag) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, t := range d.stack {
		if t == tag {
			return true
		}
	}
	return false
}

// Did returns how many times tag has been run
func (d *Dispatcher) Did(tag Tag) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.counts[tag]
}

// Tags returns the tags with at least one callback, sorted by name
func (d *Dispatcher) Tags() []Tag {
	d.mu.Lock()
	defer d.mu.Unlock()

	tags := make([]Tag, 0, len(d.hooks))
	for tag, h := range d.hooks {
		if len(h.buckets) > 0 {
			tags = append(tags, tag)
		}
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// Registrations lists the callbacks of tag in the order Run would call them
func (d *Dispatcher) Registrations(tag Tag) []Registration {
	d.mu.Lock()
	defer d.mu.Unlock()

	h := d.hooks[tag]
	if h == nil {
		return nil
	}

	priorities := append([]int(nil), h.order...)
	sort.Ints(priorities)

	var result []Registration
	for _, p := range priorities {
		for _, r := range h.buckets[p] {
			result = append(result, Registration{
				Priority: p,
				Name:     CallbackName(r.callback),
				Callback: r.callback,
			})
		}
	}
	return result
}

// Counts returns a copy of the run counters
func (d *Dispatcher) Counts() map[Tag]int {
	d.mu.Lock()
	defer d.mu.Unlock()

	counts := make(map[Tag]int, len(d.counts))
	for tag, n := range d.counts {
		counts[tag] = n
	}
	return counts
}

// Stack returns the running hooks, outermost first
func (d *Dispatcher) Stack() []Tag {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]Tag(nil), d.stack...)
}
