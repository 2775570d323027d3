package journal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/hookbus/pkg/hooks"
)

// ErrClosed is returned when starting a recorder that has been stopped
var ErrClosed = errors.New("journal recorder is closed")

// DefaultBufferSize is used when NewRecorder is given a non-positive size
const DefaultBufferSize = 256

const writeTimeout = 5 * time.Second

// EntryWriter persists journal entries
type EntryWriter interface {
	Record(ctx context.Context, entry Entry) error
}

// Recorder is a hooks.Observer that writes run records from a background
// goroutine. When its buffer is full new records are dropped and counted
// rather than slowing the run that produced them.
type Recorder struct {
	writer  EntryWriter
	logger  *zap.Logger
	entries chan Entry
	now     func() time.Time

	mu      sync.Mutex
	started bool
	stopped bool
	stop    chan struct{}
	wg      sync.WaitGroup

	// gate orders ObserveRun sends against closing so that nothing is
	// queued after the final drain.
	gate    sync.RWMutex
	closed  atomic.Bool
	dropped atomic.Int64
	written atomic.Int64
}

var _ hooks.Observer = (*Recorder)(nil)

// NewRecorder creates a recorder writing to writer
func NewRecorder(writer EntryWriter, bufferSize int, logger *zap.Logger) *Recorder {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Recorder{
		writer:  writer,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
}

// Name identifies the recorder to the worker manager
func (r *Recorder) Name() string {
	return "journal-recorder"
}

// ObserveRun queues a record for writing
func (r *Recorder) ObserveRun(rec hooks.RunRecord) {
	r.gate.RLock()
	defer r.gate.RUnlock()

	if r.closed.Load() {
		r.dropped.Add(1)
		return
	}

	select {
	case r.entries <- NewEntry(rec, r.now()):
	default:
		if r.dropped.Add(1) == 1 {
			r.logger.Warn("Journal buffer full, dropping hook runs",
				zap.String("tag", string(rec.Tag)),
				zap.Int("buffer_size", cap(r.entries)))
		}
	}
}

// Start launches the writer goroutine. It returns immediately.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed.Load() {
		return ErrClosed
	}
	if r.started {
		return errors.New("journal recorder already started")
	}
	r.started = true

	r.wg.Add(1)
	go r.loop(ctx)

	return nil
}

// Stop flushes queued records and waits for the writer to exit
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	r.markClosed()
	close(r.stop)
	r.mu.Unlock()

	r.wg.Wait()
	// The writer may have exited on context cancellation before the last
	// records were queued.
	r.drain()

	r.logger.Info("Journal recorder stopped",
		zap.Int64("written", r.written.Load()),
		zap.Int64("dropped", r.dropped.Load()))
	return nil
}

// Dropped returns how many records were discarded
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Written returns how many records were persisted
func (r *Recorder) Written() int64 {
	return r.written.Load()
}

func (r *Recorder) loop(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case entry := <-r.entries:
			r.write(entry)
		case <-ctx.Done():
			r.markClosed()
			r.drain()
			return
		case <-r.stop:
			r.drain()
			return
		}
	}
}

// markClosed makes later ObserveRun calls count as dropped
func (r *Recorder) markClosed() {
	r.gate.Lock()
	r.closed.Store(true)
	r.gate.Unlock()
}

func (r *Recorder) drain() {
	for {
		select {
		case entry := <-r.entries:
			r.write(entry)
		default:
			return
		}
	}
}

func (r *Recorder) write(entry Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.writer.Record(ctx, entry); err != nil {
		r.logger.Error("Failed to record hook run",
			zap.String("tag", entry.Tag),
			zap.String("run_id", entry.ID),
			zap.Error(err))
		return
	}
	r.written.Add(1)
}
