package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	// Async delivers events from a background goroutine. When false, Emit
	// calls the sink inline.
	Async      bool
	BufferSize int
	DropIfFull bool
	// SinkTimeout bounds each sink call. Zero means no bound.
	SinkTimeout time.Duration
}

// Dispatcher forwards activity events to a sink. Sink failures are logged
// and swallowed.
type Dispatcher struct {
	cfg       Config
	sink      Sink
	log       zerolog.Logger
	ch        chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	failed    atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts a dispatcher. A nil sink drops everything.
func NewDispatcher(cfg Config, sink Sink, logger zerolog.Logger) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:  cfg,
		sink: sink,
		log:  logger,
		done: make(chan struct{}),
	}

	if cfg.Async {
		d.ch = make(chan Event, cfg.BufferSize)
		d.wg.Add(1)
		go d.run()
	}

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.deliver(context.Background(), event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.deliver(context.Background(), event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event Event) {
	if d.cfg.SinkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.SinkTimeout)
		defer cancel()
	}

	if err := d.sink.LogActivity(ctx, event); err != nil {
		d.failed.Add(1)
		d.log.Warn().
			Err(err).
			Str("type", event.Type).
			Str("user_id", event.UserID).
			Msg("audit: activity sink failed")
	}
}

// Emit hands event to the sink. It never returns an error and, in async
// mode with DropIfFull, never blocks.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if !d.cfg.Async {
		d.deliver(context.WithoutCancel(ctx), event)
		return
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- event:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
	case <-d.done:
	}
}

// Close drains buffered events and stops the worker.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped returns how many events were discarded because the buffer was full.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Failed returns how many sink calls returned an error.
func (d *Dispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}
