package middleware

import (
	"context"
	"sync"

	domrepo "SigFlow/internal/domain/repository"
	applogger "SigFlow/pkg/logger"
)

// event is one queued broadcast emission.
type event struct {
	channel string
	name    string
	payload interface{}
}

// MonitorEmitter decouples the pipeline from its monitoring side-channel.
// Emissions are buffered and drained by a background goroutine; a full buffer
// drops the event and a sink failure is logged and counted, never returned.
// The primary pipeline must not know or care whether broadcasting works.
type MonitorEmitter struct {
	sink    domrepo.Broadcaster
	metrics domrepo.Metrics
	l       *applogger.Logger
	bufCh   chan event
	stopCh  chan struct{}
	started bool
	mu      sync.Mutex
	wg      sync.WaitGroup
}

type EmitterOption func(*MonitorEmitter)

// WithEmitterBuffer sets the emission buffer size.
func WithEmitterBuffer(n int) EmitterOption {
	return func(e *MonitorEmitter) {
		if n > 0 {
			e.bufCh = make(chan event, n)
		}
	}
}

// NewMonitorEmitter creates a new emitter over a broadcast sink.
func NewMonitorEmitter(sink domrepo.Broadcaster, metrics domrepo.Metrics, l *applogger.Logger, opts ...EmitterOption) *MonitorEmitter {
	e := &MonitorEmitter{
		sink:    sink,
		metrics: metrics,
		l:       l,
		bufCh:   make(chan event, 1024),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the background drain loop.
func (e *MonitorEmitter) Start(ctx context.Context) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case <-e.stopCh:
				return
			case <-ctx.Done():
				return
			case ev := <-e.bufCh:
				if err := e.sink.Publish(ctx, ev.channel, ev.name, ev.payload); err != nil {
					e.metrics.RecordError("broadcast")
					if e.l != nil {
						e.l.Warn("broadcast publish failed",
							applogger.String("channel", ev.channel),
							applogger.String("event", ev.name),
							applogger.Error(err),
						)
					}
					continue
				}
				e.metrics.RecordBroadcast(ev.channel)
			}
		}
	}()
}

// Stop stops the drain loop. Buffered events are discarded.
func (e *MonitorEmitter) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	e.mu.Unlock()
	close(e.stopCh)
	e.wg.Wait()
}

// Emit enqueues an event without blocking. A full buffer drops the event and
// bumps the error counter; callers never see a failure.
func (e *MonitorEmitter) Emit(channel, name string, payload interface{}) {
	select {
	case e.bufCh <- event{channel: channel, name: name, payload: payload}:
	default:
		e.metrics.RecordError("broadcast_buffer_full")
	}
}
