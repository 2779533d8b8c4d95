// Package batch provides a periodic batching scheduler that buffers items and hands
// bounded snapshots of them to a delivery function.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/newrelic/nrlogsink/common"
	"github.com/newrelic/nrlogsink/logger"
)

var log = logger.NewLogrusLogger(logger.WithDebugLevel())

// ErrShutdownTimeout is returned by Close when the final flush did not complete within the grace period.
var ErrShutdownTimeout = errors.New("batch: final flush did not complete before the shutdown deadline")

// ErrStopped is returned by Flush once the scheduler is shutting down.
var ErrStopped = errors.New("batch: scheduler stopped")

// State is the lifecycle state of a Scheduler.
type State int

const (
	Idle State = iota
	Accumulating
	Flushing
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Accumulating:
		return "Accumulating"
	case Flushing:
		return "Flushing"
	case Draining:
		return "Draining"
	case Stopped:
		return "Stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Flush reasons passed to observers.
const (
	ReasonSize      = "size"
	ReasonTimer     = "timer"
	ReasonManual    = "manual"
	ReasonDrain     = "drain"
	ReasonHeartbeat = "heartbeat"
)

// Observer is notified of scheduler activity. Calls are made from the scheduler goroutine,
// except OnReject which is called from the producer.
type Observer interface {
	OnFlush(reason string, items int, took time.Duration)
	OnReject()
}

// DeliverFunc receives one immutable snapshot of at most the batch size limit items.
// A heartbeat snapshot is empty. ctx is cancelled when shutdown gives up on the delivery.
type DeliverFunc[T any] func(ctx context.Context, items []T)

// Scheduler buffers items and delivers them in batches, when the batch size limit is
// reached or when the period elapses, whichever comes first. At most one delivery runs
// at a time; triggers that fire meanwhile are coalesced into the next flush.
type Scheduler[T any] struct {
	deliver   DeliverFunc[T]
	limit     int
	period    time.Duration
	grace     time.Duration
	heartbeat time.Duration
	observer  Observer
	log       logrus.FieldLogger

	mu          sync.Mutex
	buf         []T
	state       State
	lastFlush   time.Time
	flushedOnce bool

	trigger  chan struct{}
	requests chan chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Scheduler.
type Option func(*options)

type options struct {
	limit     int
	period    time.Duration
	grace     time.Duration
	heartbeat time.Duration
	observer  Observer
	log       logrus.FieldLogger
}

// WithBatchSizeLimit sets the maximum number of items per delivery.
func WithBatchSizeLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.limit = n
		}
	}
}

// WithPeriod sets the time between timer driven flushes.
func WithPeriod(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.period = d
		}
	}
}

// WithShutdownGrace bounds how long Close waits for the final flush.
func WithShutdownGrace(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.grace = d
		}
	}
}

// WithHeartbeat enables empty deliveries on timer ticks once at least one flush happened
// and interval elapsed since the last one. The check lags by up to one period.
func WithHeartbeat(interval time.Duration) Option {
	return func(o *options) { o.heartbeat = interval }
}

// WithObserver registers an observer.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.log = l }
}

// New creates a Scheduler and starts its worker goroutine.
func New[T any](deliver DeliverFunc[T], opts ...Option) *Scheduler[T] {
	o := options{
		limit:  common.DefaultBatchSizeLimit,
		period: common.DefaultPeriod,
		grace:  common.DefaultShutdownGrace,
		log:    log,
	}
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler[T]{
		deliver:   deliver,
		limit:     o.limit,
		period:    o.period,
		grace:     o.grace,
		heartbeat: o.heartbeat,
		observer:  o.observer,
		log:       o.log,
		trigger:   make(chan struct{}, 1),
		requests:  make(chan chan struct{}),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	go s.run()
	return s
}

// Add buffers item. It never blocks on delivery. It returns false when the scheduler is
// shutting down; such items are not delivered.
func (s *Scheduler[T]) Add(item T) bool {
	s.mu.Lock()
	if s.state == Draining || s.state == Stopped {
		s.mu.Unlock()
		if s.observer != nil {
			s.observer.OnReject()
		}
		s.log.Debug("item rejected, scheduler is shutting down")
		return false
	}
	s.buf = append(s.buf, item)
	if s.state == Idle {
		s.state = Accumulating
	}
	full := len(s.buf) >= s.limit
	s.mu.Unlock()

	if full {
		s.signal()
	}
	return true
}

func (s *Scheduler[T]) signal() {
	select {
	case s.trigger <- struct{}{}:
	default:
		// a flush is already pending
	}
}

// Len returns the number of buffered items.
func (s *Scheduler[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// State returns the current state.
func (s *Scheduler[T]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Flush delivers everything buffered and waits for it, or for ctx.
func (s *Scheduler[T]) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case s.requests <- ack:
	case <-s.stop:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the timer, delivers what is still buffered and waits for that delivery for
// at most the shutdown grace period, or until ctx is done. Items still buffered when the
// wait ends are lost and ErrShutdownTimeout is returned. Items added after Close are rejected.
func (s *Scheduler[T]) Close(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.state = Draining
		s.mu.Unlock()
		close(s.stop)
	})

	timer := time.NewTimer(s.grace)
	defer timer.Stop()

	select {
	case <-s.done:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	s.cancel()
	s.log.WithField("items", s.Len()).Error("final flush did not complete in time, buffered items are lost")
	return ErrShutdownTimeout
}

func (s *Scheduler[T]) run() {
	defer close(s.done)
	defer s.cancel()

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.flush(ReasonTimer)
		case <-s.trigger:
			s.flush(ReasonSize)
		case ack := <-s.requests:
			s.flush(ReasonManual)
			close(ack)
		case <-s.stop:
			s.flush(ReasonDrain)
			s.mu.Lock()
			s.state = Stopped
			s.buf = nil
			s.mu.Unlock()
			return
		}
	}
}

// flush delivers snapshots until the buffer holds less than a full batch. Timer, manual and
// drain flushes empty the buffer completely.
func (s *Scheduler[T]) flush(reason string) {
	for {
		if reason == ReasonDrain && s.ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		n := min(len(s.buf), s.limit)
		if n == 0 {
			heartbeat := reason == ReasonTimer && s.heartbeatDue()
			if heartbeat {
				s.state = Flushing
			}
			s.mu.Unlock()
			if heartbeat {
				s.deliverSnapshot(ReasonHeartbeat, []T{})
				s.finish()
			}
			return
		}
		snapshot := s.buf[:n:n]
		s.buf = s.buf[n:]
		if len(s.buf) == 0 {
			s.buf = nil
		}
		if s.state != Draining {
			s.state = Flushing
		}
		s.mu.Unlock()

		s.deliverSnapshot(reason, snapshot)
		remaining := s.finish()

		if remaining == 0 || (reason == ReasonSize && remaining < s.limit) {
			return
		}
	}
}

func (s *Scheduler[T]) heartbeatDue() bool {
	return s.heartbeat > 0 && s.flushedOnce && time.Since(s.lastFlush) >= s.heartbeat
}

func (s *Scheduler[T]) finish() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFlush = time.Now()
	s.flushedOnce = true
	if s.state == Flushing {
		if len(s.buf) > 0 {
			s.state = Accumulating
		} else {
			s.state = Idle
		}
	}
	return len(s.buf)
}

func (s *Scheduler[T]) deliverSnapshot(reason string, items []T) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.WithFields(logrus.Fields{
				"items":  len(items),
				"reason": reason,
				"panic":  r,
			}).Error("batch delivery panicked, batch dropped")
		}
		if s.observer != nil {
			s.observer.OnFlush(reason, len(items), time.Since(start))
		}
	}()
	s.deliver(s.ctx, items)
}
