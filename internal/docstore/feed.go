package docstore

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Kind names a collection (or the config document) in change notifications.
type Kind string

const (
	KindSources Kind = "monitored_urls"
	KindReports Kind = "intel_reports"
	KindConfig  Kind = "system_config"
)

// feed fans change notifications out to subscriptions.
//
// A single loop goroutine owns the subscription set; public methods talk to it
// over channels. Each subscription runs its own delivery goroutine fed by a
// one-slot signal channel, so bursts of writes coalesce into one reload and a
// callback may itself write to the store without blocking the loop.
type feed struct {
	subscribeCh   chan *Subscription
	unsubscribeCh chan *Subscription
	publishCh     chan Kind

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

func newFeed() *feed {
	f := &feed{
		subscribeCh:   make(chan *Subscription),
		unsubscribeCh: make(chan *Subscription),
		publishCh:     make(chan Kind, 64),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go f.run()
	return f
}

func (f *feed) run() {
	defer close(f.stopped)

	subs := make(map[*Subscription]struct{})
	for {
		select {
		case <-f.stopCh:
			for s := range subs {
				s.cancel()
			}
			return

		case s := <-f.subscribeCh:
			subs[s] = struct{}{}
			s.signal()

		case s := <-f.unsubscribeCh:
			delete(subs, s)

		case kind := <-f.publishCh:
			for s := range subs {
				if s.kind == kind {
					s.signal()
				}
			}
		}
	}
}

func (f *feed) publish(kind Kind) {
	if f.closed.Load() {
		return
	}
	select {
	case f.publishCh <- kind:
	case <-f.stopped:
	}
}

func (f *feed) subscribe(s *Subscription) {
	if f.closed.Load() {
		s.cancel()
		return
	}
	select {
	case f.subscribeCh <- s:
	case <-f.stopped:
		s.cancel()
	}
}

func (f *feed) unsubscribe(s *Subscription) {
	if f.closed.Load() {
		return
	}
	select {
	case f.unsubscribeCh <- s:
	case <-f.stopped:
	}
}

func (f *feed) close() {
	if f.closed.CompareAndSwap(false, true) {
		close(f.stopCh)
	}
	<-f.stopped
}

// Subscription is a live listener on one collection. Every notification
// carries the full current snapshot; the first arrives right after subscribing.
type Subscription struct {
	kind    Kind
	feed    *feed
	deliver func(ctx context.Context) error
	logger  *slog.Logger

	dirty  chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

func (s *Subscription) signal() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

func (s *Subscription) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.dirty:
		}
		if err := s.deliver(s.ctx); err != nil && s.ctx.Err() == nil {
			s.logger.Warn("docstore: snapshot load failed",
				slog.String("collection", string(s.kind)),
				slog.String("error", err.Error()))
		}
	}
}

// Unsubscribe stops the subscription. Once it returns the callback is not
// running and will not run again. It must not be called from the callback.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.feed.unsubscribe(s)
	<-s.done
}

// guarded runs fn unless the subscription was closed.
func (s *Subscription) guarded(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	fn()
}

func (s *Store) subscribe(kind Kind, deliver func(ctx context.Context, sub *Subscription) error) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		kind:   kind,
		feed:   s.feed,
		logger: s.logger,
		dirty:  make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	sub.deliver = func(ctx context.Context) error { return deliver(ctx, sub) }
	go sub.loop()
	s.feed.subscribe(sub)
	return sub
}
