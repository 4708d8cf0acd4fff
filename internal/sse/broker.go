// Package sse pushes dashboard change notifications to a browser session over
// Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Event is one SSE message.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Event types.
const (
	TypeSourcesChanged = "sources.changed"
	TypeReportsChanged = "reports.changed"
	TypeConfigChanged  = "config.changed"
	TypeStatusChanged  = "status.changed"
	TypeViewRefresh    = "view.refresh"
	TypeSessionClosed  = "session.closed"
)

const (
	streamBuffer  = 64
	keepAliveTick = 25 * time.Second
)

func (e Event) frame() ([]byte, error) {
	data := e.Data
	if data == nil {
		data = struct{}{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("sse: encode %s: %w", e.Type, err)
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", e.Type, payload), nil
}

// Stream is one subscriber. Frames arrive on C until the stream or the
// broker is closed.
type Stream struct {
	C <-chan []byte

	out    chan []byte
	broker *Broker
}

// Close detaches the stream from the broker.
func (s *Stream) Close() {
	s.broker.do(func(st *state) {
		if _, ok := st.streams[s]; ok {
			delete(st.streams, s)
			close(s.out)
		}
	})
}

// state is owned by the broker loop.
type state struct {
	streams     map[*Stream]struct{}
	lastRefresh time.Time
	deferred    *time.Timer
}

// Broker fans the events of one session out to its open streams.
//
// The loop goroutine owns all state; callers submit closures to it. A view
// refresh follows every change, at most one per throttle window; a refresh
// that falls inside the window is deferred to its end, never dropped.
type Broker struct {
	throttle time.Duration

	ops   chan func(*state)
	flush chan struct{}
	stop  chan struct{}
	done  chan struct{}
}

// NewBroker starts a broker that emits at most one view.refresh per
// refreshThrottle.
func NewBroker(refreshThrottle time.Duration) *Broker {
	if refreshThrottle <= 0 {
		refreshThrottle = 500 * time.Millisecond
	}
	b := &Broker{
		throttle: refreshThrottle,
		ops:      make(chan func(*state), 256),
		flush:    make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go b.loop()
	return b
}

func (b *Broker) loop() {
	defer close(b.done)
	st := &state{streams: make(map[*Stream]struct{})}

	for {
		select {
		case op := <-b.ops:
			op(st)
		case <-b.flush:
			st.deferred = nil
			b.refresh(st)
		case <-b.stop:
			if st.deferred != nil {
				st.deferred.Stop()
			}
			b.send(st, Event{Type: TypeSessionClosed})
			for s := range st.streams {
				close(s.out)
			}
			return
		}
	}
}

// do runs op on the loop. It is a no-op once the broker is closed.
func (b *Broker) do(op func(*state)) {
	select {
	case <-b.stop:
	case <-b.done:
	case b.ops <- op:
	}
}

// send writes e to every stream; a stream with a full buffer misses it.
func (b *Broker) send(st *state, e Event) {
	frame, err := e.frame()
	if err != nil {
		return
	}
	for s := range st.streams {
		select {
		case s.out <- frame:
		default:
		}
	}
}

func (b *Broker) refresh(st *state) {
	st.lastRefresh = time.Now()
	b.send(st, Event{Type: TypeViewRefresh})
}

// Subscribe opens a stream. On a closed broker the stream is already closed.
func (b *Broker) Subscribe() *Stream {
	out := make(chan []byte, streamBuffer)
	s := &Stream{C: out, out: out, broker: b}

	added := make(chan bool, 1)
	b.do(func(st *state) {
		st.streams[s] = struct{}{}
		added <- true
	})
	select {
	case <-added:
	case <-b.done:
		select {
		case <-added:
		default:
			close(out)
		}
	}
	return s
}

// ClientCount returns the number of open streams.
func (b *Broker) ClientCount() int {
	n := make(chan int, 1)
	b.do(func(st *state) { n <- len(st.streams) })
	select {
	case v := <-n:
		return v
	case <-b.done:
		return 0
	}
}

// Publish sends e to every stream as is.
func (b *Broker) Publish(e Event) {
	b.do(func(st *state) { b.send(st, e) })
}

// PublishChange sends a change event of the given type followed by a
// throttled view.refresh.
func (b *Broker) PublishChange(typ string) {
	b.do(func(st *state) {
		b.send(st, Event{Type: typ})
		wait := b.throttle - time.Since(st.lastRefresh)
		switch {
		case wait <= 0:
			b.refresh(st)
		case st.deferred == nil:
			st.deferred = time.AfterFunc(wait, func() {
				select {
				case b.flush <- struct{}{}:
				default:
				}
			})
		}
	})
}

// Close sends session.closed, ends every stream and stops the loop. Later
// calls are no-ops.
func (b *Broker) Close() {
	select {
	case <-b.stop:
	default:
		close(b.stop)
	}
	<-b.done
}

// ServeHTTP streams events to one client until the request ends or the
// broker closes. Idle streams get a comment line every 25s.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	stream := b.Subscribe()
	defer stream.Close()

	ping := time.NewTicker(keepAliveTick)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": keep-alive\n\n"))
		case frame, ok := <-stream.C:
			if !ok {
				return
			}
			_, _ = w.Write(frame)
		}
		flusher.Flush()
	}
}
