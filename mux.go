package artiecan

import (
	"sync"
	"time"
)

// Mux multiplexes frames from a Backend to any number of subscribers via
// filters.
//
// It owns the backend for receiving and runs a single background goroutine
// to poll Receive and fan out frames. This is an application-side
// convenience for processes that share one backend across consumers; the
// protocol layers in acp never use it and stay single-threaded.
//
// Send is not proxied; callers keep using the original backend to Send.
type Mux struct {
	backend Backend
	stop    chan struct{}

	mu   sync.RWMutex
	subs map[uint64]*subscriber
	next uint64
}

type subscriber struct {
	filter FrameFilter
	ch     chan Frame
}

const muxPollInterval = 50 * time.Millisecond

// NewMux creates and starts a multiplexer bound to the given backend.
func NewMux(backend Backend) *Mux {
	m := &Mux{
		backend: backend,
		stop:    make(chan struct{}),
		subs:    make(map[uint64]*subscriber),
	}
	go m.run()
	return m
}

// Close stops the background reader and closes all subscriber channels.
func (m *Mux) Close() error {
	select {
	case <-m.stop:
		return nil
	default:
	}
	close(m.stop)
	m.closeSubs()
	return nil
}

// Subscribe registers a new subscriber with the provided filter and channel
// buffer. The returned channel receives frames that match the filter. The
// cancel function should be called when no longer needed; it closes the
// channel.
func (m *Mux) Subscribe(filter FrameFilter, buffer int) (<-chan Frame, func()) {
	if buffer < 0 {
		buffer = 0
	}
	s := &subscriber{filter: filter, ch: make(chan Frame, buffer)}
	m.mu.Lock()
	id := m.next
	m.next++
	m.subs[id] = s
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		if cur, ok := m.subs[id]; ok && cur == s {
			close(cur.ch)
			delete(m.subs, id)
		}
		m.mu.Unlock()
	}
	return s.ch, cancel
}

func (m *Mux) closeSubs() {
	m.mu.Lock()
	for id, s := range m.subs {
		close(s.ch)
		delete(m.subs, id)
	}
	m.mu.Unlock()
}

func (m *Mux) run() {
	for {
		select {
		case <-m.stop:
			return
		default:
		}
		f, err := m.backend.Receive(muxPollInterval)
		if err == ErrTimeout {
			continue
		}
		if err != nil {
			// Propagate closure to subscribers and exit.
			m.closeSubs()
			return
		}
		m.mu.RLock()
		for _, s := range m.subs {
			if s.filter == nil || s.filter(f) {
				select {
				case s.ch <- f:
				default:
					// Drop if subscriber is slow and channel is full.
				}
			}
		}
		m.mu.RUnlock()
	}
}
