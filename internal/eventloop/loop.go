// Package eventloop implements the cross-platform readiness-event loop of
// §4.3: one shared Loop type multiplexing registered file descriptors and
// timers over a platform backend selected at build time (epoll on Linux,
// kqueue on BSD/Darwin, poll elsewhere) — the idiomatic Go substitute for
// `#ifdef`-selected C backends, per §9's Design Notes and grounded on
// `searchktools-fast-server`'s poller.Poller sketch (Add/Wait/Remove/Close
// over raw epoll/kqueue syscalls).
package eventloop

import (
	"container/heap"
	"errors"
	"sync"
	"time"
)

// Event is a readiness bitmask delivered to a registered Callback.
type Event uint8

const (
	Readable Event = 1 << iota
	Writable
	ErrorEvent // socket error, hang-up, or invalid fd — always delivered regardless of subscription
	Timeout    // synthetic event for an expired timer; fd is -1
)

// Callback receives (fd, events, user) for a ready file descriptor, or
// (-1, Timeout, user) for an expired timer. Callbacks run synchronously on
// the loop goroutine and must not call Run on the Loop they were invoked
// from; AddFD, ModifyFD, RemoveFD and the timer methods may be called from a
// callback, since the Loop's lock is not held while a callback runs.
type Callback func(fd int, events Event, user any)

// Capacity limits from §4.3.
const (
	MaxEventsPerIteration = 1024
	MaxLiveTimers         = 64
)

var (
	// ErrFDExists is returned by AddFD for an already-registered fd.
	ErrFDExists = errors.New("eventloop: fd already registered")
	// ErrTimerCapacity is returned by AddTimeout once MaxLiveTimers is reached.
	ErrTimerCapacity = errors.New("eventloop: timer capacity exceeded")
	// ErrFDNotFound is returned by ModifyFD/RemoveFD for an unregistered fd.
	ErrFDNotFound = errors.New("eventloop: fd not registered")
)

type handler struct {
	mask Event
	cb   Callback
	user any
}

// backend is the minimal per-platform readiness multiplexer the shared Loop
// drives. Each platform file in this package implements exactly one.
type backend interface {
	add(fd int, mask Event) error
	modify(fd int, mask Event) error
	remove(fd int) error
	wait(timeoutMS int, out []readyEvent) (int, error)
	close() error
}

type readyEvent struct {
	fd   int
	mask Event
}

// Loop is one encapsulated readiness-event loop. Create one per server
// instance — there is no package-level mutable state (§9).
type Loop struct {
	backend backend

	mu       sync.Mutex
	handlers map[int]*handler

	timers   timerHeap
	timerSeq int64

	events []readyEvent

	running bool
	stopCh  chan struct{}
}

// New constructs a Loop using the platform backend selected at build time.
func New() (*Loop, error) {
	b, err := newBackend()
	if err != nil {
		return nil, err
	}
	return &Loop{
		backend:  b,
		handlers: make(map[int]*handler),
		events:   make([]readyEvent, MaxEventsPerIteration),
		stopCh:   make(chan struct{}),
	}, nil
}

// AddFD registers fd for the given interest mask (Readable and/or Writable).
// Error and hang-up readiness are always delivered regardless of mask.
func (l *Loop) AddFD(fd int, mask Event, cb Callback, user any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.handlers[fd]; exists {
		return ErrFDExists
	}
	if err := l.backend.add(fd, mask); err != nil {
		return err
	}
	l.handlers[fd] = &handler{mask: mask, cb: cb, user: user}
	return nil
}

// ModifyFD alters fd's interest mask without replacing its callback.
func (l *Loop) ModifyFD(fd int, mask Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.handlers[fd]
	if !ok {
		return ErrFDNotFound
	}
	if err := l.backend.modify(fd, mask); err != nil {
		return err
	}
	h.mask = mask
	return nil
}

// RemoveFD deregisters fd and releases its internal state.
func (l *Loop) RemoveFD(fd int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.handlers[fd]; !ok {
		return ErrFDNotFound
	}
	delete(l.handlers, fd)
	return l.backend.remove(fd)
}

// AddTimeout schedules a one-shot timer firing at least after d elapses,
// returning a monotonic id unique for the lifetime of the loop.
func (l *Loop) AddTimeout(d time.Duration, cb Callback, user any) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.timers) >= MaxLiveTimers {
		return 0, ErrTimerCapacity
	}
	l.timerSeq++
	id := l.timerSeq
	heap.Push(&l.timers, &timerEntry{
		id:     id,
		expiry: time.Now().Add(d),
		cb:     cb,
		user:   user,
	})
	return id, nil
}

// CancelTimeout removes a not-yet-fired timer. No effect if id already fired
// or never existed.
func (l *Loop) CancelTimeout(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, t := range l.timers {
		if t.id == id {
			heap.Remove(&l.timers, i)
			return
		}
	}
}

// Run blocks dispatching readiness and timer events until Stop is called.
// It returns an error only if the backend itself fails — per-fd errors are
// delivered to callbacks as ErrorEvent, never propagated here.
func (l *Loop) Run() error {
	l.mu.Lock()
	l.running = true
	l.mu.Unlock()

	for {
		select {
		case <-l.stopCh:
			return nil
		default:
		}

		timeoutMS := l.nextTimeoutMS()
		n, err := l.backend.wait(timeoutMS, l.events)
		if err != nil {
			return err
		}

		for i := 0; i < n; i++ {
			ev := l.events[i]
			l.mu.Lock()
			h, ok := l.handlers[ev.fd]
			l.mu.Unlock()
			if ok {
				h.cb(ev.fd, ev.mask, h.user)
			}
		}

		l.fireExpiredTimers()
	}
}

// Stop requests the loop exit after its current iteration.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}
	select {
	case <-l.stopCh:
	default:
		close(l.stopCh)
	}
}

// Close releases the backend's OS resources. Call after Run returns.
func (l *Loop) Close() error {
	return l.backend.close()
}

func (l *Loop) nextTimeoutMS() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.timers) == 0 {
		return -1 // indefinite
	}
	d := time.Until(l.timers[0].expiry)
	if d <= 0 {
		return 0
	}
	ms := d.Milliseconds()
	if ms > int64(^uint32(0)>>1) {
		ms = int64(^uint32(0) >> 1)
	}
	return int(ms)
}

func (l *Loop) fireExpiredTimers() {
	now := time.Now()
	for {
		l.mu.Lock()
		if len(l.timers) == 0 || l.timers[0].expiry.After(now) {
			l.mu.Unlock()
			break
		}
		t := heap.Pop(&l.timers).(*timerEntry)
		l.mu.Unlock()
		t.cb(-1, Timeout, t.user)
	}
}
