//go:build darwin || freebsd || netbsd || openbsd

package eventloop

import (
	"golang.org/x/sys/unix"
)

// kqueueBackend is the BSD/Darwin readiness backend. A registered fd tracks
// read and write interest as two independent kevent filters since kqueue has
// no notion of a combined read/write registration the way epoll does.
type kqueueBackend struct {
	kq int
}

func newBackend() (backend, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueueBackend{kq: fd}, nil
}

func (b *kqueueBackend) applyMask(fd int, mask Event) error {
	var changes []unix.Kevent_t
	changes = append(changes, kevent(fd, unix.EVFILT_READ, toggleFlag(mask&Readable != 0)))
	changes = append(changes, kevent(fd, unix.EVFILT_WRITE, toggleFlag(mask&Writable != 0)))
	_, err := unix.Kevent(b.kq, changes, nil, nil)
	return err
}

func toggleFlag(enable bool) uint16 {
	if enable {
		return unix.EV_ADD | unix.EV_ENABLE
	}
	return unix.EV_DELETE
}

func kevent(fd int, filter int16, flags uint16) unix.Kevent_t {
	return unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: filter,
		Flags:  flags,
	}
}

func (b *kqueueBackend) add(fd int, mask Event) error {
	var changes []unix.Kevent_t
	if mask&Readable != 0 {
		changes = append(changes, kevent(fd, unix.EVFILT_READ, unix.EV_ADD|unix.EV_ENABLE))
	}
	if mask&Writable != 0 {
		changes = append(changes, kevent(fd, unix.EVFILT_WRITE, unix.EV_ADD|unix.EV_ENABLE))
	}
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(b.kq, changes, nil, nil)
	return err
}

func (b *kqueueBackend) modify(fd int, mask Event) error {
	return b.applyMask(fd, mask)
}

func (b *kqueueBackend) remove(fd int) error {
	changes := []unix.Kevent_t{
		kevent(fd, unix.EVFILT_READ, unix.EV_DELETE),
		kevent(fd, unix.EVFILT_WRITE, unix.EV_DELETE),
	}
	// Best-effort: one of the two filters is commonly absent; kqueue
	// returns ENOENT for it, which is not a caller-visible failure here.
	unix.Kevent(b.kq, changes, nil, nil)
	return nil
}

func (b *kqueueBackend) wait(timeoutMS int, out []readyEvent) (int, error) {
	raw := make([]unix.Kevent_t, len(out))
	var ts *unix.Timespec
	if timeoutMS >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMS) * 1_000_000)
		ts = &t
	}
	n, err := unix.Kevent(b.kq, nil, raw, ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	for i := 0; i < n; i++ {
		var mask Event
		switch raw[i].Filter {
		case unix.EVFILT_READ:
			mask = Readable
		case unix.EVFILT_WRITE:
			mask = Writable
		}
		if raw[i].Flags&unix.EV_EOF != 0 {
			mask |= ErrorEvent
		}
		out[i] = readyEvent{fd: int(raw[i].Ident), mask: mask}
	}
	return n, nil
}

func (b *kqueueBackend) close() error {
	return unix.Close(b.kq)
}
