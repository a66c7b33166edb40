//go:build linux

package eventloop

import (
	"golang.org/x/sys/unix"
)

// epollBackend is the Linux readiness backend, level-triggered by default
// (no EPOLLET is ever set) to match §4.3's "Readiness is level-triggered as
// far as callers observe." Promoted from raw syscall.Epoll* — as the
// searchktools-fast-server poller sketch uses — to golang.org/x/sys/unix, per
// socket/tuning_linux.go's own comment pointing at that package for
// low-level socket access.
type epollBackend struct {
	epfd int
}

func newBackend() (backend, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollBackend{epfd: fd}, nil
}

func maskToEpoll(mask Event) uint32 {
	var e uint32
	if mask&Readable != 0 {
		e |= unix.EPOLLIN
	}
	if mask&Writable != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func epollToMask(e uint32) Event {
	var mask Event
	if e&unix.EPOLLIN != 0 {
		mask |= Readable
	}
	if e&unix.EPOLLOUT != 0 {
		mask |= Writable
	}
	if e&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		mask |= ErrorEvent
	}
	return mask
}

func (b *epollBackend) add(fd int, mask Event) error {
	ev := unix.EpollEvent{Events: maskToEpoll(mask), Fd: int32(fd)}
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (b *epollBackend) modify(fd int, mask Event) error {
	ev := unix.EpollEvent{Events: maskToEpoll(mask), Fd: int32(fd)}
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (b *epollBackend) remove(fd int) error {
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (b *epollBackend) wait(timeoutMS int, out []readyEvent) (int, error) {
	raw := make([]unix.EpollEvent, len(out))
	n, err := unix.EpollWait(b.epfd, raw, timeoutMS)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	for i := 0; i < n; i++ {
		out[i] = readyEvent{fd: int(raw[i].Fd), mask: epollToMask(raw[i].Events)}
	}
	return n, nil
}

func (b *epollBackend) close() error {
	return unix.Close(b.epfd)
}
