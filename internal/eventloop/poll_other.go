//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

package eventloop

import (
	"golang.org/x/sys/unix"
)

// pollBackend is the portable fallback for any POSIX target x/sys/unix
// supports but that has neither epoll nor kqueue. O(N) per wait() call in
// the number of registered fds, same as the C poll(2) it wraps — acceptable
// since this path only exists for platforms the primary two backends don't
// cover.
type pollBackend struct {
	fds map[int]Event
}

func newBackend() (backend, error) {
	return &pollBackend{fds: make(map[int]Event)}, nil
}

func (b *pollBackend) add(fd int, mask Event) error {
	b.fds[fd] = mask
	return nil
}

func (b *pollBackend) modify(fd int, mask Event) error {
	b.fds[fd] = mask
	return nil
}

func (b *pollBackend) remove(fd int) error {
	delete(b.fds, fd)
	return nil
}

func maskToPoll(mask Event) int16 {
	var e int16
	if mask&Readable != 0 {
		e |= unix.POLLIN
	}
	if mask&Writable != 0 {
		e |= unix.POLLOUT
	}
	return e
}

func (b *pollBackend) wait(timeoutMS int, out []readyEvent) (int, error) {
	pollfds := make([]unix.PollFd, 0, len(b.fds))
	for fd, mask := range b.fds {
		pollfds = append(pollfds, unix.PollFd{Fd: int32(fd), Events: maskToPoll(mask)})
	}
	n, err := unix.Poll(pollfds, timeoutMS)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	count := 0
	for i := 0; i < len(pollfds) && count < len(out) && count < n; i++ {
		if pollfds[i].Revents == 0 {
			continue
		}
		var mask Event
		if pollfds[i].Revents&unix.POLLIN != 0 {
			mask |= Readable
		}
		if pollfds[i].Revents&unix.POLLOUT != 0 {
			mask |= Writable
		}
		if pollfds[i].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			mask |= ErrorEvent
		}
		out[count] = readyEvent{fd: int(pollfds[i].Fd), mask: mask}
		count++
	}
	return count, nil
}

func (b *pollBackend) close() error {
	return nil
}
