//go:build linux || darwin || freebsd || netbsd || openbsd

package ember

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/yourusername/ember/conn"
	"github.com/yourusername/ember/internal/eventloop"
)

// serveAsync registers ln's underlying descriptor with a fresh eventloop.Loop
// and accepts connections non-blockingly, handing each to an
// conn.AsyncEngine. Grounded on socket/tuning_*.go for the
// SetNonblock/SO_REUSEADDR posture (TCP_NODELAY is left to the runtime
// default; the exotic TCP_QUICKACK/TCP_FASTOPEN/TCP_DEFER_ACCEPT tuning
// knobs have no component in this contract asking for them and are not
// carried forward).
func (s *Server) serveAsync(ln net.Listener) error {
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		return fmt.Errorf("ember: async mode requires a *net.TCPListener")
	}
	sysConn, err := tcpLn.SyscallConn()
	if err != nil {
		return fmt.Errorf("ember: async listener: %w", err)
	}

	var listenFD int
	var ctlErr error
	err = sysConn.Control(func(fd uintptr) {
		listenFD = int(fd)
		ctlErr = unix.SetNonblock(listenFD, true)
	})
	if err != nil {
		return err
	}
	if ctlErr != nil {
		return ctlErr
	}

	loop, err := eventloop.New()
	if err != nil {
		return fmt.Errorf("ember: event loop: %w", err)
	}
	s.loop = loop

	s.async = conn.NewAsyncEngine(loop, conn.Options{
		Dispatcher:       s.cfg.Dispatcher,
		KeepAliveTimeout: s.cfg.KeepAliveTimeout,
		Logger:           s.cfg.logger(),
	})

	err = loop.AddFD(listenFD, eventloop.Readable, func(fd int, events eventloop.Event, user any) {
		s.acceptReady(fd)
	}, nil)
	if err != nil {
		return err
	}

	runErr := loop.Run()
	loop.Close()
	if runErr != nil {
		select {
		case <-s.closed:
			return nil
		default:
			return fmt.Errorf("ember: event loop: %w", runErr)
		}
	}
	return nil
}

func (s *Server) acceptReady(listenFD int) {
	for {
		connFD, sa, err := unix.Accept(listenFD)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			s.cfg.logger().Debug("accept failed", "err", err)
			return
		}

		if err := unix.SetNonblock(connFD, true); err != nil {
			unix.Close(connFD)
			continue
		}

		addr := remoteAddrString(sa)
		if err := s.async.HandleFD(connFD, addr); err != nil {
			s.cfg.logger().Debug("register accepted socket failed", "err", err)
			unix.Close(connFD)
		}
	}
}

func remoteAddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%d.%d.%d.%d:%d", a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3], a.Port)
	case *unix.SockaddrInet6:
		return fmt.Sprintf("[%x]:%d", a.Addr, a.Port)
	default:
		return ""
	}
}
