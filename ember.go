// Package ember is an embeddable HTTP/1.1 server library: an incremental
// request parser, a connection lifecycle engine (threaded or async), and a
// cross-platform readiness event loop, fronted by a swappable Dispatcher
// (router + middleware). Its core reaches the host OS's socket and
// readiness-notification primitives through golang.org/x/sys/unix, and also
// depends on github.com/valyala/bytebufferpool for pooled buffers and
// golang.org/x/sync/errgroup for threaded-mode shutdown.
package ember

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/yourusername/ember/conn"
	"github.com/yourusername/ember/internal/eventloop"
)

// Dispatcher is the external router/middleware contract of §6. It is a type
// alias for conn.Dispatcher so callers never need to import the conn
// package directly.
type Dispatcher = conn.Dispatcher

// DispatcherFunc adapts a plain function to Dispatcher.
type DispatcherFunc = conn.DispatcherFunc

// Mode selects one of the two mutually exclusive concurrency models of §5.
type Mode uint8

const (
	// Threaded spawns one goroutine per accepted connection and uses
	// blocking reads and writes (conn.ThreadedEngine).
	Threaded Mode = iota
	// Async drives every connection on a single goroutine via a readiness
	// event loop, never blocking on I/O (conn.AsyncEngine).
	Async
)

// Config configures a Server. Zero values apply the defaults noted per
// field, matching BaseServer's default-filling in NewBaseServer.
type Config struct {
	Addr string // default ":8080"
	Mode Mode   // default Threaded

	Dispatcher Dispatcher

	// KeepAliveTimeout bounds how long an idle keep-alive connection may
	// wait for its next request. Zero disables the deadline — §5 notes
	// this is a recognized extension, not a core invariant. Applied in
	// Threaded mode only; the Async engine does not enforce it.
	KeepAliveTimeout time.Duration

	// Logger receives structured logs for non-user-visible errors (socket
	// and event-loop failures, §7). Defaults to slog.Default().
	Logger *slog.Logger
}

func (c Config) addr() string {
	if c.Addr == "" {
		return ":8080"
	}
	return c.Addr
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Server binds one listening port to one Config — one encapsulated object
// graph per instance, with no package-level mutable state anywhere in this
// module (§9).
type Server struct {
	cfg      Config
	listener net.Listener

	threaded *conn.ThreadedEngine

	loop  *eventloop.Loop
	async *conn.AsyncEngine

	closed chan struct{}
}

// NewServer constructs a Server from cfg. The listener is not opened until
// ListenAndServe or Serve is called.
func NewServer(cfg Config) *Server {
	return &Server{cfg: cfg, closed: make(chan struct{})}
}

// ListenAndServe opens a TCP listener on cfg.Addr and blocks serving
// connections until Shutdown or Close is called.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.addr())
	if err != nil {
		return fmt.Errorf("ember: listen: %w", err)
	}
	return s.Serve(ln)
}

// Serve accepts connections from ln, dispatching each through the mode
// selected by cfg.Mode, until Shutdown or Close is called.
func (s *Server) Serve(ln net.Listener) error {
	s.listener = ln

	switch s.cfg.Mode {
	case Async:
		return s.serveAsync(ln)
	default:
		return s.serveThreaded(ln)
	}
}

func (s *Server) serveThreaded(ln net.Listener) error {
	s.threaded = conn.NewThreadedEngine(conn.Options{
		Dispatcher:       s.cfg.Dispatcher,
		KeepAliveTimeout: s.cfg.KeepAliveTimeout,
		Logger:           s.cfg.logger(),
	})

	for {
		c, err := ln.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return nil
			default:
				return fmt.Errorf("ember: accept: %w", err)
			}
		}
		s.threaded.Handle(c)
	}
}

// Shutdown gracefully stops the server: new connections are refused
// immediately, and in Threaded mode Shutdown waits for in-flight connections
// to finish or ctx to expire, whichever comes first, force-closing any still
// open at expiry. In Async mode it stops the event loop and closes every
// open connection at once, without waiting.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.closed)
	if s.listener != nil {
		s.listener.Close()
	}
	if s.loop != nil {
		s.loop.Stop()
		if s.async != nil {
			s.async.CloseAll()
		}
		return nil
	}
	if s.threaded != nil {
		return s.threaded.Shutdown(ctx)
	}
	return nil
}

// Close is Shutdown without a deadline: it closes the listener and, in
// Threaded mode, waits for in-flight connections to end rather than
// force-closing them. In Async mode it closes every connection at once.
func (s *Server) Close() error {
	return s.Shutdown(context.Background())
}
