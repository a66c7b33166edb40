package conn

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/valyala/bytebufferpool"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/ember/internal/httpwire"
)

// Options configures either connection engine flavor. Zero values fall back
// to the defaults noted per field.
type Options struct {
	Dispatcher Dispatcher

	// KeepAliveTimeout bounds how long an idle keep-alive connection may wait
	// for its next request before the engine closes it. Zero disables the
	// deadline — §5 notes idle timeouts are a recognized extension, not a
	// core invariant. Only ThreadedEngine applies it; AsyncEngine ignores it.
	KeepAliveTimeout time.Duration

	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// ThreadedEngine runs one goroutine per accepted connection, using blocking
// reads and writes throughout. Grounded on http11.Connection.Serve's state
// machine (keep-alive loop, per-connection deadline) and
// server.BaseServer's connection tracking, substituting golang.org/x/sync/errgroup
// for a bare sync.WaitGroup so Shutdown waits on every worker under one
// context. A read or write error ends only its own connection; workers never
// return an error to the group.
type ThreadedEngine struct {
	opts Options

	mu    sync.Mutex
	conns map[net.Conn]struct{}

	group  *errgroup.Group
	gctx   context.Context
	cancel context.CancelFunc
}

// NewThreadedEngine constructs a ThreadedEngine ready to accept connections.
func NewThreadedEngine(opts Options) *ThreadedEngine {
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	return &ThreadedEngine{
		opts:   opts,
		conns:  make(map[net.Conn]struct{}),
		group:  g,
		gctx:   gctx,
		cancel: cancel,
	}
}

// Handle spawns a goroutine that serves c until it closes, is idle-timed-out,
// or the engine is shutting down.
func (e *ThreadedEngine) Handle(c net.Conn) {
	e.track(c)
	e.group.Go(func() error {
		defer e.untrack(c)
		defer c.Close()
		err := e.serve(c)
		if err != nil && e.gctx.Err() != nil {
			return nil // shutting down; don't fail the group over an expected close
		}
		return nil
	})
}

func (e *ThreadedEngine) track(c net.Conn) {
	e.mu.Lock()
	e.conns[c] = struct{}{}
	e.mu.Unlock()
}

func (e *ThreadedEngine) untrack(c net.Conn) {
	e.mu.Lock()
	delete(e.conns, c)
	e.mu.Unlock()
}

func (e *ThreadedEngine) serve(c net.Conn) error {
	parser := httpwire.NewParser()
	defer parser.Close()

	readBuf := make([]byte, 16384)
	respBuf := bytebufferpool.Get()
	defer bytebufferpool.Put(respBuf)

	req := &httpwire.Request{}
	requestNum := 0

	for {
		select {
		case <-e.gctx.Done():
			return nil
		default:
		}

		if e.opts.KeepAliveTimeout > 0 {
			c.SetReadDeadline(time.Now().Add(e.opts.KeepAliveTimeout))
		}

		req.Reset()
		parser.Reset(req)

		status, perr := parser.Execute(nil) // drain any pipelined leftover first
		for status == httpwire.StatusIncomplete {
			n, err := c.Read(readBuf)
			if n == 0 && err != nil {
				if errors.Is(err, io.EOF) {
					return nil // clean close, whether between requests or mid-request
				}
				e.opts.logger().Debug("connection read failed", "remote", c.RemoteAddr(), "err", err)
				return err
			}
			status, perr = parser.Execute(readBuf[:n])
		}

		if status == httpwire.StatusError {
			pe, _ := perr.(*httpwire.ParseError)
			respBuf.Reset()
			if pe != nil {
				writeErrorResponse(respBuf, pe.Status, pe.Message)
			} else {
				writeErrorResponse(respBuf, 500, "")
			}
			c.Write(respBuf.B)
			return nil
		}

		requestNum++
		req.RemoteAddr = c.RemoteAddr().String()

		resp := httpwire.NewResponse()
		if e.opts.Dispatcher != nil {
			e.opts.Dispatcher.Dispatch(req, resp)
		}
		if !resp.Sent() {
			resp.WriteHeader(404)
			resp.WriteString("Not Found")
		}

		keepAlive := req.KeepAlive && !resp.Header.ContainsToken("Connection", "close")
		respBuf.Reset()
		serialize(respBuf, resp, keepAlive)
		resp.Release()

		if _, err := c.Write(respBuf.B); err != nil {
			e.opts.logger().Debug("connection write failed", "remote", c.RemoteAddr(), "err", err)
			return err
		}

		if !keepAlive {
			return nil
		}
	}
}

// Shutdown waits for in-flight connections to finish, or forcibly closes them
// when ctx is cancelled first.
func (e *ThreadedEngine) Shutdown(ctx context.Context) error {
	e.cancel()

	done := make(chan error, 1)
	go func() { done <- e.group.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		e.mu.Lock()
		for c := range e.conns {
			c.Close()
		}
		e.mu.Unlock()
		<-done
		return ctx.Err()
	}
}
