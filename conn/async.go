package conn

import (
	"errors"
	"io"
	"sync"

	"github.com/valyala/bytebufferpool"
	"golang.org/x/sys/unix"

	"github.com/yourusername/ember/internal/eventloop"
	"github.com/yourusername/ember/internal/httpwire"
)

// AsyncEngine runs every connection's parsing, dispatch, and I/O on a single
// goroutine driven by an eventloop.Loop, never blocking on a read or write:
// a socket not yet readable/writable simply waits for its next readiness
// callback, unlike a goroutine-per-connection design; its read/dispatch/write
// staging below is built directly from §4.2/§4.3's contract, reusing the
// same serializer and Dispatcher as ThreadedEngine.
type AsyncEngine struct {
	opts Options
	loop *eventloop.Loop

	mu    sync.Mutex
	conns map[int]*asyncConn
}

type asyncConn struct {
	fd     int
	file   *netFD
	parser *httpwire.Parser
	req    *httpwire.Request

	readBuf []byte

	writeBuf     *bytebufferpool.ByteBuffer
	writeOff     int
	writePending bool

	keepAlive bool
	closing   bool
}

// netFD is the minimal handle AsyncEngine needs from an accepted socket: its
// raw descriptor for eventloop registration, plus direct read/write/close —
// net.Conn itself is not used on this path since its Read/Write block, which
// the async engine must never do.
type netFD struct {
	fd   int
	addr string
}

func (n *netFD) read(p []byte) (int, error) {
	return unix.Read(n.fd, p)
}

func (n *netFD) write(p []byte) (int, error) {
	return unix.Write(n.fd, p)
}

func (n *netFD) close() error {
	return unix.Close(n.fd)
}

// NewAsyncEngine constructs an AsyncEngine bound to loop. The caller owns the
// loop's lifecycle (Run/Stop/Close).
func NewAsyncEngine(loop *eventloop.Loop, opts Options) *AsyncEngine {
	return &AsyncEngine{
		opts:  opts,
		loop:  loop,
		conns: make(map[int]*asyncConn),
	}
}

// HandleFD registers an already-accepted, already-nonblocking socket
// descriptor fd with the loop. addr is used only for Request.RemoteAddr.
func (e *AsyncEngine) HandleFD(fd int, addr string) error {
	ac := &asyncConn{
		fd:      fd,
		file:    &netFD{fd: fd, addr: addr},
		parser:  httpwire.NewParser(),
		req:     &httpwire.Request{},
		readBuf: make([]byte, 16384),
	}
	ac.parser.Reset(ac.req)

	e.mu.Lock()
	e.conns[fd] = ac
	e.mu.Unlock()

	return e.loop.AddFD(fd, eventloop.Readable, e.onReady, ac)
}

func (e *AsyncEngine) onReady(fd int, events eventloop.Event, user any) {
	ac := user.(*asyncConn)

	if events&eventloop.ErrorEvent != 0 {
		e.closeConn(ac)
		return
	}
	if events&eventloop.Readable != 0 {
		e.handleReadable(ac)
		if ac.closing {
			return
		}
	}
	if events&eventloop.Writable != 0 {
		e.handleWritable(ac)
	}
}

func (e *AsyncEngine) handleReadable(ac *asyncConn) {
	if ac.writePending {
		return // mid-response write; don't start parsing a pipelined request yet
	}

	for {
		n, err := ac.file.read(ac.readBuf)
		if n == 0 && err == nil {
			e.closeConn(ac) // peer closed: unix.Read reports EOF as (0, nil)
			return
		}
		if n > 0 {
			status, perr := ac.parser.Execute(ac.readBuf[:n])
			if status == httpwire.StatusError {
				e.sendError(ac, perr)
				return
			}
			if status == httpwire.StatusComplete {
				e.dispatchAndQueueWrite(ac)
				return
			}
		}
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				return // no more data right now; wait for next readiness
			}
			if errors.Is(err, io.EOF) || n == 0 {
				e.closeConn(ac)
				return
			}
			e.closeConn(ac)
			return
		}
	}
}

func (e *AsyncEngine) sendError(ac *asyncConn, perr error) {
	pe, _ := perr.(*httpwire.ParseError)
	status := 500
	message := ""
	if pe != nil {
		status = pe.Status
		message = pe.Message
	}
	ac.writeBuf = bytebufferpool.Get()
	writeErrorResponse(ac.writeBuf, status, message)
	ac.keepAlive = false
	e.beginWrite(ac)
}

func (e *AsyncEngine) dispatchAndQueueWrite(ac *asyncConn) {
	ac.req.RemoteAddr = ac.file.addr
	resp := httpwire.NewResponse()
	if e.opts.Dispatcher != nil {
		e.opts.Dispatcher.Dispatch(ac.req, resp)
	}
	if !resp.Sent() {
		resp.WriteHeader(404)
		resp.WriteString("Not Found")
	}

	ac.keepAlive = ac.req.KeepAlive && !resp.Header.ContainsToken("Connection", "close")

	ac.writeBuf = bytebufferpool.Get()
	serialize(ac.writeBuf, resp, ac.keepAlive)
	resp.Release()

	e.beginWrite(ac)
}

func (e *AsyncEngine) beginWrite(ac *asyncConn) {
	ac.writeOff = 0
	ac.writePending = true
	e.loop.ModifyFD(ac.fd, eventloop.Readable|eventloop.Writable)
	e.handleWritable(ac) // try to flush immediately; avoids a spurious wait cycle
}

func (e *AsyncEngine) handleWritable(ac *asyncConn) {
	if !ac.writePending {
		return
	}
	for ac.writeOff < ac.writeBuf.Len() {
		n, err := ac.file.write(ac.writeBuf.B[ac.writeOff:])
		if n > 0 {
			ac.writeOff += n
		}
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				return // wait for next writable readiness
			}
			e.closeConn(ac)
			return
		}
	}

	bytebufferpool.Put(ac.writeBuf)
	ac.writeBuf = nil
	ac.writePending = false

	if !ac.keepAlive {
		e.closeConn(ac)
		return
	}

	ac.req.Reset()
	ac.parser.Reset(ac.req)
	e.loop.ModifyFD(ac.fd, eventloop.Readable)

	// A pipelined request may already be buffered from the prior read; drive
	// it from the buffer before waiting for more socket data.
	if ac.parser.Buffered() > 0 {
		switch status, perr := ac.parser.Execute(nil); status {
		case httpwire.StatusError:
			e.sendError(ac, perr)
		case httpwire.StatusComplete:
			e.dispatchAndQueueWrite(ac)
		}
	}
}

func (e *AsyncEngine) closeConn(ac *asyncConn) {
	if ac.closing {
		return
	}
	ac.closing = true
	e.loop.RemoveFD(ac.fd)
	e.mu.Lock()
	delete(e.conns, ac.fd)
	e.mu.Unlock()
	ac.parser.Close()
	if ac.writeBuf != nil {
		bytebufferpool.Put(ac.writeBuf)
	}
	ac.file.close()
}

// CloseAll force-closes every tracked connection — used during shutdown.
func (e *AsyncEngine) CloseAll() {
	e.mu.Lock()
	conns := make([]*asyncConn, 0, len(e.conns))
	for _, ac := range e.conns {
		conns = append(conns, ac)
	}
	e.mu.Unlock()
	for _, ac := range conns {
		e.closeConn(ac)
	}
}
