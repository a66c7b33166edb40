package ember_test

import (
	"bufio"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/yourusername/ember"
	"github.com/yourusername/ember/internal/httpwire"
	"github.com/yourusername/ember/router"
)

func startTestServer(t *testing.T) (addr string, stop func()) {
	t.Helper()
	rt := router.New()
	rt.Handle(httpwire.MethodGET, "/hello", func(req *httpwire.Request, resp *httpwire.Response) {
		resp.WriteHeader(200)
		resp.WriteString("hello")
	})
	rt.Handle(httpwire.MethodGET, "/users/:id", func(req *httpwire.Request, resp *httpwire.Response) {
		resp.WriteHeader(200)
		resp.WriteString("user " + req.Param("id"))
	})
	rt.Handle(httpwire.MethodPOST, "/echo", func(req *httpwire.Request, resp *httpwire.Response) {
		resp.WriteHeader(200)
		resp.Write(req.Body)
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	srv := ember.NewServer(ember.Config{Dispatcher: rt})
	go srv.Serve(ln)

	return ln.Addr().String(), func() { srv.Close() }
}

func rawRequest(t *testing.T, addr string, req string) string {
	t.Helper()
	c, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	c.SetDeadline(time.Now().Add(2 * time.Second))

	if _, err := c.Write([]byte(req)); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err := io.ReadAll(c)
	if err != nil && !strings.Contains(err.Error(), "use of closed") {
		t.Fatalf("read: %v", err)
	}
	return string(out)
}

func TestSimpleGETScenario(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	resp := rawRequest(t, addr, "GET /hello HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")
	if !strings.HasPrefix(resp, "HTTP/1.1 200") {
		t.Fatalf("resp = %q", resp)
	}
	if !strings.Contains(resp, "hello") {
		t.Fatalf("resp = %q", resp)
	}
}

func TestRouteParameterScenario(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	resp := rawRequest(t, addr, "GET /users/99 HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")
	if !strings.Contains(resp, "user 99") {
		t.Fatalf("resp = %q", resp)
	}
}

func TestChunkedPOSTScenario(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	req := "POST /echo HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\nConnection: close\r\n\r\n" +
		"4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n"
	resp := rawRequest(t, addr, req)
	if !strings.HasSuffix(strings.TrimRight(resp, "\n"), "Wikipedia") {
		t.Fatalf("resp = %q", resp)
	}
}

func TestMalformedRequestLineScenario(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	resp := rawRequest(t, addr, "BOGUS\r\n\r\n")
	if !strings.HasPrefix(resp, "HTTP/1.1 400") {
		t.Fatalf("resp = %q", resp)
	}
}

func TestOversizedBodyScenario(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	req := "POST /echo HTTP/1.1\r\nHost: x\r\nContent-Length: " +
		itoa(httpwire.MaxBodyBytes+1) + "\r\n\r\n"
	resp := rawRequest(t, addr, req)
	if !strings.HasPrefix(resp, "HTTP/1.1 413") {
		t.Fatalf("resp = %q", resp)
	}
}

func TestKeepAlivePipeliningScenario(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	c, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	c.SetDeadline(time.Now().Add(2 * time.Second))

	first := "GET /hello HTTP/1.1\r\nHost: x\r\n\r\n"
	second := "GET /users/7 HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"
	if _, err := c.Write([]byte(first + second)); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := bufio.NewReader(c)
	line1, _ := r.ReadString('\n')
	if !strings.HasPrefix(line1, "HTTP/1.1 200") {
		t.Fatalf("first status line = %q", line1)
	}

	rest, err := io.ReadAll(r)
	if err != nil && !strings.Contains(err.Error(), "use of closed") {
		t.Fatalf("read rest: %v", err)
	}
	if !strings.Contains(string(rest), "user 7") {
		t.Fatalf("rest = %q", rest)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
