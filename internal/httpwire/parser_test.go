package httpwire

import (
	"bytes"
	"strings"
	"testing"
)

func parseAll(t *testing.T, raw []byte) (*Request, Status, error) {
	t.Helper()
	req := &Request{}
	p := NewParser()
	p.Reset(req)
	status, err := p.Execute(raw)
	return req, status, err
}

func TestSimpleGET(t *testing.T) {
	raw := []byte("GET /hello?x=1 HTTP/1.1\r\nHost: example.com\r\n\r\n")
	req, status, err := parseAll(t, raw)
	if status != StatusComplete || err != nil {
		t.Fatalf("status=%v err=%v", status, err)
	}
	if req.Method != MethodGET {
		t.Fatalf("method = %v", req.Method)
	}
	if req.Path != "/hello" {
		t.Fatalf("path = %q", req.Path)
	}
	if req.Query != "x=1" {
		t.Fatalf("query = %q", req.Query)
	}
	if !req.KeepAlive {
		t.Fatalf("expected keep-alive true for HTTP/1.1")
	}
}

func TestHTTP11WithoutHostFails(t *testing.T) {
	raw := []byte("GET / HTTP/1.1\r\n\r\n")
	_, status, err := parseAll(t, raw)
	if status != StatusError {
		t.Fatalf("status = %v, want error", status)
	}
	pe, ok := err.(*ParseError)
	if !ok || pe.Status != 400 {
		t.Fatalf("err = %v, want 400", err)
	}
}

func TestHTTP10WithoutHostSucceeds(t *testing.T) {
	raw := []byte("GET / HTTP/1.0\r\n\r\n")
	req, status, err := parseAll(t, raw)
	if status != StatusComplete || err != nil {
		t.Fatalf("status=%v err=%v", status, err)
	}
	if req.KeepAlive {
		t.Fatalf("expected keep-alive false for HTTP/1.0")
	}
}

func TestFixedBodyRoundTrip(t *testing.T) {
	body := "hello world"
	raw := []byte("POST /echo HTTP/1.1\r\nHost: h\r\nContent-Length: " +
		itoa(len(body)) + "\r\n\r\n" + body)
	req, status, err := parseAll(t, raw)
	if status != StatusComplete || err != nil {
		t.Fatalf("status=%v err=%v", status, err)
	}
	if string(req.Body) != body {
		t.Fatalf("body = %q, want %q", req.Body, body)
	}
}

func TestChunkedBodyRoundTrip(t *testing.T) {
	raw := []byte("POST /echo HTTP/1.1\r\nHost: h\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n")
	req, status, err := parseAll(t, raw)
	if status != StatusComplete || err != nil {
		t.Fatalf("status=%v err=%v", status, err)
	}
	if string(req.Body) != "Wikipedia" {
		t.Fatalf("body = %q, want %q", req.Body, "Wikipedia")
	}
}

func TestChunkedBodyWithTrailers(t *testing.T) {
	raw := []byte("POST /echo HTTP/1.1\r\nHost: h\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"3\r\nfoo\r\n0\r\nX-Trailer: ignored\r\n\r\n")
	req, status, err := parseAll(t, raw)
	if status != StatusComplete || err != nil {
		t.Fatalf("status=%v err=%v", status, err)
	}
	if string(req.Body) != "foo" {
		t.Fatalf("body = %q, want %q", req.Body, "foo")
	}
}

func TestBodyExactlyAtLimitSucceeds(t *testing.T) {
	body := strings.Repeat("a", MaxBodyBytes)
	raw := []byte("POST /x HTTP/1.1\r\nHost: h\r\nContent-Length: " +
		itoa(len(body)) + "\r\n\r\n" + body)
	_, status, err := parseAll(t, raw)
	if status != StatusComplete || err != nil {
		t.Fatalf("status=%v err=%v", status, err)
	}
}

func TestBodyOverLimitFails(t *testing.T) {
	raw := []byte("POST /x HTTP/1.1\r\nHost: h\r\nContent-Length: " +
		itoa(MaxBodyBytes+1) + "\r\n\r\n")
	_, status, err := parseAll(t, raw)
	if status != StatusError {
		t.Fatalf("status = %v, want error", status)
	}
	pe, ok := err.(*ParseError)
	if !ok || pe.Status != 413 {
		t.Fatalf("err = %v, want 413", err)
	}
}

func TestHeaderLineExactlyAtLimitSucceeds(t *testing.T) {
	prefix := "X-Pad: "
	value := strings.Repeat("v", MaxHeaderLineBytes-len(prefix))
	line := prefix + value
	if len(line) != MaxHeaderLineBytes {
		t.Fatalf("test construction bug: line len = %d", len(line))
	}
	raw := []byte("GET / HTTP/1.1\r\nHost: h\r\n" + line + "\r\n\r\n")
	_, status, err := parseAll(t, raw)
	if status != StatusComplete || err != nil {
		t.Fatalf("status=%v err=%v (line len %d)", status, err, len(line))
	}
}

func TestHeaderLineOverLimitFails(t *testing.T) {
	value := strings.Repeat("v", MaxHeaderLineBytes+1)
	raw := []byte("GET / HTTP/1.1\r\nHost: h\r\nX-Pad: " + value + "\r\n\r\n")
	_, status, err := parseAll(t, raw)
	if status != StatusError {
		t.Fatalf("status = %v, want error", status)
	}
	pe, ok := err.(*ParseError)
	if !ok || pe.Status != 431 {
		t.Fatalf("err = %v, want 431", err)
	}
}

func TestHeaderCountExactlyAtLimitSucceeds(t *testing.T) {
	var b bytes.Buffer
	b.WriteString("GET / HTTP/1.1\r\nHost: h\r\n")
	for i := 0; i < MaxHeaderCount-1; i++ {
		b.WriteString("X-N: " + itoa(i) + "\r\n")
	}
	b.WriteString("\r\n")
	_, status, err := parseAll(t, b.Bytes())
	if status != StatusComplete || err != nil {
		t.Fatalf("status=%v err=%v", status, err)
	}
}

func TestHeaderCountOverLimitFails(t *testing.T) {
	var b bytes.Buffer
	b.WriteString("GET / HTTP/1.1\r\nHost: h\r\n")
	for i := 0; i < MaxHeaderCount; i++ {
		b.WriteString("X-N: " + itoa(i) + "\r\n")
	}
	b.WriteString("\r\n")
	_, status, err := parseAll(t, b.Bytes())
	if status != StatusError {
		t.Fatalf("status = %v, want error", status)
	}
	pe, ok := err.(*ParseError)
	if !ok || pe.Status != 431 {
		t.Fatalf("err = %v, want 431", err)
	}
}

func TestMalformedRequestLineFails(t *testing.T) {
	raw := []byte("GET /only-one-token\r\n\r\n")
	_, status, err := parseAll(t, raw)
	if status != StatusError {
		t.Fatalf("status = %v, want error", status)
	}
	pe, ok := err.(*ParseError)
	if !ok || pe.Status != 400 {
		t.Fatalf("err = %v, want 400", err)
	}
}

func TestUnknownMethodFails(t *testing.T) {
	raw := []byte("TRACE / HTTP/1.1\r\nHost: h\r\n\r\n")
	_, status, err := parseAll(t, raw)
	if status != StatusError {
		t.Fatalf("status = %v, want error", status)
	}
	pe, ok := err.(*ParseError)
	if !ok || pe.Status != 501 {
		t.Fatalf("err = %v, want 501", err)
	}
}

// TestPartitionInvariance feeds the same request across many different byte
// splits and checks the outcome never depends on where the splits fall —
// the defining property of a resumable parser (§8).
func TestPartitionInvariance(t *testing.T) {
	raw := []byte("POST /echo HTTP/1.1\r\nHost: h\r\nContent-Length: 9\r\n\r\nWikipedia")
	splits := [][]int{
		{1, 2, 3},
		{len(raw) - 1},
		{5, 10, 15, 20, 25, 30},
		{},
	}
	for _, points := range splits {
		req := &Request{}
		p := NewParser()
		p.Reset(req)
		prev := 0
		var status Status
		var err error
		for _, cut := range points {
			if cut <= prev || cut > len(raw) {
				continue
			}
			status, err = p.Execute(raw[prev:cut])
			if err != nil {
				t.Fatalf("unexpected error mid-stream: %v", err)
			}
			prev = cut
		}
		status, err = p.Execute(raw[prev:])
		if status != StatusComplete || err != nil {
			t.Fatalf("points=%v status=%v err=%v", points, status, err)
		}
		if string(req.Body) != "Wikipedia" {
			t.Fatalf("points=%v body=%q", points, req.Body)
		}
	}
}

func TestConnectionCloseOverridesKeepAlive(t *testing.T) {
	raw := []byte("GET / HTTP/1.1\r\nHost: h\r\nConnection: close\r\n\r\n")
	req, status, err := parseAll(t, raw)
	if status != StatusComplete || err != nil {
		t.Fatalf("status=%v err=%v", status, err)
	}
	if req.KeepAlive {
		t.Fatalf("expected keep-alive false after Connection: close")
	}
}

func TestHTTP10KeepAliveHeaderHasNoEffect(t *testing.T) {
	raw := []byte("GET / HTTP/1.0\r\nConnection: keep-alive\r\n\r\n")
	req, status, err := parseAll(t, raw)
	if status != StatusComplete || err != nil {
		t.Fatalf("status=%v err=%v", status, err)
	}
	if req.KeepAlive {
		t.Fatalf("expected keep-alive false for HTTP/1.0 regardless of header")
	}
}

func TestPipelinedRequestsLeaveLeftoverBuffered(t *testing.T) {
	first := "GET /a HTTP/1.1\r\nHost: h\r\n\r\n"
	second := "GET /b HTTP/1.1\r\nHost: h\r\n\r\n"
	raw := []byte(first + second)

	req := &Request{}
	p := NewParser()
	p.Reset(req)
	status, err := p.Execute(raw)
	if status != StatusComplete || err != nil {
		t.Fatalf("status=%v err=%v", status, err)
	}
	if req.Path != "/a" {
		t.Fatalf("path = %q", req.Path)
	}
	if p.Buffered() != len(second) {
		t.Fatalf("buffered = %d, want %d", p.Buffered(), len(second))
	}

	req2 := &Request{}
	p.Reset(req2)
	status, err = p.Execute(nil)
	if status != StatusComplete || err != nil {
		t.Fatalf("status=%v err=%v", status, err)
	}
	if req2.Path != "/b" {
		t.Fatalf("path = %q", req2.Path)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
