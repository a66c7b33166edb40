// Package conn implements the connection lifecycle engine of §4.2: the
// read→parse→dispatch→serialize→write loop, in both a threaded
// (goroutine-per-connection, blocking I/O) and an async (single-threaded
// event-loop, non-blocking I/O) flavor. Grounded on http11.Connection
// (threaded flavor's state machine and keep-alive timeout handling) and
// server.BaseServer (connection tracking and shutdown coordination, shared
// by both flavors).
package conn

import (
	"strconv"
	"time"

	"github.com/valyala/bytebufferpool"

	"github.com/yourusername/ember/internal/httpwire"
)

// serialize writes resp's status line, headers, and body into buf, deriving
// Date, Content-Length, and Connection itself — overwriting anything a
// handler set on resp.Header under those three names, per §3's Response
// invariant and §4.2's serialization rule. The status line always reads
// HTTP/1.1 regardless of the request's proto, per §6's "write side is
// HTTP/1.1 exclusively" — keep-alive/close semantics for HTTP/1.0 requests
// are carried entirely by the Connection header, not the status line.
func serialize(buf *bytebufferpool.ByteBuffer, resp *httpwire.Response, keepAlive bool) {
	body := resp.Body()

	buf.WriteString("HTTP/1.1")
	buf.WriteByte(' ')
	buf.WriteString(strconv.Itoa(resp.Status))
	buf.WriteByte(' ')
	buf.WriteString(httpwire.ReasonPhrase(resp.Status))
	buf.WriteString("\r\n")

	resp.Header.VisitAll(func(name, value string) bool {
		switch lowerHeaderName(name) {
		case "date", "content-length", "connection":
			return true // skip; written below from authoritative values
		}
		writeHeaderLine(buf, name, value)
		return true
	})

	writeHeaderLine(buf, "Date", formatHTTPDate(time.Now()))
	writeHeaderLine(buf, "Content-Length", strconv.Itoa(len(body)))
	if keepAlive {
		writeHeaderLine(buf, "Connection", "keep-alive")
	} else {
		writeHeaderLine(buf, "Connection", "close")
	}

	buf.WriteString("\r\n")
	buf.Write(body)
}

func writeHeaderLine(buf *bytebufferpool.ByteBuffer, name, value string) {
	buf.WriteString(name)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}

func lowerHeaderName(s string) string {
	b := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 32
		}
		b[i] = c
	}
	return string(b)
}

// httpDateFormat is the RFC 7231 §7.1.1.1 IMF-fixdate layout required for the
// Date header.
const httpDateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

func formatHTTPDate(t time.Time) string {
	return t.UTC().Format(httpDateFormat)
}

// writeErrorResponse serializes a minimal error response directly from a
// status code and message, bypassing the Response builder — used when the
// parser itself fails and there is no dispatched Response to serialize
// (§4.2, §7). The body is the parser's own short message, not the generic
// reason phrase.
func writeErrorResponse(buf *bytebufferpool.ByteBuffer, status int, message string) {
	if message == "" {
		message = httpwire.ReasonPhrase(status)
	}
	buf.WriteString("HTTP/1.1")
	buf.WriteByte(' ')
	buf.WriteString(strconv.Itoa(status))
	buf.WriteByte(' ')
	buf.WriteString(httpwire.ReasonPhrase(status))
	buf.WriteString("\r\n")
	writeHeaderLine(buf, "Date", formatHTTPDate(time.Now()))
	writeHeaderLine(buf, "Content-Type", "text/plain")
	writeHeaderLine(buf, "Content-Length", strconv.Itoa(len(message)))
	writeHeaderLine(buf, "Connection", "close")
	buf.WriteString("\r\n")
	buf.WriteString(message)
}
