package httpwire

import (
	"bytes"
	"strconv"

	"github.com/valyala/bytebufferpool"
)

// Parser implements the incremental HTTP/1.1 request state machine of §3/§4.1:
// one entry point, Execute, that appends a byte slice and drives the state
// machine as far as the buffered bytes allow. It never blocks and never
// performs its own I/O — the connection engine (package conn) owns reads.
//
// Grounded on http11.Parser (request-line/header grammar,
// method table, chunk framing) but restructured around an explicit resumable
// cursor instead of a blocking io.Reader, since the async connection engine
// must be able to suspend mid-request between any two Execute calls.
type Parser struct {
	state State

	buf *bytebufferpool.ByteBuffer // unconsumed bytes; consumed prefix is compacted away after each Execute
	pos int                        // scan cursor into buf.B

	headerBytes int // bytes consumed so far in the header region (§4.1 limit)
	headerCount int

	contentLength int64
	bodyReceived  int64
	chunkSize     int64
	chunkReceived int64
	chunked       bool

	keepAlive bool
	hostSeen  bool

	req *Request
	err *ParseError
}

// NewParser returns a Parser positioned at StateRequestLine with no backing
// Request. Call Reset(req) before the first Execute.
func NewParser() *Parser {
	return &Parser{buf: bytebufferpool.Get()}
}

// Reset rearms the parser for the next request on the same connection,
// attaching req as the destination for parsed fields. Any bytes already
// buffered beyond the just-completed request (pipelined data) are preserved,
// per §3's Parser state invariant and §4.1's reset semantics.
func (p *Parser) Reset(req *Request) {
	p.state = StateRequestLine
	p.headerBytes = 0
	p.headerCount = 0
	p.contentLength = 0
	p.bodyReceived = 0
	p.chunkSize = 0
	p.chunkReceived = 0
	p.chunked = false
	p.keepAlive = false
	p.hostSeen = false
	p.err = nil
	p.req = req
}

// Buffered reports how many unconsumed bytes remain (leftover pipelined
// input, or a request still being assembled).
func (p *Parser) Buffered() int { return p.buf.Len() - p.pos }

// Close releases the parser's internal buffer back to the pool. The Parser
// must not be used afterward.
func (p *Parser) Close() {
	bytebufferpool.Put(p.buf)
	p.buf = nil
}

// Execute appends data to the internal buffer and advances the state
// machine as far as possible, returning the resulting Status. A nil or
// empty data slice is valid and simply re-drives already-buffered bytes —
// the connection engine uses this to process pipelined requests without an
// intervening read.
func (p *Parser) Execute(data []byte) (Status, error) {
	if p.state == StateError {
		return StatusError, p.err
	}
	if len(data) > 0 {
		if p.Buffered()+len(data) > MaxRequestBuffer {
			p.fail(errBodyTooLarge)
			return StatusError, p.err
		}
		p.buf.Write(data)
	}

	for {
		var progressed bool
		var err error

		switch p.state {
		case StateRequestLine:
			progressed, err = p.stepRequestLine()
		case StateHeaders:
			progressed, err = p.stepHeaders()
		case StateFixedBody:
			progressed, err = p.stepFixedBody()
		case StateChunkSize:
			progressed, err = p.stepChunkSize()
		case StateChunkData:
			progressed, err = p.stepChunkData()
		case StateChunkCRLF:
			progressed, err = p.stepChunkCRLF()
		case StateChunkTrailers:
			progressed, err = p.stepChunkTrailers()
		case StateComplete:
			p.compact()
			return StatusComplete, nil
		default:
			p.fail(newParseError(500, "Internal parser error"))
			return StatusError, p.err
		}

		if err != nil {
			p.fail(err.(*ParseError))
			return StatusError, p.err
		}
		if p.state == StateComplete {
			p.compact()
			return StatusComplete, nil
		}
		if !progressed {
			p.compact()
			return StatusIncomplete, nil
		}
	}
}

func (p *Parser) fail(e *ParseError) {
	p.state = StateError
	p.err = e
}

// compact discards the consumed prefix [0:pos), keeping only unconsumed
// bytes in the buffer. This bounds parser memory to MAX_REQUEST_BUFFER and
// is what leaves pipelined leftover bytes at offset 0 for the next request.
func (p *Parser) compact() {
	if p.pos == 0 {
		return
	}
	remaining := p.buf.B[p.pos:]
	copy(p.buf.B, remaining)
	p.buf.B = p.buf.B[:len(remaining)]
	p.pos = 0
}

func (p *Parser) unconsumed() []byte { return p.buf.B[p.pos:] }

// --- request line -----------------------------------------------------

func (p *Parser) stepRequestLine() (bool, error) {
	buf := p.unconsumed()
	idx := bytes.Index(buf, crlf)
	if idx == -1 {
		if len(buf) > MaxRequestLineBytes {
			return false, errTargetTooLong
		}
		return false, nil
	}
	line := buf[:idx]
	if len(line) > MaxRequestLineBytes {
		return false, errTargetTooLong
	}

	sp1 := bytes.IndexByte(line, ' ')
	if sp1 == -1 {
		return false, errMalformedRequestLine
	}
	methodTok := line[:sp1]
	rest := line[sp1+1:]

	sp2 := bytes.IndexByte(rest, ' ')
	if sp2 == -1 {
		return false, errMalformedRequestLine
	}
	target := rest[:sp2]
	version := rest[sp2+1:]

	method := ParseMethod(methodTok)
	if method == MethodUnknown {
		return false, errUnknownMethod
	}

	if len(target) == 0 || target[0] != '/' {
		return false, errMalformedRequestLine
	}
	if len(target) > MaxRequestLineBytes {
		return false, errTargetTooLong
	}

	var path, query string
	if qIdx := bytes.IndexByte(target, '?'); qIdx != -1 {
		path = string(target[:qIdx])
		query = string(target[qIdx+1:])
	} else {
		path = string(target)
	}

	switch string(version) {
	case http11:
		p.keepAlive = true
	case http10:
		p.keepAlive = false
	default:
		return false, errInvalidVersion
	}

	p.req.Method = method
	p.req.Path = path
	p.req.Query = query
	p.req.Proto = string(version)

	p.pos += idx + len(crlf)
	p.state = StateHeaders
	return true, nil
}

// --- headers ------------------------------------------------------------

func (p *Parser) stepHeaders() (bool, error) {
	buf := p.unconsumed()

	// Blank line terminates the header section.
	if len(buf) >= len(crlf) && bytes.Equal(buf[:len(crlf)], crlf) {
		p.pos += len(crlf)
		return p.finishHeaders()
	}

	idx := bytes.Index(buf, crlf)
	if idx == -1 {
		if len(buf) > MaxHeaderLineBytes || p.headerBytes+len(buf) > MaxHeaderBytes {
			return false, errHeadersTooLarge
		}
		return false, nil
	}
	line := buf[:idx]
	if len(line) > MaxHeaderLineBytes {
		return false, errHeadersTooLarge
	}

	p.headerCount++
	if p.headerCount > MaxHeaderCount {
		return false, errTooManyHeaders
	}
	p.headerBytes += idx + len(crlf)
	if p.headerBytes > MaxHeaderBytes {
		return false, errHeadersTooLarge
	}

	colon := bytes.IndexByte(line, ':')
	if colon <= 0 {
		return false, errMalformedHeader
	}
	name := line[:colon]
	value := bytes.TrimSpace(line[colon+1:])
	if bytes.IndexByte(name, ' ') != -1 || bytes.IndexByte(name, '\t') != -1 {
		return false, errMalformedHeader
	}

	nameStr := string(name)
	valueStr := string(value)
	p.req.Header.Add(nameStr, valueStr)

	if err := p.processSpecialHeader(nameStr, valueStr); err != nil {
		return false, err
	}

	p.pos += idx + len(crlf)
	return true, nil
}

func (p *Parser) processSpecialHeader(name, value string) error {
	switch lowerASCII(name) {
	case "content-length":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n < 0 {
			return errInvalidContentLength
		}
		if n > MaxBodyBytes {
			return errBodyTooLarge
		}
		p.contentLength = n
	case "transfer-encoding":
		// §4.1: a chunked Transfer-Encoding sets chunked mode and zeros
		// Content-Length, regardless of processing order.
		if containsCommaToken(value, "chunked") {
			p.chunked = true
			p.contentLength = 0
		}
	case "connection":
		if containsCommaToken(value, "close") {
			p.keepAlive = false
		} else if containsCommaToken(value, "keep-alive") && p.req.Proto != http10 {
			// §9: Connection: keep-alive on an HTTP/1.0 request has no effect.
			p.keepAlive = true
		}
	case "host":
		p.hostSeen = true
	}
	return nil
}

func (p *Parser) finishHeaders() (bool, error) {
	if p.req.Proto == http11 && !p.hostSeen {
		return false, errMissingHost
	}
	p.req.KeepAlive = p.keepAlive

	switch {
	case p.chunked:
		p.state = StateChunkSize
	case p.contentLength > 0:
		p.state = StateFixedBody
	default:
		p.state = StateComplete
	}
	return true, nil
}

// --- fixed-length body ---------------------------------------------------

func (p *Parser) stepFixedBody() (bool, error) {
	buf := p.unconsumed()
	remaining := p.contentLength - p.bodyReceived
	if remaining == 0 {
		p.state = StateComplete
		return true, nil
	}
	if len(buf) == 0 {
		return false, nil
	}
	n := int64(len(buf))
	if n > remaining {
		n = remaining
	}
	p.req.Body = append(p.req.Body, buf[:n]...)
	p.bodyReceived += n
	p.pos += int(n)
	if p.bodyReceived >= p.contentLength {
		p.state = StateComplete
	}
	return true, nil
}

// --- chunked body ---------------------------------------------------------

func (p *Parser) stepChunkSize() (bool, error) {
	buf := p.unconsumed()
	idx := bytes.Index(buf, crlf)
	if idx == -1 {
		if len(buf) > MaxHeaderLineBytes {
			return false, errMalformedChunk
		}
		return false, nil
	}
	line := buf[:idx]
	if semi := bytes.IndexByte(line, ';'); semi != -1 {
		line = line[:semi] // chunk extensions are ignored
	}
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return false, errMalformedChunk
	}

	var size int64
	for _, c := range line {
		size <<= 4
		switch {
		case c >= '0' && c <= '9':
			size |= int64(c - '0')
		case c >= 'a' && c <= 'f':
			size |= int64(c-'a') + 10
		case c >= 'A' && c <= 'F':
			size |= int64(c-'A') + 10
		default:
			return false, errMalformedChunk
		}
		if p.bodyReceived+size > MaxBodyBytes {
			return false, errBodyTooLarge
		}
	}

	p.pos += idx + len(crlf)
	p.chunkSize = size
	p.chunkReceived = 0

	if size == 0 {
		p.state = StateChunkTrailers
	} else {
		p.state = StateChunkData
	}
	return true, nil
}

func (p *Parser) stepChunkData() (bool, error) {
	buf := p.unconsumed()
	remaining := p.chunkSize - p.chunkReceived
	if remaining == 0 {
		p.state = StateChunkCRLF
		return true, nil
	}
	if len(buf) == 0 {
		return false, nil
	}
	n := int64(len(buf))
	if n > remaining {
		n = remaining
	}
	if p.bodyReceived+n > MaxBodyBytes {
		return false, errBodyTooLarge
	}
	p.req.Body = append(p.req.Body, buf[:n]...)
	p.bodyReceived += n
	p.chunkReceived += n
	p.pos += int(n)
	if p.chunkReceived >= p.chunkSize {
		p.state = StateChunkCRLF
	}
	return true, nil
}

func (p *Parser) stepChunkCRLF() (bool, error) {
	buf := p.unconsumed()
	if len(buf) < len(crlf) {
		if len(buf) > 0 && buf[0] != crlf[0] {
			return false, errMalformedChunk
		}
		return false, nil
	}
	if !bytes.Equal(buf[:len(crlf)], crlf) {
		return false, errMalformedChunk
	}
	p.pos += len(crlf)
	p.state = StateChunkSize
	return true, nil
}

// stepChunkTrailers consumes (and discards) trailer header lines after the
// zero-size terminating chunk, per §4.1: "Trailer headers are parsed but
// discarded in this core."
func (p *Parser) stepChunkTrailers() (bool, error) {
	buf := p.unconsumed()
	idx := bytes.Index(buf, crlf)
	if idx == -1 {
		if len(buf) > MaxHeaderLineBytes {
			return false, errHeadersTooLarge
		}
		return false, nil
	}
	p.pos += idx + len(crlf)
	if idx == 0 {
		p.state = StateComplete
	}
	// idx > 0: a trailer field-line, discarded; loop continues scanning
	// for the next line (another trailer, or the terminating blank line).
	return true, nil
}

var crlf = []byte("\r\n")
