package httpwire

import "github.com/valyala/bytebufferpool"

// Response is the mutable builder described in §3. Date, Content-Length, and
// Connection are deliberately not fields here — the connection engine's
// serializer (package conn) derives and writes those three directly,
// overwriting anything the handler set on Header for those names.
type Response struct {
	Status int
	Header Header

	body *bytebufferpool.ByteBuffer
	sent bool
}

// NewResponse returns a fresh, unsent 200 response with an empty body.
func NewResponse() *Response {
	return &Response{Status: 200, body: bytebufferpool.Get()}
}

// Sent reports whether a handler has produced a response (WriteHeader or
// Write was called at least once). The connection engine synthesizes a 404
// when dispatch completes with Sent() still false (§3, §4.2).
func (r *Response) Sent() bool { return r.sent }

// WriteHeader sets the status code. Only the first call takes effect,
// mirroring ResponseWriter.WriteHeader's gating, and marks the
// response as sent.
func (r *Response) WriteHeader(status int) {
	if r.sent {
		return
	}
	r.Status = status
	r.sent = true
}

// Write appends to the response body, implicitly calling WriteHeader(200)
// if no status was set yet.
func (r *Response) Write(p []byte) (int, error) {
	if !r.sent {
		r.WriteHeader(200)
	}
	return r.body.Write(p)
}

// WriteString appends a string to the response body.
func (r *Response) WriteString(s string) (int, error) {
	if !r.sent {
		r.WriteHeader(200)
	}
	return r.body.WriteString(s)
}

// Body returns the accumulated response body bytes.
func (r *Response) Body() []byte { return r.body.B }

// Reset clears the response for reuse, keeping the pooled body buffer.
func (r *Response) Reset() {
	r.Status = 200
	r.Header.Reset()
	r.body.Reset()
	r.sent = false
}

// Release returns the pooled body buffer. Call once the response has been
// fully serialized and will not be reused.
func (r *Response) Release() {
	bytebufferpool.Put(r.body)
	r.body = nil
}
