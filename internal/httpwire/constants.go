// Package httpwire implements the incremental HTTP/1.1 request parser, the
// header multimap, and the Response builder that the connection engine
// (package conn) serializes.
// It holds zero third-party dependencies beyond bytebufferpool for its
// internal scratch buffers — the wire format itself is plain stdlib bytes.
package httpwire

// Size limits enforced by the parser. Exceeding any of these transitions the
// parser to StateError with the matching status code (see errors.go).
const (
	MaxRequestLineBytes = 4096        // request-line, including method/target/version
	MaxHeaderLineBytes  = 8192        // a single "Name: Value" line
	MaxHeaderCount      = 100         // number of header fields
	MaxHeaderBytes      = 16384       // total bytes across all header lines
	MaxBodyBytes        = 1 << 20     // 1 MiB, applies to both fixed and chunked bodies
	MaxRequestBuffer    = MaxRequestLineBytes + MaxHeaderBytes + MaxBodyBytes
)

// Method is the enumerated HTTP/1.1 request method.
type Method uint8

const (
	MethodUnknown Method = iota
	MethodGET
	MethodPOST
	MethodPUT
	MethodDELETE
	MethodPATCH
	MethodHEAD
	MethodOPTIONS
)

func (m Method) String() string {
	switch m {
	case MethodGET:
		return "GET"
	case MethodPOST:
		return "POST"
	case MethodPUT:
		return "PUT"
	case MethodDELETE:
		return "DELETE"
	case MethodPATCH:
		return "PATCH"
	case MethodHEAD:
		return "HEAD"
	case MethodOPTIONS:
		return "OPTIONS"
	default:
		return ""
	}
}

// ParseMethod matches a method token byte-for-byte against the enum. Unknown
// tokens (including lowercase or partial matches) return MethodUnknown.
func ParseMethod(tok []byte) Method {
	switch len(tok) {
	case 3:
		if string(tok) == "GET" {
			return MethodGET
		}
		if string(tok) == "PUT" {
			return MethodPUT
		}
	case 4:
		if string(tok) == "POST" {
			return MethodPOST
		}
		if string(tok) == "HEAD" {
			return MethodHEAD
		}
	case 5:
		if string(tok) == "PATCH" {
			return MethodPATCH
		}
	case 6:
		if string(tok) == "DELETE" {
			return MethodDELETE
		}
	case 7:
		if string(tok) == "OPTIONS" {
			return MethodOPTIONS
		}
	}
	return MethodUnknown
}

// State is the parser's current position in the request grammar.
type State uint8

const (
	StateRequestLine State = iota
	StateHeaders
	StateFixedBody
	StateChunkSize
	StateChunkData
	StateChunkCRLF
	StateChunkTrailers
	StateComplete
	StateError
)

// Status is the outcome of a call to Parser.Execute.
type Status uint8

const (
	StatusIncomplete Status = iota
	StatusComplete
	StatusError
)

const (
	http10 = "HTTP/1.0"
	http11 = "HTTP/1.1"
)

// canonical reason phrases, §4.2. Unknown codes serialize with "OK".
var reasonPhrases = map[int]string{
	200: "OK",
	201: "Created",
	202: "Accepted",
	204: "No Content",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	413: "Payload Too Large",
	414: "URI Too Long",
	431: "Request Header Fields Too Large",
	500: "Internal Server Error",
	501: "Not Implemented",
	502: "Bad Gateway",
	503: "Service Unavailable",
}

// ReasonPhrase returns the canonical reason phrase for status, or "OK" for
// any code not in the table above (§4.2).
func ReasonPhrase(status int) string {
	if p, ok := reasonPhrases[status]; ok {
		return p
	}
	return "OK"
}
