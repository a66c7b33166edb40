package httpwire

// Header is an insertion-ordered, case-insensitively-keyed multimap, per §9's
// Design Notes: "a small insertion-ordered map keyed by lower-cased name,
// storing the original-case name alongside the value for serialization
// echo." Adapted from http11.Header (which trades order for a
// fixed inline array); we need insertion order for VisitAll's echo, so this
// is a plain append-only slice with a linear case-insensitive scan — fine at
// the header counts this wire format permits (≤100).
type Header struct {
	fields []headerField
}

type headerField struct {
	name  string // original casing, for echo
	lower string // canonical lower-case key
	value string
}

func lowerASCII(s string) string {
	hasUpper := false
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			hasUpper = true
			break
		}
	}
	if !hasUpper {
		return s
	}
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

// Add inserts a header value. A second occurrence of most names replaces the
// prior value in place (preserving its original position); Set-Cookie is the
// one exception and accumulates, matching §3's duplicate-name policy.
func (h *Header) Add(name, value string) {
	lower := lowerASCII(name)
	if lower != "set-cookie" {
		for i := range h.fields {
			if h.fields[i].lower == lower {
				h.fields[i].name = name
				h.fields[i].value = value
				return
			}
		}
	}
	h.fields = append(h.fields, headerField{name: name, lower: lower, value: value})
}

// Set is an alias for Add; both replace-by-default per the duplicate-name
// policy. Kept as a distinct name because callers reach for Set when they
// mean "there is exactly one of these" (Content-Type, Location, ...).
func (h *Header) Set(name, value string) { h.Add(name, value) }

// Get returns the first value stored under name, case-insensitively, or ""
// if absent.
func (h *Header) Get(name string) string {
	lower := lowerASCII(name)
	for i := range h.fields {
		if h.fields[i].lower == lower {
			return h.fields[i].value
		}
	}
	return ""
}

// Values returns every value stored under name, in insertion order. Used to
// enumerate accumulated Set-Cookie values.
func (h *Header) Values(name string) []string {
	lower := lowerASCII(name)
	var out []string
	for i := range h.fields {
		if h.fields[i].lower == lower {
			out = append(out, h.fields[i].value)
		}
	}
	return out
}

// Has reports whether name is present, case-insensitively.
func (h *Header) Has(name string) bool {
	lower := lowerASCII(name)
	for i := range h.fields {
		if h.fields[i].lower == lower {
			return true
		}
	}
	return false
}

// ContainsToken reports whether name's value (or any of its accumulated
// values) contains token as a comma-separated, case-insensitive member —
// e.g. Connection: keep-alive, Transfer-Encoding: chunked.
func (h *Header) ContainsToken(name, token string) bool {
	token = lowerASCII(token)
	lower := lowerASCII(name)
	for i := range h.fields {
		if h.fields[i].lower != lower {
			continue
		}
		if containsCommaToken(h.fields[i].value, token) {
			return true
		}
	}
	return false
}

func containsCommaToken(value, token string) bool {
	start := 0
	for i := 0; i <= len(value); i++ {
		if i == len(value) || value[i] == ',' {
			part := trimOWS(value[start:i])
			if lowerASCII(part) == token {
				return true
			}
			start = i + 1
		}
	}
	return false
}

func trimOWS(s string) string {
	i, j := 0, len(s)
	for i < j && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	for j > i && (s[j-1] == ' ' || s[j-1] == '\t') {
		j--
	}
	return s[i:j]
}

// Del removes every entry stored under name, case-insensitively.
func (h *Header) Del(name string) {
	lower := lowerASCII(name)
	out := h.fields[:0]
	for _, f := range h.fields {
		if f.lower != lower {
			out = append(out, f)
		}
	}
	h.fields = out
}

// Len returns the number of header entries (accumulated duplicates count
// individually).
func (h *Header) Len() int { return len(h.fields) }

// VisitAll calls visitor for each header in insertion order. Iteration stops
// early if visitor returns false.
func (h *Header) VisitAll(visitor func(name, value string) bool) {
	for _, f := range h.fields {
		if !visitor(f.name, f.value) {
			return
		}
	}
}

// Reset clears all entries for reuse (pooled Request/Response reuse between
// pipelined requests).
func (h *Header) Reset() {
	h.fields = h.fields[:0]
}
