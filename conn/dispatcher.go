package conn

import "github.com/yourusername/ember/internal/httpwire"

// Dispatcher is the narrow contract between the connection engine and an
// external router/middleware stack (§6): given a parsed Request and a fresh
// Response, run middleware and route matching, returning true if a handler
// (or a short-circuiting middleware) ran and false if no route matched.
// Whatever it returns, the engine synthesizes a 404 when the Response is
// still unwritten (Sent() false) after Dispatch (§3, §4.2), so a Dispatcher
// that writes nothing for a request it does not recognize yields a 404.
type Dispatcher interface {
	Dispatch(req *httpwire.Request, resp *httpwire.Response) bool
}

// DispatcherFunc adapts a plain function to the Dispatcher interface.
type DispatcherFunc func(req *httpwire.Request, resp *httpwire.Response) bool

func (f DispatcherFunc) Dispatch(req *httpwire.Request, resp *httpwire.Response) bool {
	return f(req, resp)
}
