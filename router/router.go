// Package router is the reference implementation of the §6 router contract:
// a static map for exact-match paths plus one segment tree per HTTP method
// for ":name" routes, fronted by an ordered middleware chain. Grounded on
// bolt/core.Router's hybrid design (static map + per-method tree),
// simplified from its cache-line-packed node layout to a plain pointer tree
// — that packing is a micro-optimization no part of this contract asks for,
// so carrying it forward would be copying texture, not grounding.
package router

import (
	"strings"
	"sync"

	"github.com/yourusername/ember/internal/httpwire"
)

// Handler answers one matched request by writing into resp.
type Handler func(req *httpwire.Request, resp *httpwire.Response)

// Middleware runs ahead of route matching, in registration order. Returning
// false short-circuits the chain — neither later middleware nor the matched
// handler runs, and whatever the middleware already wrote to resp is the
// final response.
type Middleware func(req *httpwire.Request, resp *httpwire.Response) bool

// Router implements conn.Dispatcher (and therefore ember.Dispatcher).
type Router struct {
	mu         sync.RWMutex
	static     map[string]Handler // key: "METHOD path"
	trees      map[httpwire.Method]*node
	middleware []Middleware
}

type node struct {
	segment   string
	isParam   bool
	paramName string
	children  []*node
	handler   Handler
}

// New returns an empty Router.
func New() *Router {
	return &Router{
		static: make(map[string]Handler),
		trees:  make(map[httpwire.Method]*node),
	}
}

// Use appends middleware to the chain, run in the order registered.
func (rt *Router) Use(mw Middleware) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.middleware = append(rt.middleware, mw)
}

// Handle registers handler for method and path. path segments beginning
// with ':' are captured as route parameters, matching §6's decoding-deferred
// ":name" semantics.
func (rt *Router) Handle(method httpwire.Method, path string, handler Handler) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if !strings.Contains(path, ":") {
		rt.static[staticKey(method, path)] = handler
		return
	}

	root := rt.trees[method]
	if root == nil {
		root = &node{}
		rt.trees[method] = root
	}

	segments := splitPath(path)
	current := root
	for i, seg := range segments {
		isParam := len(seg) > 0 && seg[0] == ':'
		paramName := ""
		if isParam {
			paramName = seg[1:]
		}
		current = findOrCreateChild(current, seg, isParam, paramName)
		if i == len(segments)-1 {
			current.handler = handler
		}
	}
}

func staticKey(method httpwire.Method, path string) string {
	return method.String() + " " + path
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func findOrCreateChild(parent *node, segment string, isParam bool, paramName string) *node {
	for _, c := range parent.children {
		if c.isParam == isParam && c.segment == segment {
			return c
		}
	}
	child := &node{segment: segment, isParam: isParam, paramName: paramName}
	parent.children = append(parent.children, child)
	return child
}

// lookup returns the matched handler and, for parameterized routes, the
// extracted params. Static routes are tried first (§6: O(1) exact match).
func (rt *Router) lookup(method httpwire.Method, path string) (Handler, map[string]string) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	if h, ok := rt.static[staticKey(method, path)]; ok {
		return h, nil
	}

	root := rt.trees[method]
	if root == nil {
		return nil, nil
	}

	segments := splitPath(path)
	params := make(map[string]string)
	if h := searchNode(root, segments, 0, params); h != nil {
		return h, params
	}
	return nil, nil
}

func searchNode(n *node, segments []string, idx int, params map[string]string) Handler {
	if idx >= len(segments) {
		return n.handler
	}
	segment := segments[idx]

	for _, child := range n.children {
		if !child.isParam && child.segment == segment {
			if h := searchNode(child, segments, idx+1, params); h != nil {
				return h
			}
		}
	}
	for _, child := range n.children {
		if child.isParam {
			params[child.paramName] = segment
			if h := searchNode(child, segments, idx+1, params); h != nil {
				return h
			}
			delete(params, child.paramName)
		}
	}
	return nil
}

// Dispatch implements conn.Dispatcher: run middleware, then route matching.
// Returns false when no route matches (the engine then synthesizes a 404).
func (rt *Router) Dispatch(req *httpwire.Request, resp *httpwire.Response) bool {
	rt.mu.RLock()
	chain := rt.middleware
	rt.mu.RUnlock()

	for _, mw := range chain {
		if !mw(req, resp) {
			return true // short-circuited; a response was already produced
		}
	}

	handler, params := rt.lookup(req.Method, req.Path)
	if handler == nil {
		return false
	}
	if params != nil {
		req.Params = params
	}
	handler(req, resp)
	return true
}
