//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

package ember

import (
	"fmt"
	"net"
)

// serveAsync has no portable non-blocking accept/read/write primitives on
// platforms other than the epoll (Linux) and kqueue (BSD/Darwin) targets — golang.org/x/sys/unix's
// socket syscalls are themselves POSIX-shaped. Threaded mode remains fully
// available everywhere since it only needs net.Conn.
func (s *Server) serveAsync(ln net.Listener) error {
	return fmt.Errorf("ember: async mode is not supported on this platform; use Threaded mode")
}
