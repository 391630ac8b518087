//go:build linux

package sockopt

import (
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// keepAliveProbes is how many unanswered probes drop the connection.
const keepAliveProbes = 4

func setProbes(tc *net.TCPConn, interval time.Duration) error {
	raw, err := tc.SyscallConn()
	if err != nil {
		return err
	}

	secs := max(int(interval/time.Second), 1)

	var serr error
	err = raw.Control(func(fd uintptr) {
		if serr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, secs); serr != nil {
			return
		}
		serr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPCNT, keepAliveProbes)
	})
	if err != nil {
		return err
	}
	return serr
}
