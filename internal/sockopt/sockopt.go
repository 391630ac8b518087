// Package sockopt tunes TCP sockets used for transfers.
package sockopt

import (
	"net"
	"time"
)

// KeepAlive enables TCP keepalive on c with the given probe interval.
// Connections that are not *net.TCPConn, and a non-positive interval, are left unchanged.
func KeepAlive(c net.Conn, interval time.Duration) error {
	tc, ok := c.(*net.TCPConn)
	if !ok || interval <= 0 {
		return nil
	}

	if err := tc.SetKeepAlive(true); err != nil {
		return err
	}
	if err := tc.SetKeepAlivePeriod(interval); err != nil {
		return err
	}

	return setProbes(tc, interval)
}
