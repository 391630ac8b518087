//go:build !linux

package sockopt

import (
	"net"
	"time"
)

func setProbes(*net.TCPConn, time.Duration) error {
	return nil
}
