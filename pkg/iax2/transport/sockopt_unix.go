//go:build linux || darwin

package transport

import (
	"log/slog"
	"net"

	"golang.org/x/sys/unix"
)

// socketBufferSize sizes the kernel buffers so short scheduling stalls in
// the protocol goroutine do not drop media bursts.
const socketBufferSize = 1 << 20

func tuneSocketBuffers(conn *net.UDPConn) {
	raw, err := conn.SyscallConn()
	if err != nil {
		slog.Warn("socket buffer tuning unavailable", "error", err)
		return
	}
	ctrlErr := raw.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, socketBufferSize); err != nil {
			slog.Warn("set SO_RCVBUF failed", "error", err)
		}
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, socketBufferSize); err != nil {
			slog.Warn("set SO_SNDBUF failed", "error", err)
		}
	})
	if ctrlErr != nil {
		slog.Warn("socket buffer tuning failed", "error", ctrlErr)
	}
}
