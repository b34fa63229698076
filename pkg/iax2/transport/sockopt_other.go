//go:build !linux && !darwin

package transport

import "net"

const socketBufferSize = 1 << 20

func tuneSocketBuffers(conn *net.UDPConn) {
	conn.SetReadBuffer(socketBufferSize)
	conn.SetWriteBuffer(socketBufferSize)
}
