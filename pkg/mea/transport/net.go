package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

// tcpTransport exchanges length-prefixed frames over a persistent TCP
// connection, the shape every corpus repo doing raw sockets (SPV peer
// dialing, stratum clients) falls back to — there is no third-party
// wrapper for bare TCP framing anywhere in the retrieved pack.
type tcpTransport struct {
	cfg  Config
	conn net.Conn
}

func newTCPTransport(cfg Config) *tcpTransport { return &tcpTransport{cfg: cfg} }

func (t *tcpTransport) Open(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", t.cfg.NetworkHost, t.cfg.NetworkPort)
	d := net.Dialer{Timeout: connectTimeout(t.cfg)}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("transport: tcp dial %s: %w", addr, err)
	}
	t.conn = conn
	return nil
}

func (t *tcpTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}

func (t *tcpTransport) SendFrame(frame []byte) error {
	if t.conn == nil {
		return fmt.Errorf("transport: tcp not open")
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(frame)))
	if _, err := t.conn.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := t.conn.Write(frame)
	return err
}

func (t *tcpTransport) ReceiveFrame(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if t.conn == nil {
		return nil, fmt.Errorf("transport: tcp not open")
	}
	_ = t.conn.SetReadDeadline(time.Now().Add(timeout))

	var lenBuf [4]byte
	if _, err := io.ReadFull(t.conn, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > 1<<20 {
		return nil, fmt.Errorf("transport: tcp frame too large (%d bytes)", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(t.conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// udpTransport exchanges datagram frames; each SendFrame/ReceiveFrame is
// a single packet, with no connection state beyond the remote address.
type udpTransport struct {
	cfg  Config
	conn *net.UDPConn
	raddr *net.UDPAddr
}

func newUDPTransport(cfg Config) *udpTransport { return &udpTransport{cfg: cfg} }

func (t *udpTransport) Open(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", t.cfg.NetworkHost, t.cfg.NetworkPort)
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("transport: udp resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return fmt.Errorf("transport: udp dial %s: %w", addr, err)
	}
	t.conn = conn
	t.raddr = raddr
	return nil
}

func (t *udpTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}

func (t *udpTransport) SendFrame(frame []byte) error {
	if t.conn == nil {
		return fmt.Errorf("transport: udp not open")
	}
	_, err := t.conn.Write(frame)
	return err
}

func (t *udpTransport) ReceiveFrame(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if t.conn == nil {
		return nil, fmt.Errorf("transport: udp not open")
	}
	_ = t.conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 65535)
	n, err := t.conn.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
