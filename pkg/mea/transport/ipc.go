// Local IPC connector standing in for the shared-memory and named-pipe
// transports: a ZeroMQ REQ/REP pair over an ipc:// endpoint, grounded on
// goPool's use of pebbe/zmq4 for local pub/sub plumbing.
package transport

import (
	"context"
	"fmt"
	"time"

	zmq "github.com/pebbe/zmq4"
)

type ipcTransport struct {
	cfg    Config
	socket *zmq.Socket
}

func newIPCTransport(cfg Config) *ipcTransport { return &ipcTransport{cfg: cfg} }

func (t *ipcTransport) endpoint() string {
	path := t.cfg.DevicePath
	if path == "" {
		path = "/tmp/biomining-mea.sock"
	}
	return "ipc://" + path
}

func (t *ipcTransport) Open(ctx context.Context) error {
	sock, err := zmq.NewSocket(zmq.REQ)
	if err != nil {
		return fmt.Errorf("transport: ipc socket: %w", err)
	}
	if err := sock.SetSndtimeo(connectTimeout(t.cfg)); err != nil {
		sock.Close()
		return err
	}
	if err := sock.SetRcvtimeo(readTimeout(t.cfg)); err != nil {
		sock.Close()
		return err
	}
	if err := sock.Connect(t.endpoint()); err != nil {
		sock.Close()
		return fmt.Errorf("transport: ipc connect %s: %w", t.endpoint(), err)
	}
	t.socket = sock
	return nil
}

func (t *ipcTransport) Close() error {
	if t.socket == nil {
		return nil
	}
	return t.socket.Close()
}

func (t *ipcTransport) SendFrame(frame []byte) error {
	if t.socket == nil {
		return fmt.Errorf("transport: ipc not open")
	}
	_, err := t.socket.SendBytes(frame, 0)
	return err
}

func (t *ipcTransport) ReceiveFrame(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if t.socket == nil {
		return nil, fmt.Errorf("transport: ipc not open")
	}
	if err := t.socket.SetRcvtimeo(timeout); err != nil {
		return nil, err
	}
	return t.socket.RecvBytes(0)
}
