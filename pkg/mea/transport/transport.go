// Package transport implements the per-transport connectors the real-MEA
// backend drives: serial/USB, TCP, UDP, a local IPC channel standing in
// for shared-memory/named-pipe transports, and a minimal framed file
// stream standing in for an HDF5 device log. Every connector satisfies
// the same narrow Transport contract so pkg/mea never branches on
// transport kind beyond construction.
package transport

import (
	"context"
	"fmt"
	"time"
)

// Kind identifies which connector a Config selects.
type Kind string

const (
	Serial       Kind = "serial"
	TCP          Kind = "tcp"
	UDP          Kind = "udp"
	SharedMemory Kind = "shared_memory"
	NamedPipe    Kind = "named_pipe"
	HDF5         Kind = "hdf5"
)

// Config carries every transport's construction parameters; unused
// fields for a given Kind are ignored.
type Config struct {
	Kind             Kind
	DevicePath       string
	NetworkHost      string
	NetworkPort      uint16
	BaudRate         uint32
	ConnectTimeoutMS uint32
	ReadTimeoutMS    uint32
}

// Transport is the narrow connector contract: open a session, exchange
// one request/response frame pair, and close. Framing (how a stimulation
// pattern becomes bytes, how a response frame is parsed) is transport-
// specific and lives behind SendFrame/ReceiveFrame.
type Transport interface {
	Open(ctx context.Context) error
	Close() error
	SendFrame(frame []byte) error
	ReceiveFrame(ctx context.Context, timeout time.Duration) ([]byte, error)
}

// Open constructs and opens the connector selected by cfg.Kind.
func Open(ctx context.Context, cfg Config) (Transport, error) {
	var t Transport
	switch cfg.Kind {
	case Serial:
		t = newUSBTransport(cfg)
	case TCP:
		t = newTCPTransport(cfg)
	case UDP:
		t = newUDPTransport(cfg)
	case SharedMemory, NamedPipe:
		t = newIPCTransport(cfg)
	case HDF5:
		t = newHDF5Transport(cfg)
	default:
		return nil, fmt.Errorf("transport: unknown kind %q", cfg.Kind)
	}
	if err := t.Open(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func connectTimeout(cfg Config) time.Duration {
	if cfg.ConnectTimeoutMS == 0 {
		return 5 * time.Second
	}
	return time.Duration(cfg.ConnectTimeoutMS) * time.Millisecond
}

func readTimeout(cfg Config) time.Duration {
	if cfg.ReadTimeoutMS == 0 {
		return 2 * time.Second
	}
	return time.Duration(cfg.ReadTimeoutMS) * time.Millisecond
}
