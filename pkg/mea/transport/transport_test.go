package transport

import (
	"context"
	"net"
	"os"
	"testing"
	"time"
)

func TestCRC16KnownValue(t *testing.T) {
	// CRC-16/MODBUS of the empty message is the seed 0xFFFF.
	if got := CRC16(nil); got != 0xFFFF {
		t.Errorf("CRC16(nil) = %#x, want %#x", got, 0xFFFF)
	}
}

func TestCRC16IsDeterministicAndSensitiveToInput(t *testing.T) {
	a := CRC16([]byte("stimulus-frame"))
	b := CRC16([]byte("stimulus-frame"))
	if a != b {
		t.Fatalf("CRC16 is not deterministic: %#x vs %#x", a, b)
	}
	c := CRC16([]byte("stimulus-Frame"))
	if a == c {
		t.Fatal("expected a single-byte change to alter the CRC16")
	}
}

func TestOpenRejectsUnknownKind(t *testing.T) {
	_, err := Open(context.Background(), Config{Kind: "quantum_entanglement"})
	if err == nil {
		t.Fatal("expected an error for an unknown transport kind")
	}
}

func TestHDF5StandInFramesRoundTrip(t *testing.T) {
	path := t.TempDir() + "/mea-test.h5log"
	defer os.Remove(path)

	tr, err := Open(context.Background(), Config{Kind: HDF5, DevicePath: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tr.Close()

	frame := []byte{1, 2, 3, 4, 5}
	if err := tr.SendFrame(frame); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}

	got, err := tr.ReceiveFrame(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("ReceiveFrame: %v", err)
	}
	if len(got) != len(frame) {
		t.Fatalf("expected %d bytes back, got %d", len(frame), len(got))
	}
	for i := range frame {
		if got[i] != frame[i] {
			t.Fatalf("byte %d mismatch: got %d, want %d", i, got[i], frame[i])
		}
	}
}

func TestTCPTransportRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	defer ln.Close()

	addr := ln.Addr().(*net.TCPAddr)

	serverDone := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			serverDone <- nil
			return
		}
		defer conn.Close()

		var lenBuf [4]byte
		if _, err := conn.Read(lenBuf[:]); err != nil {
			serverDone <- nil
			return
		}
		n := int(lenBuf[0]) | int(lenBuf[1])<<8 | int(lenBuf[2])<<16 | int(lenBuf[3])<<24
		buf := make([]byte, n)
		total := 0
		for total < n {
			k, err := conn.Read(buf[total:])
			if err != nil {
				break
			}
			total += k
		}
		serverDone <- buf

		// echo back with the same length-prefix framing
		conn.Write(lenBuf[:])
		conn.Write(buf)
	}()

	tr, err := Open(context.Background(), Config{
		Kind:        TCP,
		NetworkHost: "127.0.0.1",
		NetworkPort: uint16(addr.Port),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tr.Close()

	payload := []byte("calibration-pulse")
	if err := tr.SendFrame(payload); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}

	received := <-serverDone
	if string(received) != string(payload) {
		t.Fatalf("server received %q, want %q", received, payload)
	}

	echoed, err := tr.ReceiveFrame(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("ReceiveFrame: %v", err)
	}
	if string(echoed) != string(payload) {
		t.Fatalf("echoed frame %q, want %q", echoed, payload)
	}
}
