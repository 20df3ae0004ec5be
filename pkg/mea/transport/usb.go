// USB/serial connector, grounded on guiperry-HASHER's
// internal/driver/device/usb_device.go Bitmain-ASIC framing: a gousb
// bulk endpoint pair instead of a termios serial line, since the MEA
// hardware contract (spec.md §6 "transport: serial") is generic enough
// that a USB-CDC bridge is the idiomatic stand-in the corpus shows.
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
)

const (
	meaVendorID  = gousb.ID(0x0483) // generic STM-class vendor ID, matching the
	meaProductID = gousb.ID(0x5740) // corpus's USB-CDC ACM device identification pattern
)

type usbTransport struct {
	cfg     Config
	ctx     *gousb.Context
	dev     *gousb.Device
	iface   *gousb.Interface
	ifDone  func()
	out     *gousb.OutEndpoint
	in      *gousb.InEndpoint
}

func newUSBTransport(cfg Config) *usbTransport { return &usbTransport{cfg: cfg} }

func (t *usbTransport) Open(ctx context.Context) error {
	t.ctx = gousb.NewContext()

	dev, err := t.ctx.OpenDeviceWithVIDPID(meaVendorID, meaProductID)
	if err != nil || dev == nil {
		if t.ctx != nil {
			t.ctx.Close()
		}
		return fmt.Errorf("transport: usb open %s: %w", t.cfg.DevicePath, err)
	}
	t.dev = dev

	_ = dev.SetAutoDetach(true)

	iface, done, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		t.ctx.Close()
		return fmt.Errorf("transport: usb claim interface: %w", err)
	}
	t.iface = iface
	t.ifDone = done

	out, err := iface.OutEndpoint(1)
	if err != nil {
		t.Close()
		return fmt.Errorf("transport: usb out endpoint: %w", err)
	}
	in, err := iface.InEndpoint(1)
	if err != nil {
		t.Close()
		return fmt.Errorf("transport: usb in endpoint: %w", err)
	}
	t.out = out
	t.in = in
	return nil
}

func (t *usbTransport) Close() error {
	if t.ifDone != nil {
		t.ifDone()
	}
	if t.dev != nil {
		_ = t.dev.Close()
	}
	if t.ctx != nil {
		_ = t.ctx.Close()
	}
	return nil
}

func (t *usbTransport) SendFrame(frame []byte) error {
	if t.out == nil {
		return fmt.Errorf("transport: usb not open")
	}
	framed := append(append([]byte(nil), frame...), crcSuffix(frame)...)
	_, err := t.out.Write(framed)
	return err
}

func (t *usbTransport) ReceiveFrame(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if t.in == nil {
		return nil, fmt.Errorf("transport: usb not open")
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	buf := make([]byte, 512)
	n, err := t.in.ReadContext(rctx, buf)
	if err != nil {
		return nil, err
	}
	if n < 2 {
		return nil, fmt.Errorf("transport: usb short frame (%d bytes)", n)
	}
	return buf[:n-2], nil // trailing 2 bytes are the CRC16 suffix
}

func crcSuffix(frame []byte) []byte {
	crc := CRC16(frame)
	return []byte{byte(crc >> 8), byte(crc)}
}
