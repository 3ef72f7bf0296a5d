package modem

//go:generate go tool mockgen -source=transport.go -destination=mock_transport.go -package=modem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Transport represents an established, bidirectional byte stream to a cellular modem.
//
// A Transport is assumed to be already connected and ready for use. It provides
// the low-level I/O primitives required to send AT commands and receive responses.
// Typical implementations include serial ports, TCP connections to emulators,
// or in-memory fakes used for testing.
type Transport interface {
	io.ReadWriteCloser
}

// Dialer opens a Transport to a cellular modem.
//
// Dialer abstracts how the modem connection is created (for example, via a
// serial port, TCP-based emulator, or test double) and is intended to be used
// during modem construction only. Once a Transport is obtained, the Dialer is
// no longer needed.
type Dialer interface {
	// Dial is responsible for creating and returning a connected Transport. It may
	// perform blocking operations and should respect cancellation and deadlines
	// provided by the context. Dial returns an error if the transport cannot be
	// established.
	Dial(ctx context.Context) (Transport, error)
}

// readTimeouter is implemented by transports whose Read can be bounded, such
// as serial.Port. A Read that times out returns 0, nil.
type readTimeouter interface {
	SetReadTimeout(t time.Duration) error
}

// readDeadliner is implemented by net.Conn based transports, such as a TCP
// link to a modem emulator.
type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type readResult struct {
	data []byte
	err  error
}

// pendingRead replays the result of a Read started elsewhere, then reports
// io.EOF so an io.MultiReader moves on to the transport.
type pendingRead struct {
	ctx  context.Context
	ch   <-chan readResult
	done bool
	data []byte
	err  error
}

func (r *pendingRead) Read(p []byte) (int, error) {
	if !r.done {
		select {
		case res := <-r.ch:
			r.data, r.err, r.done = res.data, res.err, true
		case <-r.ctx.Done():
			return 0, r.ctx.Err()
		}
	}
	if len(r.data) > 0 {
		n := copy(p, r.data)
		r.data = r.data[n:]
		return n, nil
	}
	if r.err != nil {
		return 0, r.err
	}
	return 0, io.EOF
}

// SerialDialer opens a modem over a serial port using go.bug.st/serial.
type SerialDialer struct {
	// PortName is the device path, e.g. "/dev/ttyACM0".
	PortName string
	// BaudRate is used when Mode is nil. Zero means 115200.
	BaudRate int
	// Mode overrides the default 8N1 mode when set.
	Mode *serial.Mode
}

// Dial opens the serial port.
func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if d.PortName == "" {
		return nil, errors.New("modem: serial port name is required")
	}
	if ctx == nil {
		return nil, errors.New("modem: context is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		baud := d.BaudRate
		if baud == 0 {
			baud = 115200
		}
		mode = &serial.Mode{
			BaudRate: baud,
			Parity:   serial.NoParity,
			DataBits: 8,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", d.PortName, err)
	}
	return port, nil
}
