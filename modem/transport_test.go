package modem

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"testing"
	"time"

	"go.bug.st/serial"
	"go.uber.org/mock/gomock"
)

func TestSerialDialer_Dial_EmptyPortName(t *testing.T) {
	dialer := SerialDialer{
		PortName: "",
	}

	ctx := context.Background()
	transport, err := dialer.Dial(ctx)

	if err == nil {
		t.Error("expected error for empty port name")
	}
	if transport != nil {
		t.Error("expected nil transport for empty port name")
	}
	if err.Error() != "modem: serial port name is required" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestSerialDialer_Dial_NilContext(t *testing.T) {
	dialer := SerialDialer{
		PortName: "/dev/ttyUSB0",
	}

	transport, err := dialer.Dial(nil)

	if err == nil {
		t.Error("expected error for nil context")
	}
	if transport != nil {
		t.Error("expected nil transport for nil context")
	}
	if err.Error() != "modem: context is nil" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestSerialDialer_Dial_ContextCanceled(t *testing.T) {
	dialer := SerialDialer{
		PortName: "/dev/nonexistent", // Port that should fail to open
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	transport, err := dialer.Dial(ctx)

	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
	if transport != nil {
		t.Error("expected nil transport for canceled context")
	}
}

func TestSerialDialer_Dial_WithMode(t *testing.T) {
	dialer := SerialDialer{
		PortName: "/dev/nonexistent", // This will fail, but we test the path
		Mode: &serial.Mode{
			BaudRate: 115200,
			Parity:   serial.NoParity,
			DataBits: 8,
			StopBits: serial.OneStopBit,
		},
	}

	ctx := context.Background()
	transport, err := dialer.Dial(ctx)

	// Since we're using a non-existent port, expect an error
	if err == nil {
		t.Error("expected error for non-existent port")
	}
	if transport != nil {
		t.Error("expected nil transport for non-existent port")
	}
	// Check that the error mentions the port name
	if err != nil && err.Error() == "" {
		t.Error("expected descriptive error message")
	}
}

func TestSerialDialer_Dial_DefaultMode(t *testing.T) {
	dialer := SerialDialer{
		PortName: "/dev/nonexistent", // This will fail, but we test the path
		// Mode is nil - should use defaults
	}

	ctx := context.Background()
	transport, err := dialer.Dial(ctx)

	// Since we're using a non-existent port, expect an error
	if err == nil {
		t.Error("expected error for non-existent port")
	}
	if transport != nil {
		t.Error("expected nil transport for non-existent port")
	}
}

// silentPort is a readTimeouter whose reads always time out.
type silentPort struct {
	timeouts []time.Duration
	timeout  time.Duration
}

func (p *silentPort) SetReadTimeout(t time.Duration) error {
	p.timeouts = append(p.timeouts, t)
	p.timeout = t
	return nil
}

func (p *silentPort) Read([]byte) (int, error) {
	time.Sleep(p.timeout)
	return 0, nil
}

func (p *silentPort) Write(b []byte) (int, error) { return len(b), nil }
func (p *silentPort) Close() error                { return nil }

func TestReceive_SlicedByDeadline(t *testing.T) {
	port := &silentPort{}
	m := &Modem{transport: port, logger: slog.New(slog.DiscardHandler)}

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := m.receive(ctx, make([]byte, recvSize))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("silent port outlived the deadline: %v", elapsed)
	}
	if len(port.timeouts) < 2 {
		t.Fatalf("expected several read slices, got %v", port.timeouts)
	}
	for _, d := range port.timeouts {
		if d > readSlice {
			t.Errorf("read slice %v exceeds %v", d, readSlice)
		}
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name      string
		cmd       string
		buf       string
		solicited string
		urcs      []string
	}{
		{
			name:      "No notifications",
			cmd:       "AT+CIMI",
			buf:       "242016000001234\r\nOK\r\n",
			solicited: "242016000001234\r\nOK\r\n",
		},
		{
			name:      "Notification before and after final",
			cmd:       "AT+CFUN=1",
			buf:       "+CSCON: 1\r\nOK\r\n+CEREG: 1\r\n",
			solicited: "OK\r\n",
			urcs:      []string{"+CSCON: 1", "+CEREG: 1"},
		},
		{
			name:      "Query reply stays solicited",
			cmd:       "AT+CEREG?",
			buf:       "+CEREG: 0,1\r\nOK\r\n",
			solicited: "+CEREG: 0,1\r\nOK\r\n",
		},
		{
			name:      "Trailing fragment kept",
			cmd:       "AT+CGDCONT?",
			buf:       "+CGDCONT: 0,\"IP\"\r\nO",
			solicited: "+CGDCONT: 0,\"IP\"\r\nO",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			solicited, urcs := split(tt.cmd, []byte(tt.buf))
			if string(solicited) != tt.solicited {
				t.Errorf("solicited: expected %q, got %q", tt.solicited, solicited)
			}
			if !slices.Equal(urcs, tt.urcs) {
				t.Errorf("urcs: expected %q, got %q", tt.urcs, urcs)
			}
		})
	}
}

func TestDialerInterface(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDialer := NewMockDialer(ctrl)
	mockTransport := NewMockTransport(ctrl)

	// Test that mockDialer implements Dialer interface
	var _ Dialer = mockDialer

	ctx := context.Background()
	mockDialer.EXPECT().Dial(ctx).Return(mockTransport, nil)

	transport, err := mockDialer.Dial(ctx)
	if err != nil {
		t.Errorf("unexpected dial error: %v", err)
	}
	if transport != mockTransport {
		t.Error("expected mock transport to be returned")
	}
}

func TestDialerInterface_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDialer := NewMockDialer(ctrl)
	dialError := errors.New("dial failed")

	ctx := context.Background()
	mockDialer.EXPECT().Dial(ctx).Return(nil, dialError)

	transport, err := mockDialer.Dial(ctx)
	if err != dialError {
		t.Errorf("expected dial error, got: %v", err)
	}
	if transport != nil {
		t.Error("expected nil transport on error")
	}
}
