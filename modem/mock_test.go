package modem_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	gomock "go.uber.org/mock/gomock"
	"i4.energy/across/lteclient/at"
	"i4.energy/across/lteclient/modem"
)

type MockSequenceBuilder struct {
	transport *modem.MockTransport
	calls     []any
}

func NewMockSequence(transport *modem.MockTransport) *MockSequenceBuilder {
	return &MockSequenceBuilder{
		transport: transport,
		calls:     []any{},
	}
}

// Command expects cmd to be written and answers it with a single read
// returning resp.
func (b *MockSequenceBuilder) Command(cmd, resp string) *MockSequenceBuilder {
	wire := cmd + "\r"
	b.calls = append(b.calls,
		b.transport.EXPECT().Write([]byte(wire)).Return(len(wire), nil),
		b.transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			return copy(p, resp), nil
		}),
	)
	return b
}

// Reply answers the previous command with one more read.
func (b *MockSequenceBuilder) Reply(resp string) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			return copy(p, resp), nil
		}),
	)
	return b
}

func (b *MockSequenceBuilder) AT() *MockSequenceBuilder {
	return b.Command(at.CmdAt, "AT\r\nOK\r\n")
}

func (b *MockSequenceBuilder) EchoOff() *MockSequenceBuilder {
	return b.Command(at.CmdEchoOff, "ATE0\r\nOK\r\n")
}

func (b *MockSequenceBuilder) ExtendedErrors() *MockSequenceBuilder {
	return b.Command(at.CmdVerboseErrors, "OK\r\n")
}

func (b *MockSequenceBuilder) OK(cmd string) *MockSequenceBuilder {
	return b.Command(cmd, "OK\r\n")
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}

// initMockCalls returns the expectations for the sequence run by modem.New.
func initMockCalls(transport *modem.MockTransport) []any {
	return NewMockSequence(transport).
		AT().
		EchoOff().
		ExtendedErrors().
		Build()
}

// newDirectModem initializes a modem over tt without starting its Loop.
func newDirectModem(t *testing.T, tt *modem.TestTransport, opts func(*modem.ConfigBuilder)) *modem.Modem {
	t.Helper()

	for range 3 {
		tt.SendData("OK\r\n")
	}

	builder := modem.NewConfigBuilder().
		WithDialer(modem.TestDialer{Transport: tt}).
		WithPartialPolicy(modem.PartialReassemble)
	if opts != nil {
		opts(builder)
	}
	config, err := builder.Build()
	require.NoError(t, err)

	m, err := modem.New(context.Background(), config)
	require.NoError(t, err)

	for range 3 {
		<-tt.Writes()
	}
	t.Cleanup(func() { m.Close() })
	return m
}

// startLoop runs the Loop of m until the test ends. Every command written
// afterwards is answered by respond, or with a plain OK when respond is nil.
func startLoop(t *testing.T, m *modem.Modem, tt *modem.TestTransport, respond func(cmd string)) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	loopDone, err := m.Start(ctx)
	require.NoError(t, err)

	answered := make(chan struct{})
	go func() {
		defer close(answered)
		for {
			select {
			case <-ctx.Done():
				return
			case cmd := <-tt.Writes():
				if respond != nil {
					respond(cmd)
				} else {
					tt.SendData("OK\r\n")
				}
			}
		}
	}()

	t.Cleanup(func() {
		cancel()
		<-loopDone
		<-answered
	})
}

// newLoopModem initializes a modem over tt and runs its Loop until the test
// ends.
func newLoopModem(t *testing.T, tt *modem.TestTransport, opts func(*modem.ConfigBuilder), respond func(cmd string)) *modem.Modem {
	t.Helper()
	m := newDirectModem(t, tt, opts)
	startLoop(t, m, tt, respond)
	return m
}
