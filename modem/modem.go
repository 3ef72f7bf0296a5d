package modem

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"i4.energy/across/lteclient/at"
)

// Modem represents an LTE modem that communicates via AT commands.
// It provides serialized command execution, a registration gate fed by
// unsolicited notifications, and an optional event loop that owns all
// transport reads so notifications are observed between commands.
type Modem struct {
	// transport provides the physical connection to the modem (serial, TCP, etc.)
	transport Transport
	// config contains the modem configuration settings
	config Config
	// logger receives command traces and dropped notifications
	logger *slog.Logger
	// gate is set when the modem reports home-network registration
	gate *Gate

	// mu guards closed and loopRunning
	mu sync.Mutex
	// closed indicates if the modem has been shut down
	closed bool
	// loopRunning indicates if the Loop is currently running
	loopRunning bool
	// cmdMu serializes Execute; one command is in flight at a time
	cmdMu sync.Mutex
	// stale names a command that gave up before its reply ended; the rest
	// of that reply is discarded before the next command is written.
	// Guarded by mu.
	stale string
	// inflight carries a direct-mode Read that outlived its deadline on a
	// transport without read deadlines. Guarded by cmdMu.
	inflight chan readResult

	// Communication channels for Loop coordination
	// urcChan receives Unsolicited Result Codes from the modem
	urcChan chan string
	// commands queues AT command requests for the Loop to process
	commands chan *commandRequest

	// Loop control
	// loopCtx controls the lifecycle of the main event loop
	loopCtx context.Context
	// loopCancel cancels the main event loop
	loopCancel context.CancelFunc
}

// commandRequest represents an AT command request to be executed by the Loop.
// It contains the command string, response channel, and execution context.
type commandRequest struct {
	// cmd is the AT command string to send to the modem
	cmd string
	// respChan receives the command response from the Loop
	respChan chan commandResponse
	// ctx provides timeout and cancellation control for the command
	ctx context.Context
}

// commandResponse contains the result of an AT command execution.
type commandResponse struct {
	// raw holds the solicited lines up to and including the terminal line,
	// CRLF separated, ready for at.Frame
	raw []byte
	// err contains any error that occurred during command execution
	err error
}

// New creates a new Modem instance with the given configuration.
// It establishes the transport connection, initializes the modem
// hardware with common actions and prepares the event loop context.
//
// Returns an error if the transport connection or modem initialization
// fails.
func New(ctx context.Context, config Config) (*Modem, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	transport, err := config.dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, fmt.Errorf("initialize modem: %w", ErrNotInitialized)
	}

	m := &Modem{
		transport: transport,
		config:    config,
		logger:    config.logger,
		gate:      NewGate(),
		urcChan:   make(chan string, 100), // Buffered to prevent blocking on URCs
		// No queue for commands
		commands: make(chan *commandRequest),
	}

	// Prepare context for Loop (but don't start it yet)
	m.loopCtx, m.loopCancel = context.WithCancel(ctx)

	// Initialize the modem with proper timeout
	initCtx := ctx
	if config.initTimeout > 0 {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, config.initTimeout)
		defer cancel()
	}

	if err := m.init(initCtx); err != nil {
		m.loopCancel()
		transport.Close()
		return nil, fmt.Errorf("initialize modem: %w", err)
	}

	return m, nil
}

// Loop is the main event loop that handles all transport I/O operations.
// It may be started once after New(); while it runs, Execute routes commands
// through it instead of reading the transport directly.
// The Loop coordinates all communication with the modem hardware:
//
// 1. Processes command requests from Execute() calls
// 2. Writes AT commands to the transport
// 3. Reads and splits responses from the transport
// 4. Hands notifications to the classifier, which feeds the registration gate
// 5. Returns solicited lines to the waiting Execute() call
//
// The Loop runs until the provided context is cancelled or the modem is
// closed. It's the ONLY goroutine that reads from the transport, so
// notifications arriving between commands are never lost. Once Loop has
// returned, the modem should be closed.
//
// Usage:
//
//	m, err := New(ctx, config)
//	if err != nil { return err }
//
//	done, err := m.Start(ctx)
//	if err != nil { return err }
//
//	if err := m.SubscribeRegistration(ctx); err != nil { return err }
//
// Commands issued before Loop has taken over the transport run in direct
// mode; use Start to wait for the handover.
func (m *Modem) Loop(ctx context.Context) error {
	return m.loop(ctx, nil)
}

// Start runs Loop in a new goroutine and returns once the Loop owns the
// transport, so every later command is routed through it. The returned
// channel receives the Loop's result.
func (m *Modem) Start(ctx context.Context) (<-chan error, error) {
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- m.loop(ctx, started)
	}()

	select {
	case <-started:
		return done, nil
	case err := <-done:
		return nil, err
	}
}

func (m *Modem) loop(ctx context.Context, started chan<- struct{}) error {
	// Wait out any direct command still reading the transport.
	m.cmdMu.Lock()
	m.mu.Lock()
	if m.loopRunning {
		m.mu.Unlock()
		m.cmdMu.Unlock()
		return ErrLoopRunning
	}
	m.loopRunning = true
	// abandoned names a command that timed out; its late reply is dropped
	// and no new command is accepted until its final line or drainExpired.
	abandoned := m.stale
	m.stale = ""
	m.mu.Unlock()
	inflight := m.inflight
	m.inflight = nil
	m.cmdMu.Unlock()

	if started != nil {
		close(started)
	}

	defer func() {
		m.mu.Lock()
		m.loopRunning = false
		m.stale = abandoned
		m.mu.Unlock()
	}()

	if m.loopCtx != nil {
		var cancel context.CancelFunc
		ctx, cancel = mergeDone(ctx, m.loopCtx)
		defer cancel()
	}

	// A read timeout left over from direct mode would make the scanner spin.
	switch tr := m.transport.(type) {
	case readTimeouter:
		if err := tr.SetReadTimeout(serial.NoTimeout); err != nil {
			return &TransportError{Op: "read", Err: err}
		}
	case readDeadliner:
		if err := tr.SetReadDeadline(time.Time{}); err != nil {
			return &TransportError{Op: "read", Err: err}
		}
	}

	var src io.Reader = m.transport
	if inflight != nil {
		// Bytes of a Read started in direct mode come first.
		src = io.MultiReader(&pendingRead{ctx: ctx, ch: inflight}, m.transport)
	}

	var drainExpired <-chan time.Time
	if abandoned != "" {
		drainExpired = time.After(staleWindow)
	}

	scanner := bufio.NewScanner(src)
	scanner.Split(at.Splitter)

	// Channels for tokens and errors from the scanner goroutine
	tokens := make(chan string, 10)
	scanErrs := make(chan error, 1)

	// Start goroutine to read tokens from transport
	go func() {
		defer close(tokens)
		for scanner.Scan() {
			token := scanner.Text()
			if token != "" {
				select {
				case tokens <- token:
				case <-ctx.Done():
					return
				}
			}
		}
		// Scanner stopped - check if there was an error
		if err := scanner.Err(); err != nil {
			select {
			case scanErrs <- err:
			case <-ctx.Done():
			}
		}
	}()

	// Current command being processed
	var currentCmd *commandRequest
	var currentLines []string

	finish := func(resp commandResponse) {
		currentCmd.respChan <- resp
		currentCmd = nil
		currentLines = nil
	}

	for {
		// Accept a new command only when none is pending and no late reply
		// is being discarded
		commands := m.commands
		var pendingDone <-chan struct{}
		if currentCmd != nil {
			commands = nil
			pendingDone = currentCmd.ctx.Done()
		} else if abandoned != "" {
			commands = nil
		}

		select {
		case <-ctx.Done():
			// Context cancelled - shut down gracefully
			if currentCmd != nil {
				abandoned = currentCmd.cmd
				finish(commandResponse{err: ctx.Err()})
			}
			return ctx.Err()

		case <-drainExpired:
			m.logger.Debug("late reply did not arrive", "cmd", abandoned)
			abandoned = ""
			drainExpired = nil

		case req := <-commands:
			currentCmd = req
			currentLines = nil

			m.logger.Debug("AT command", "cmd", req.cmd)
			if err := m.write(req.cmd); err != nil {
				finish(commandResponse{err: err})
			}

		case <-pendingDone:
			// Command timed out or was cancelled; its reply may still come
			abandoned = currentCmd.cmd
			drainExpired = time.After(staleWindow)
			finish(commandResponse{err: &TransportError{Op: "read", Err: currentCmd.ctx.Err()}})

		case token, ok := <-tokens:
			if !ok {
				// Token channel closed - scanner stopped. The scanner error,
				// if any, was queued before the close.
				readErr := error(io.EOF)
				select {
				case err := <-scanErrs:
					readErr = err
				default:
				}
				if currentCmd != nil {
					abandoned = currentCmd.cmd
					finish(commandResponse{err: &TransportError{Op: "read", Err: readErr}})
				}
				if readErr != io.EOF {
					return fmt.Errorf("scanner error: %w", readErr)
				}
				return io.EOF
			}

			pending := abandoned
			if currentCmd != nil {
				pending = currentCmd.cmd
			}

			switch at.Classify(token, pending) {
			case at.TypeURC:
				// URCs can arrive at any time, even during command execution
				m.notify(token)

			case at.TypeFinal:
				if currentCmd == nil {
					if abandoned != "" {
						m.logger.Debug("discarded late reply", "cmd", abandoned, "final", token)
						abandoned = ""
						drainExpired = nil
						continue
					}
					m.logger.Debug("orphaned final response", "line", token)
					continue
				}
				currentLines = append(currentLines, token)
				finish(commandResponse{raw: joinLines(currentLines)})

			case at.TypeData:
				if currentCmd == nil {
					m.logger.Debug("orphaned data", "line", token, "abandoned", abandoned)
					continue
				}
				currentLines = append(currentLines, token)
			}

		case err := <-scanErrs:
			// Scanner error - notify current command if any
			if currentCmd != nil {
				abandoned = currentCmd.cmd
				finish(commandResponse{err: &TransportError{Op: "read", Err: err}})
			}
			return fmt.Errorf("scanner error: %w", err)
		}
	}
}

// URC returns a read-only channel that receives Unsolicited Result Codes.
// These are asynchronous notifications from the modem (e.g., registration
// changes, signaling connection status). The channel is buffered, but may
// drop some URC if not consumed fast enough.
func (m *Modem) URC() <-chan string {
	return m.urcChan
}

// Gate returns the registration gate fed by +CEREG notifications.
func (m *Modem) Gate() *Gate {
	return m.gate
}

// Close shuts down the modem and releases all resources.
// It stops the event loop, closes the transport connection, and marks
// the modem as closed. After calling Close(), the modem cannot be reused.
func (m *Modem) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrAlreadyClosed
	}
	m.closed = true
	m.mu.Unlock()

	// Stop the Loop if it's running
	if m.loopCancel != nil {
		m.loopCancel()
	}

	if m.transport != nil {
		return m.transport.Close()
	}

	return nil
}

// LogValue renders the modem in structured logs.
func (m *Modem) LogValue() slog.Value {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slog.GroupValue(
		slog.Bool("loop_running", m.loopRunning),
		slog.Bool("closed", m.closed),
		slog.Bool("registered", m.gate.IsSet()),
	)
}

// init performs the initial setup sequence for the modem hardware.
// This method is called during New() and must complete successfully
// before the modem can be used.
func (m *Modem) init(ctx context.Context) error {
	// 1. Wake-up / sanity check
	if err := m.ExpectOK(ctx, at.CmdAt); err != nil {
		return fmt.Errorf("modem not responding: %w", err)
	}

	if err := m.ExpectOK(ctx, at.CmdEchoOff); err != nil {
		return fmt.Errorf("could not disable echo: %w", err)
	}

	if err := m.ExpectOK(ctx, at.CmdVerboseErrors); err != nil {
		return fmt.Errorf("could not enable extended errors: %w", err)
	}

	return nil
}

// usable reports ErrAlreadyClosed or ErrNotInitialized when the modem cannot
// run commands.
func (m *Modem) usable() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrAlreadyClosed
	}
	if m.transport == nil {
		return ErrNotInitialized
	}
	return nil
}

func (m *Modem) isLoopRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loopRunning
}

// write sends cmd terminated by CR.
func (m *Modem) write(cmd string) error {
	wire := strings.TrimSpace(cmd) + at.CR
	if _, err := m.transport.Write([]byte(wire)); err != nil {
		return &TransportError{Op: "write", Err: fmt.Errorf("write command %q: %w", cmd, err)}
	}
	return nil
}

func joinLines(lines []string) []byte {
	return []byte(strings.Join(lines, at.CRLF) + at.CRLF)
}

// mergeDone returns a context cancelled when either a or b is done.
func mergeDone(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
