package modem

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"i4.energy/across/lteclient/at"
)

const (
	// recvSize is the size of a single receive, matching the modem's AT
	// socket buffer.
	recvSize = 1024

	// readSlice bounds a single Read on transports that support read
	// timeouts, so the command deadline is rechecked while the modem is
	// silent.
	readSlice = 100 * time.Millisecond

	// staleWindow bounds how long the late reply of a timed-out command is
	// waited for before the next command is written.
	staleWindow = time.Second
)

// Execute sends cmd to the modem and waits for its reply.
//
// On OK, the first payload line that is not an echo of cmd is copied into
// out, truncated to len(out), and the number of bytes copied is returned.
// Bytes of out beyond that count are left untouched. A nil out is allowed
// when the reply carries nothing of interest.
//
// Failures are typed: *TransportError when the transport write or read
// fails or the deadline expires, *CommandError (matching ErrCommandRejected)
// when the modem replies ERROR, and *ParseError when the reply cannot be
// framed.
func (m *Modem) Execute(ctx context.Context, cmd string, out []byte) (int, error) {
	if err := m.usable(); err != nil {
		return 0, err
	}
	cmd = strings.TrimSpace(cmd)

	// Apply per-command timeout if context has none
	if _, ok := ctx.Deadline(); !ok && m.config.atTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.atTimeout)
		defer cancel()
	}

	m.cmdMu.Lock()
	defer m.cmdMu.Unlock()

	var (
		raw []byte
		err error
	)
	if m.isLoopRunning() {
		raw, err = m.exec(ctx, cmd)
	} else {
		raw, err = m.execDirect(ctx, cmd)
	}
	if err != nil {
		m.logger.Debug("AT command failed", "cmd", cmd, "error", err)
		return 0, err
	}

	return m.complete(cmd, raw, out)
}

// ExecuteLine runs cmd and returns its first payload line as a string.
func (m *Modem) ExecuteLine(ctx context.Context, cmd string) (string, error) {
	buf := make([]byte, 256)
	n, err := m.Execute(ctx, cmd, buf)
	if err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}

// ExpectOK runs cmd and discards any payload.
func (m *Modem) ExpectOK(ctx context.Context, cmd string) error {
	_, err := m.Execute(ctx, cmd, nil)
	return err
}

// complete frames raw and copies the first payload line into out.
func (m *Modem) complete(cmd string, raw, out []byte) (int, error) {
	resp := at.Frame(raw)
	m.logger.Debug("AT reply", "cmd", cmd, "status", resp.Status.String(), "lines", len(resp.Lines))

	switch resp.Status {
	case at.StatusError:
		return 0, &CommandError{Cmd: cmd, Final: string(resp.Final)}
	case at.StatusIncomplete:
		return 0, &ParseError{Stage: "frame", Line: string(raw), Index: -1, Err: ErrIncompleteResponse}
	}

	line := resp.First(cmd)
	if len(out) == 0 || line == nil {
		return 0, nil
	}
	return copy(out, line), nil
}

// exec sends an AT command through the running Loop() and waits for the
// solicited lines.
func (m *Modem) exec(ctx context.Context, cmd string) ([]byte, error) {
	req := &commandRequest{
		cmd:      cmd,
		respChan: make(chan commandResponse, 1), // Buffered to prevent blocking
		ctx:      ctx,
	}

	// Send request to Loop
	select {
	case m.commands <- req:
		// Request queued successfully
	case <-ctx.Done():
		return nil, &TransportError{Op: "write", Err: fmt.Errorf("command cancelled before sending: %w", ctx.Err())}
	}

	// Wait for response from Loop
	select {
	case resp := <-req.respChan:
		return resp.raw, resp.err
	case <-ctx.Done():
		return nil, &TransportError{Op: "read", Err: fmt.Errorf("command timeout: %w", ctx.Err())}
	}
}

// execDirect executes an AT command directly on the transport without
// using the Loop. It writes cmd once and frames what a single receive
// returns. Lines classified as notifications are diverted to the
// notification handler before framing, including any that trail the
// terminal token.
//
// A receive without a terminal token fails the command under PartialFail;
// under PartialReassemble further receives are appended until the reply is
// complete or ctx expires. Either way the rest of an unfinished reply is
// dropped before the next command is written.
func (m *Modem) execDirect(ctx context.Context, cmd string) ([]byte, error) {
	m.drainStale(ctx)

	m.logger.Debug("AT command", "cmd", cmd)
	if err := m.write(cmd); err != nil {
		return nil, err
	}

	var buf []byte
	chunk := make([]byte, recvSize)
	for {
		n, err := m.receive(ctx, chunk)
		if err != nil {
			if ctx.Err() != nil {
				m.markStale(cmd)
			}
			return nil, &TransportError{Op: "read", Err: err}
		}
		buf = append(buf, chunk[:n]...)

		solicited, urcs := split(cmd, buf)
		status := at.Frame(solicited).Status
		if status != at.StatusIncomplete || m.config.partial == PartialFail {
			for _, urc := range urcs {
				m.notify(urc)
			}
			if status == at.StatusIncomplete {
				m.markStale(cmd)
			}
			return solicited, nil
		}
	}
}

func (m *Modem) markStale(cmd string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stale = cmd
}

// drainStale reads and drops the rest of an abandoned reply, up to its final
// line or staleWindow, whichever comes first. Notifications in it are still
// handled.
func (m *Modem) drainStale(ctx context.Context) {
	m.mu.Lock()
	abandoned := m.stale
	m.stale = ""
	m.mu.Unlock()
	if abandoned == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, staleWindow)
	defer cancel()

	var buf []byte
	chunk := make([]byte, recvSize)
	for {
		n, err := m.receive(ctx, chunk)
		if err != nil {
			m.logger.Debug("late reply did not arrive", "cmd", abandoned, "error", err)
			return
		}
		buf = append(buf, chunk[:n]...)

		solicited, urcs := split(abandoned, buf)
		resp := at.Frame(solicited)
		if resp.Status != at.StatusIncomplete {
			for _, urc := range urcs {
				m.notify(urc)
			}
			m.logger.Debug("discarded late reply", "cmd", abandoned, "final", string(resp.Final))
			return
		}
	}
}

// receive performs one Read bounded by ctx. Transports that support read
// timeouts are read in slices so a silent modem cannot outlive the deadline;
// transports with read deadlines get the ctx deadline. Any other transport is
// read from a goroutine, and a Read that outlives ctx is picked up by the
// next receive or by Loop.
func (m *Modem) receive(ctx context.Context, p []byte) (int, error) {
	switch tr := m.transport.(type) {
	case readTimeouter:
		return m.receiveSliced(ctx, tr, p)
	case readDeadliner:
		return m.receiveDeadline(ctx, tr, p)
	default:
		return m.receiveAsync(ctx, p)
	}
}

func (m *Modem) receiveSliced(ctx context.Context, rt readTimeouter, p []byte) (int, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		slice := readSlice
		if deadline, ok := ctx.Deadline(); ok {
			if left := time.Until(deadline); left < slice {
				slice = max(left, time.Millisecond)
			}
		}
		if err := rt.SetReadTimeout(slice); err != nil {
			return 0, err
		}
		n, err := m.transport.Read(p)
		if err != nil || n > 0 {
			return n, err
		}
	}
}

func (m *Modem) receiveDeadline(ctx context.Context, rd readDeadliner, p []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	// A zero deadline means none.
	deadline, _ := ctx.Deadline()
	if err := rd.SetReadDeadline(deadline); err != nil {
		return 0, err
	}
	// Cancellation without a deadline must interrupt the Read too.
	stop := context.AfterFunc(ctx, func() {
		rd.SetReadDeadline(time.Now())
	})
	defer stop()

	n, err := m.transport.Read(p)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return n, ctxErr
		}
		return n, context.DeadlineExceeded
	}
	return n, err
}

func (m *Modem) receiveAsync(ctx context.Context, p []byte) (int, error) {
	if m.inflight == nil {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		ch := make(chan readResult, 1)
		buf := make([]byte, len(p))
		go func() {
			n, err := m.transport.Read(buf)
			ch <- readResult{data: buf[:n], err: err}
		}()
		m.inflight = ch
	}

	select {
	case r := <-m.inflight:
		m.inflight = nil
		return copy(p, r.data), r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// split separates unsolicited notification lines from the reply to cmd.
// Lines are rejoined with CRLF; a trailing fragment without CRLF is kept as
// is so the framer can still see it.
func split(cmd string, buf []byte) (solicited []byte, urcs []string) {
	rest := buf
	for len(rest) > 0 {
		line := rest
		var term []byte
		if i := bytes.Index(rest, []byte(at.CRLF)); i >= 0 {
			line, term = rest[:i], rest[i:i+len(at.CRLF)]
			rest = rest[i+len(at.CRLF):]
		} else {
			rest = nil
		}

		if len(line) > 0 && at.IsNotification(string(line), cmd) {
			urcs = append(urcs, string(line))
			continue
		}
		solicited = append(solicited, line...)
		solicited = append(solicited, term...)
	}
	return solicited, urcs
}
