package modem

import (
	"context"
	"errors"
	"fmt"
	"time"

	"i4.energy/across/lteclient/at"
)

// PollConfig defines configuration for polling operations like waiting for
// network registration.
type PollConfig struct {
	// Interval is the time between polling attempts
	Interval time.Duration
	// Timeout is the maximum time to wait for the condition
	Timeout time.Duration
	// MaxRetries is the maximum number of polling attempts
	MaxRetries int
}

// Strategy selects how bring-up waits for network registration.
type Strategy int

const (
	// StrategyEvent subscribes to +CEREG notifications before changing the
	// modem state and blocks on the registration gate.
	StrategyEvent Strategy = iota
	// StrategyPoll repeatedly queries AT+CEREG? until the modem reports
	// home-network registration.
	StrategyPoll
)

func (s Strategy) String() string {
	switch s {
	case StrategyEvent:
		return "event"
	case StrategyPoll:
		return "poll"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy maps "event" or "poll" to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "event", "":
		return StrategyEvent, nil
	case "poll":
		return StrategyPoll, nil
	default:
		return 0, fmt.Errorf("unknown registration strategy %q", s)
	}
}

// SubscribeRegistration arms the registration gate: it clears any stale
// signal and enables +CEREG notifications. Call it before any command that
// can change the registration state, or a notification may race ahead of the
// wait. Notifications are only observed while Loop is running or as part of
// a direct command reply.
func (m *Modem) SubscribeRegistration(ctx context.Context) error {
	m.gate.Reset()
	if err := m.ExpectOK(ctx, at.CmdRegSubscribe); err != nil {
		return fmt.Errorf("subscribe to registration notifications: %w", err)
	}
	return nil
}

// WaitForRegistration blocks until a +CEREG notification reports
// home-network registration or timeout elapses. A gate that is already set
// returns immediately. A non-positive timeout uses the configured
// registration timeout.
func (m *Modem) WaitForRegistration(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = m.config.registrationTimeout
	}
	start := time.Now()
	if err := m.gate.Wait(ctx, timeout); err != nil {
		return fmt.Errorf("wait for registration: %w", err)
	}
	m.logger.Info("registered", "after", time.Since(start))
	return nil
}

// PollRegistration queries AT+CEREG? until the modem reports home-network
// registration. The number of queries is bounded by config.MaxRetries,
// derived from Timeout/Interval when unset. Rejected commands and transport
// failures end polling immediately; malformed replies are retried.
func (m *Modem) PollRegistration(ctx context.Context, config PollConfig) error {
	var (
		pollInterval = config.Interval
		timeout      = config.Timeout
		maxRetries   = config.MaxRetries
	)

	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if timeout <= 0 {
		timeout = m.config.registrationTimeout
	}
	if maxRetries <= 0 {
		maxRetries = int(timeout / pollInterval)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for retries := 1; ; retries++ {
		stat, err := m.queryRegistration(ctx)
		switch {
		case err == nil && stat == at.RegHome:
			return nil
		case err == nil:
			m.logger.Debug("not registered yet", "status", stat, "attempt", retries)
		case errors.Is(err, ErrCommandRejected), errors.Is(err, ErrAlreadyClosed), errors.Is(err, ErrNotInitialized):
			return fmt.Errorf("registration status check failed: %w", err)
		default:
			var te *TransportError
			if errors.As(err, &te) {
				return fmt.Errorf("registration status check failed: %w", err)
			}
			m.logger.Warn("unreadable registration status", "error", err)
		}

		if retries >= maxRetries {
			return fmt.Errorf("not registered after %d polls: %w", maxRetries, ErrRegistrationTimeout)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("not registered: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (m *Modem) queryRegistration(ctx context.Context) (uint64, error) {
	line, err := m.ExecuteLine(ctx, at.CmdRegQuery)
	if err != nil {
		return 0, err
	}
	return at.QueryRegistrationStatus(line)
}

// awaitRegistration waits by the given strategy. For StrategyEvent the gate
// must already be armed.
func (m *Modem) awaitRegistration(ctx context.Context, s Strategy) error {
	if s == StrategyPoll {
		return m.PollRegistration(ctx, m.config.poll)
	}
	if !m.isLoopRunning() && !m.gate.IsSet() {
		m.logger.Warn("waiting for registration without a running loop; only notifications inside command replies are seen")
	}
	return m.WaitForRegistration(ctx, m.config.registrationTimeout)
}
