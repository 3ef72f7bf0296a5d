package modem

import (
	"log/slog"
	"time"
)

// PartialPolicy selects how a receive without a terminal OK/ERROR is handled.
type PartialPolicy int

const (
	// PartialFail fails the command with ErrIncompleteResponse.
	PartialFail PartialPolicy = iota
	// PartialReassemble keeps receiving until a terminal token arrives or the
	// command deadline expires.
	PartialReassemble
)

// DefaultRegistrationTimeout bounds WaitForRegistration when no timeout is given.
const DefaultRegistrationTimeout = 60 * time.Second

func (c *Config) validate() error {
	if c.dialer == nil {
		return ErrNoDialer
	}
	return nil
}

// Config holds the modem settings. Build one with NewConfigBuilder.
type Config struct {
	dialer              Dialer
	logger              *slog.Logger
	atTimeout           time.Duration
	initTimeout         time.Duration
	registrationTimeout time.Duration
	partial             PartialPolicy
	poll                PollConfig
}

func (c *Config) setDefaults() {
	if c.atTimeout == 0 {
		c.atTimeout = 5 * time.Second
	}
	if c.initTimeout == 0 {
		c.initTimeout = 30 * time.Second
	}
	if c.registrationTimeout == 0 {
		c.registrationTimeout = DefaultRegistrationTimeout
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
}

// ConfigBuilder assembles a Config.
type ConfigBuilder struct {
	config Config
}

// NewConfigBuilder returns a builder with no options set.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

// WithDialer sets the Dialer used to open the transport. Required.
func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.dialer = d
	return b
}

// WithLogger sets the logger. Logs are discarded when unset.
func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.logger = l
	return b
}

// WithATTimeout sets the per-command timeout applied when the caller's
// context has no deadline.
func (b *ConfigBuilder) WithATTimeout(d time.Duration) *ConfigBuilder {
	b.config.atTimeout = d
	return b
}

// WithInitTimeout bounds the initialization sequence run by New.
func (b *ConfigBuilder) WithInitTimeout(d time.Duration) *ConfigBuilder {
	b.config.initTimeout = d
	return b
}

// WithRegistrationTimeout sets the event-wait timeout used by the bring-up
// sequence.
func (b *ConfigBuilder) WithRegistrationTimeout(d time.Duration) *ConfigBuilder {
	b.config.registrationTimeout = d
	return b
}

// WithPartialPolicy selects how partial frames are handled.
func (b *ConfigBuilder) WithPartialPolicy(p PartialPolicy) *ConfigBuilder {
	b.config.partial = p
	return b
}

// WithPollConfig sets the polling bounds used by the poll strategy.
func (b *ConfigBuilder) WithPollConfig(p PollConfig) *ConfigBuilder {
	b.config.poll = p
	return b
}

// Build validates the options and applies defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	c.setDefaults()
	return c, nil
}
