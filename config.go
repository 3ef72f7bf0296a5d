package main

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	// SerialPort is the path to the modem's serial port (e.g. "/dev/ttyACM0")
	SerialPort string
	// BaudRate is the baud rate for serial communication with the modem (e.g. 115200)
	BaudRate int
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string
	// APN is the access point name written to PDP context 0
	APN string
	// Strategy selects how registration is awaited ("event" or "poll")
	Strategy string
	// RegistrationTimeout bounds each wait for network registration
	RegistrationTimeout time.Duration
	// TelemetryAddr is the UDP collector address (host:port)
	TelemetryAddr string
	// Message is the payload sent to the collector once the modem is up
	Message string
	// Reassemble keeps reading when a reply arrives without its final OK/ERROR
	Reassemble bool
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.SerialPort = "/dev/ttyACM0"
		c.BaudRate = 115200
		c.LogLevel = "info"
		c.APN = "mda.ee"
		c.Strategy = "event"
		c.RegistrationTimeout = 60 * time.Second
		c.TelemetryAddr = "172.16.15.14:1234"
		c.Message = "Hello, World!"
		c.Reassemble = true
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if serial := os.Getenv("SERIAL_PORT"); serial != "" {
			c.SerialPort = serial
		}

		if baud := os.Getenv("BAUD_RATE"); baud != "" {
			if b, err := strconv.Atoi(baud); err == nil {
				c.BaudRate = b
			}
		}

		if level := os.Getenv("LOG_LEVEL"); level != "" {
			c.LogLevel = level
		}

		if apn := os.Getenv("APN"); apn != "" {
			c.APN = apn
		}

		if strategy := os.Getenv("REGISTRATION_STRATEGY"); strategy != "" {
			c.Strategy = strategy
		}

		if timeout := os.Getenv("REGISTRATION_TIMEOUT"); timeout != "" {
			if d, err := time.ParseDuration(timeout); err == nil {
				c.RegistrationTimeout = d
			}
		}

		if addr := os.Getenv("TELEMETRY_ADDR"); addr != "" {
			c.TelemetryAddr = addr
		}

		if msg := os.Getenv("MESSAGE"); msg != "" {
			c.Message = msg
		}

		if reassemble := os.Getenv("REASSEMBLE"); reassemble != "" {
			if r, err := strconv.ParseBool(reassemble); err == nil {
				c.Reassemble = r
			}
		}

		return nil
	}
}

// WithFlags loads configuration from command-line flags
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		fSet.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "serial-port":
				c.SerialPort = f.Value.String()
			case "baud-rate":
				if b, err := strconv.Atoi(f.Value.String()); err == nil {
					c.BaudRate = b
				}
			case "log-level":
				c.LogLevel = f.Value.String()
			case "apn":
				c.APN = f.Value.String()
			case "registration-strategy":
				c.Strategy = f.Value.String()
			case "registration-timeout":
				if d, err := time.ParseDuration(f.Value.String()); err == nil {
					c.RegistrationTimeout = d
				}
			case "telemetry-addr":
				c.TelemetryAddr = f.Value.String()
			case "message":
				c.Message = f.Value.String()
			case "reassemble":
				if r, err := strconv.ParseBool(f.Value.String()); err == nil {
					c.Reassemble = r
				}
			}
		})
		return nil
	}
}
