package main

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		config, err := LoadConfig(WithDefaults())
		require.NoError(t, err)

		assert.Equal(t, &Config{
			SerialPort:          "/dev/ttyACM0",
			BaudRate:            115200,
			LogLevel:            "info",
			APN:                 "mda.ee",
			Strategy:            "event",
			RegistrationTimeout: 60 * time.Second,
			TelemetryAddr:       "172.16.15.14:1234",
			Message:             "Hello, World!",
			Reassemble:          true,
		}, config)
	})

	t.Run("Environment overrides defaults", func(t *testing.T) {
		t.Setenv("SERIAL_PORT", "/dev/ttyUSB1")
		t.Setenv("BAUD_RATE", "9600")
		t.Setenv("APN", "internet")
		t.Setenv("REGISTRATION_STRATEGY", "poll")
		t.Setenv("REGISTRATION_TIMEOUT", "90s")
		t.Setenv("REASSEMBLE", "false")

		config, err := LoadConfig(WithDefaults(), WithEnv())
		require.NoError(t, err)

		assert.Equal(t, "/dev/ttyUSB1", config.SerialPort)
		assert.Equal(t, 9600, config.BaudRate)
		assert.Equal(t, "internet", config.APN)
		assert.Equal(t, "poll", config.Strategy)
		assert.Equal(t, 90*time.Second, config.RegistrationTimeout)
		assert.False(t, config.Reassemble)
		assert.Equal(t, "Hello, World!", config.Message)
	})

	t.Run("Malformed numbers keep the previous value", func(t *testing.T) {
		t.Setenv("BAUD_RATE", "fast")
		t.Setenv("REGISTRATION_TIMEOUT", "soon")

		config, err := LoadConfig(WithDefaults(), WithEnv())
		require.NoError(t, err)

		assert.Equal(t, 115200, config.BaudRate)
		assert.Equal(t, 60*time.Second, config.RegistrationTimeout)
	})

	t.Run("Flags override environment", func(t *testing.T) {
		t.Setenv("APN", "internet")
		t.Setenv("MESSAGE", "from env")

		fs := flag.NewFlagSet("test", flag.ContinueOnError)
		fs.String("apn", "mda.ee", "")
		fs.String("message", "", "")
		fs.String("telemetry-addr", "", "")
		fs.Bool("reassemble", true, "")
		require.NoError(t, fs.Parse([]string{"-apn", "iot.apn", "-telemetry-addr", "127.0.0.1:9000", "-reassemble=false"}))

		config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(fs))
		require.NoError(t, err)

		assert.Equal(t, "iot.apn", config.APN)
		assert.Equal(t, "127.0.0.1:9000", config.TelemetryAddr)
		assert.False(t, config.Reassemble)
		// Unset flags leave earlier layers alone
		assert.Equal(t, "from env", config.Message)
	})
}
