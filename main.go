package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"i4.energy/across/lteclient/modem"
	"i4.energy/across/lteclient/telemetry"
)

func main() {
	flag.String("serial-port", "/dev/ttyACM0", "Serial port to connect to the modem")
	flag.Int("baud-rate", 115200, "Baud rate for serial communication")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("apn", "mda.ee", "Access point name for PDP context 0")
	flag.String("registration-strategy", "event", "How to wait for registration (event, poll)")
	flag.Duration("registration-timeout", 60*time.Second, "Maximum wait for network registration")
	flag.String("telemetry-addr", "172.16.15.14:1234", "UDP collector address")
	flag.String("message", "Hello, World!", "Payload sent once connected")
	flag.Bool("reassemble", true, "Keep reading replies that arrive without a final OK/ERROR")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})).
		With("attempt", uuid.NewString())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = run(ctx, logger, config)
	logger.Info("Example application complete")
	if err != nil {
		logger.Error("Bring-up failed", "error", err)
		stop()
		os.Exit(1)
	}
}

// run brings the modem onto the network, reports its identity and sends the
// configured message to the telemetry collector.
func run(ctx context.Context, logger *slog.Logger, config *Config) error {
	strategy, err := modem.ParseStrategy(config.Strategy)
	if err != nil {
		return err
	}

	partial := modem.PartialFail
	if config.Reassemble {
		partial = modem.PartialReassemble
	}

	modemConfig, err := modem.NewConfigBuilder().
		WithATTimeout(5 * time.Second).
		WithInitTimeout(30 * time.Second).
		WithRegistrationTimeout(config.RegistrationTimeout).
		WithPartialPolicy(partial).
		WithPollConfig(modem.PollConfig{
			Interval: time.Second,
			Timeout:  config.RegistrationTimeout,
		}).
		WithLogger(logger.With("component", "modem")).
		WithDialer(modem.SerialDialer{
			PortName: config.SerialPort,
			BaudRate: config.BaudRate,
		}).
		Build()
	if err != nil {
		return fmt.Errorf("create modem config: %w", err)
	}

	m, err := modem.New(ctx, modemConfig)
	if err != nil {
		return fmt.Errorf("create modem: %w", err)
	}
	defer func() {
		logger.Info("Closing modem connection")
		if err := m.Close(); err != nil {
			logger.Error("Failed to close modem", "error", err)
		}
	}()

	logger.Info("Starting LTE client", "modem", m, "strategy", strategy.String())

	// Registration notifications only arrive through the loop
	loopDone, err := m.Start(ctx)
	if err != nil {
		return fmt.Errorf("start modem loop: %w", err)
	}
	go func() {
		if err := <-loopDone; err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("Modem loop stopped", "error", err)
		}
	}()

	if err := m.SetSystemModeLTE(ctx, strategy); err != nil {
		return fmt.Errorf("set system mode LTE: %w", err)
	}
	logger.Info("Example application started")

	id, err := m.Identity(ctx)
	if err != nil {
		return fmt.Errorf("read IMEI/IMSI: %w", err)
	}
	logger.Info("Modem identity", "imei", id.IMEI, "imsi", id.IMSI)

	if err := m.SetAPN(ctx, config.APN, strategy); err != nil {
		return fmt.Errorf("set APN: %w", err)
	}
	logger.Info("Connected", "apn", config.APN)

	sender, err := telemetry.Dial(ctx, config.TelemetryAddr)
	if err != nil {
		return err
	}
	defer sender.Close()

	sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sender.Send(sendCtx, []byte(config.Message)); err != nil {
		return err
	}
	logger.Info("Message sent", "addr", sender.Addr(), "bytes", len(config.Message))

	return nil
}
