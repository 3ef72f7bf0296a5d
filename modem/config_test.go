package modem_test

import (
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"i4.energy/across/lteclient/modem"
)

func TestConfig(t *testing.T) {
	t.Run("ErrNoDialer when no dialer provided", func(t *testing.T) {
		_, err := modem.NewConfigBuilder().Build()

		if err != modem.ErrNoDialer {
			t.Errorf("expected ErrNoDialer, got: %v", err)
		}
	})

	t.Run("Builds with all options", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		_, err := modem.NewConfigBuilder().
			WithDialer(modem.NewMockDialer(ctrl)).
			WithATTimeout(time.Second).
			WithInitTimeout(10 * time.Second).
			WithRegistrationTimeout(time.Minute).
			WithPartialPolicy(modem.PartialReassemble).
			WithPollConfig(modem.PollConfig{Interval: time.Second, MaxRetries: 3}).
			Build()
		if err != nil {
			t.Errorf("unexpected error from Build(): %v", err)
		}
	})
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		input    string
		expected modem.Strategy
		wantErr  bool
	}{
		{input: "event", expected: modem.StrategyEvent},
		{input: "", expected: modem.StrategyEvent},
		{input: "poll", expected: modem.StrategyPoll},
		{input: "busy", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			s, err := modem.ParseStrategy(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if !tt.wantErr && s != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, s)
			}
		})
	}
}
