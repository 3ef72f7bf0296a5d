package modem

import (
	"context"
	"fmt"

	"i4.energy/across/lteclient/at"
)

// Identity holds the modem and subscriber identifiers.
type Identity struct {
	IMEI string
	IMSI string
}

// SetSystemModeLTE switches the modem to LTE-M, powers the radio on and waits
// for home-network registration using s. With StrategyEvent the registration
// gate is armed before the radio is touched.
func (m *Modem) SetSystemModeLTE(ctx context.Context, s Strategy) error {
	if s == StrategyEvent {
		if err := m.SubscribeRegistration(ctx); err != nil {
			return err
		}
	}

	for _, cmd := range []string{
		at.CmdFunOffline,    // radio off while the mode changes
		at.CmdSystemModeLTE, // LTE-M only, no NB-IoT, no GNSS
		at.CmdFunOn,
	} {
		if err := m.ExpectOK(ctx, cmd); err != nil {
			return fmt.Errorf("enable system mode LTE: %w", err)
		}
	}

	return m.awaitRegistration(ctx, s)
}

// SetAPN defines PDP context 0 with apn, re-attaches and waits for
// registration using s.
func (m *Modem) SetAPN(ctx context.Context, apn string, s Strategy) error {
	if apn == "" {
		return fmt.Errorf("set APN: empty APN")
	}
	if s == StrategyEvent {
		if err := m.SubscribeRegistration(ctx); err != nil {
			return err
		}
	}

	for _, cmd := range []string{
		at.CmdFunOn,
		at.CmdDetach,
		fmt.Sprintf(`AT+CGDCONT=0,"IP","%s"`, apn),
		at.CmdContextRead,
		at.CmdAttach,
	} {
		if err := m.ExpectOK(ctx, cmd); err != nil {
			return fmt.Errorf("set APN %q: %w", apn, err)
		}
	}

	return m.awaitRegistration(ctx, s)
}

// Identity reads the IMEI and IMSI.
func (m *Modem) Identity(ctx context.Context) (Identity, error) {
	imei, err := m.ExecuteLine(ctx, at.CmdIMEI)
	if err != nil {
		return Identity{}, fmt.Errorf("get IMEI: %w", err)
	}
	imsi, err := m.ExecuteLine(ctx, at.CmdIMSI)
	if err != nil {
		return Identity{}, fmt.Errorf("get IMSI: %w", err)
	}
	return Identity{IMEI: imei, IMSI: imsi}, nil
}
