package modem

import (
	"i4.energy/across/lteclient/at"
)

// notify classifies an unsolicited line. Malformed notifications are logged
// and dropped; they must never fail a command in flight.
func (m *Modem) notify(line string) {
	select {
	case m.urcChan <- line:
	default:
		// URC channel is full - drop the URC
		m.logger.Warn("URC channel full, dropping notification", "line", line)
	}

	n, err := at.ParseNotification(line)
	if err != nil {
		m.logger.Warn("dropping malformed notification", "line", line, "error", err)
		return
	}

	stat, ok := n.RegistrationStatus()
	if !ok {
		m.logger.Debug("notification", "tag", n.Tag, "params", n.Params)
		return
	}

	m.logger.Info("registration status", "status", stat)
	if stat == at.RegHome {
		m.gate.Set()
	}
}
