package at

const (
	// Terminal Control
	CR   = "\r"
	CRLF = "\r\n"

	// Response Codes
	OK       = "OK"
	ERROR    = "ERROR"
	CmeError = "+CME ERROR:"
	CmsError = "+CMS ERROR:"

	// URCs (Unsolicited Result Codes)
	UrcRegistration = "+CEREG"
	UrcSignaling    = "+CSCON"
	UrcNewMsg       = "+CMTI"
	UrcCall         = "RING"
)

// Commands used during bring-up.
const (
	CmdAt            = "AT"
	CmdEchoOff       = "ATE0"
	CmdVerboseErrors = "AT+CMEE=1"

	CmdFunOffline    = "AT+CFUN=4"
	CmdFunOn         = "AT+CFUN=1"
	CmdSystemModeLTE = "AT%XSYSTEMMODE=1,0,0,0"

	CmdRegSubscribe = "AT+CEREG=1"
	CmdRegQuery     = "AT+CEREG?"

	CmdDetach      = "AT+CGATT=0"
	CmdAttach      = "AT+CGATT=1"
	CmdContextRead = "AT+CGDCONT?"

	CmdIMEI = "AT+CGSN"
	CmdIMSI = "AT+CIMI"
)

// Registration status values reported in +CEREG.
const (
	RegNotRegistered uint64 = 0
	RegHome          uint64 = 1
	RegSearching     uint64 = 2
	RegDenied        uint64 = 3
	RegUnknown       uint64 = 4
	RegRoaming       uint64 = 5
)

type ResponseType int

const (
	TypeFinal ResponseType = iota // OK, ERROR
	TypeURC                       // Asynchronous notifications
	TypeData                      // Intermediate command output (+CGSN, +CEREG: 0,1 ...)
)

func (t ResponseType) String() string {
	switch t {
	case TypeFinal:
		return "final"
	case TypeURC:
		return "urc"
	case TypeData:
		return "data"
	default:
		return "unknown"
	}
}
