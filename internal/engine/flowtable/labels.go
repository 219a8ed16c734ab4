package flowtable

import "Go2NetShield/internal/model"

// Flag labels follow the connection-state vocabulary of the training data.
const (
	FlagSF   = "SF"
	FlagS0   = "S0"
	FlagREJ  = "REJ"
	FlagRSTO = "RSTO"
	FlagOTH  = "OTH"
)

var services = map[uint16]string{
	20:  "ftp_data",
	21:  "ftp",
	22:  "ssh",
	23:  "telnet",
	25:  "smtp",
	53:  "domain",
	80:  "http",
	110: "pop_3",
	143: "imap4",
	443: "https",
}

// ServiceLabel maps a responder port to its service name.
func ServiceLabel(port uint16) string {
	if s, ok := services[port]; ok {
		return s
	}
	return "other"
}

// FlagLabel summarizes how a connection ended.
func FlagLabel(proto uint8, flags model.TCPFlags, reason Reason) string {
	if proto == model.ProtoUDP {
		return FlagSF
	}
	if reason == ReasonTimeout {
		return FlagRSTO
	}
	switch {
	case flags.Has(model.FlagRST):
		return FlagREJ
	case flags.Has(model.FlagSYN | model.FlagFIN):
		return FlagSF
	case flags.Has(model.FlagSYN):
		return FlagS0
	default:
		return FlagOTH
	}
}

// IsSError reports a SYN-level error: no proper close.
func IsSError(flag string) bool {
	return flag == FlagS0 || flag == FlagRSTO
}

// IsRError reports a rejected connection.
func IsRError(flag string) bool {
	return flag == FlagREJ
}
