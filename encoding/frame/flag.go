package frame

import (
	"fmt"
)

// Flag selects the payload shape of a RESPONSE frame.
type Flag uint8

// Defines the RESPONSE flags.
const (
	FlagStatus = Flag(0x20)
	FlagSize   = Flag(0x40)
	FlagError  = Flag(0x80)
)

func (f Flag) String() string {
	switch f {
	case FlagStatus:
		return "STATUS"
	case FlagSize:
		return "SIZE"
	case FlagError:
		return "ERROR"
	default:
		return fmt.Sprintf("FLAG_UNKNOWN(%#02x)", uint8(f))
	}
}

// Status is the payload byte of a STATUS response.
type Status uint8

// Defines the STATUS payload values.
const (
	StatusNotOK = Status(0x00)
	StatusOK    = Status(0x80)
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNotOK:
		return "NOTOK"
	default:
		return fmt.Sprintf("STATUS_UNKNOWN(%#02x)", uint8(s))
	}
}

// Reason is the payload byte of an ERROR response.
type Reason uint8

// Defines the ERROR payload values.
const (
	ReasonFileNotFound = Reason(iota + 1)
	ReasonConnectionBreak
	ReasonChecksumError
)

// Valid reports whether r is one of the defined reasons.
func (r Reason) Valid() bool {
	return r >= ReasonFileNotFound && r <= ReasonChecksumError
}

func (r Reason) String() string {
	switch r {
	case ReasonFileNotFound:
		return "FileNotFound"
	case ReasonConnectionBreak:
		return "ConnectionBreak"
	case ReasonChecksumError:
		return "ChecksumError"
	default:
		return fmt.Sprintf("REASON_UNKNOWN(%d)", uint8(r))
	}
}
