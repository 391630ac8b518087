package frame

import (
	"fmt"
)

// ProtocolError is returned whenever bytes read from the peer do not form
// the frame that was expected at that point of the exchange.
type ProtocolError struct {
	// Op is the decoding step that failed, e.g. "decode response".
	Op string
	// Msg describes what was wrong with the frame.
	Msg string
	// Err is the underlying cause, if any (for instance ErrShortFrame).
	Err error
}

func (e *ProtocolError) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("frame: %s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("frame: %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("frame: %s: %s", e.Op, e.Msg)
	}
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func protocolErrorf(op string, err error, format string, args ...any) error {
	return &ProtocolError{
		Op:  op,
		Msg: fmt.Sprintf(format, args...),
		Err: err,
	}
}
