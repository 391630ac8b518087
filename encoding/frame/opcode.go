package frame

import (
	"fmt"
)

// Opcode is the 1-byte tag that starts every frame.
type Opcode uint8

// Frame tags.
const (
	OpGet = Opcode(iota + 1)
	OpPut
	OpDelete
	OpList
	OpResponse
)

// HasName reports whether command frames with this opcode carry a filename.
func (op Opcode) HasName() bool {
	switch op {
	case OpGet, OpPut, OpDelete:
		return true
	}
	return false
}

// IsCommand reports whether op is one of the four command opcodes.
func (op Opcode) IsCommand() bool {
	return op.HasName() || op == OpList
}

func (op Opcode) String() string {
	switch op {
	case OpGet:
		return "GET"
	case OpPut:
		return "PUT"
	case OpDelete:
		return "DELETE"
	case OpList:
		return "LIST"
	case OpResponse:
		return "RESPONSE"
	default:
		return fmt.Sprintf("OPCODE_UNKNOWN(%d)", uint8(op))
	}
}
