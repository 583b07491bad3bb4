package frame

import "fmt"

// ErrUnknownOpcode reports an extended opcode byte that matches no known
// operand shape. There is no generic length field to skip an unknown
// instruction, so the rest of the entry is unparseable.
type ErrUnknownOpcode struct {
	Opcode byte
	Offset uint64
}

func (err *ErrUnknownOpcode) Error() string {
	return fmt.Sprintf("unknown CFI opcode %#x at offset %#x", err.Opcode, err.Offset)
}

// ErrFramingMismatch reports an entry whose instruction list did not end
// exactly at the end offset computed from the entry's length field.
type ErrFramingMismatch struct {
	Offset uint64 // where decoding actually stopped
	End    uint64 // where the length field said the entry ends
}

func (err *ErrFramingMismatch) Error() string {
	return fmt.Sprintf("instruction decoding stopped at offset %#x, entry ends at %#x", err.Offset, err.End)
}
