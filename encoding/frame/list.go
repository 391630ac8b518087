package frame

// Entry is one record of a LIST reply: a flat filename and its size in bytes.
type Entry struct {
	Name string
	Size uint32
}

// entryOverhead is uint16(name length) + uint32(size).
const entryOverhead = 2 + 4

// MarshalEntries encodes entries back-to-back, each as uint16(len) ‖ name ‖ uint32(size).
func MarshalEntries(entries []Entry) ([]byte, error) {
	size := 0
	for _, e := range entries {
		size += entryOverhead + len(e.Name)
	}

	b := NewMarshalBuffer(size)
	for _, e := range entries {
		if err := b.AppendString(e.Name); err != nil {
			return nil, err
		}
		b.AppendUint32(e.Size)
	}

	return b.Bytes(), nil
}

// UnmarshalEntries decodes a LIST payload.
//
// The cursor advances by exactly 2 + len(name) + 4 bytes per entry.
// An empty remainder ends the sequence; any other truncation is a ProtocolError.
func UnmarshalEntries(data []byte) ([]Entry, error) {
	const op = "decode list"

	var entries []Entry

	buf := NewBuffer(data)
	for buf.Len() > 0 {
		name, err := buf.ConsumeString()
		if err != nil {
			return nil, protocolErrorf(op, err, "entry %d: name", len(entries))
		}

		size, err := buf.ConsumeUint32()
		if err != nil {
			return nil, protocolErrorf(op, err, "entry %d: size", len(entries))
		}

		entries = append(entries, Entry{
			Name: name,
			Size: size,
		})
	}

	return entries, nil
}
