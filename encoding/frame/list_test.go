package frame

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func TestListEntriesRoundTrip(t *testing.T) {
	entries := []Entry{
		{Name: "a.txt", Size: 5},
		{Name: "longer-name.bin", Size: 70000},
		{Name: "", Size: 0},
	}

	data, err := MarshalEntries(entries)
	if err != nil {
		t.Fatal("unexpected error:", err)
	}

	got, err := UnmarshalEntries(data)
	if err != nil {
		t.Fatal("unexpected error:", err)
	}

	if !reflect.DeepEqual(got, entries) {
		t.Errorf("UnmarshalEntries(MarshalEntries(x)) = %+v, want %+v", got, entries)
	}
}

func TestUnmarshalEntriesAdvance(t *testing.T) {
	// two entries, so a cursor that drifts past the first record is caught.
	data := []byte{
		0x00, 0x01, 'a', 0x00, 0x00, 0x00, 0x07,
		0x00, 0x02, 'b', 'c', 0x00, 0x00, 0x01, 0x00,
	}

	got, err := UnmarshalEntries(data)
	if err != nil {
		t.Fatal("unexpected error:", err)
	}

	want := []Entry{
		{Name: "a", Size: 7},
		{Name: "bc", Size: 256},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("UnmarshalEntries() = %+v, want %+v", got, want)
	}

	marshaled, err := MarshalEntries(want)
	if err != nil {
		t.Fatal("unexpected error:", err)
	}
	if !bytes.Equal(marshaled, data) {
		t.Errorf("MarshalEntries() = %X, want %X", marshaled, data)
	}
}

func TestUnmarshalEntriesEmpty(t *testing.T) {
	got, err := UnmarshalEntries(nil)
	if err != nil {
		t.Fatal("unexpected error:", err)
	}
	if len(got) != 0 {
		t.Errorf("UnmarshalEntries(nil) = %+v, want none", got)
	}
}

func TestUnmarshalEntriesTruncated(t *testing.T) {
	tests := [][]byte{
		{0x00},
		{0x00, 0x03, 'a'},
		{0x00, 0x01, 'a', 0x00, 0x00},
		{0x00, 0x01, 'a', 0x00, 0x00, 0x00, 0x01, 0x00},
	}

	for _, data := range tests {
		_, err := UnmarshalEntries(data)

		var perr *ProtocolError
		if !errors.As(err, &perr) {
			t.Errorf("UnmarshalEntries(%X) = %v, want *ProtocolError", data, err)
		}
		if !errors.Is(err, ErrShortFrame) {
			t.Errorf("UnmarshalEntries(%X) = %v, want %v", data, err, ErrShortFrame)
		}
	}
}
