package frame

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestResponseMarshalBinary(t *testing.T) {
	tests := []struct {
		name string
		resp *Response
		want []byte
	}{
		{"status ok", NewStatus(true), []byte{0x05, 0x20, 0x80}},
		{"status notok", NewStatus(false), []byte{0x05, 0x20, 0x00}},
		{"error not found", NewError(ReasonFileNotFound), []byte{0x05, 0x80, 0x01}},
		{"error checksum", NewError(ReasonChecksumError), []byte{0x05, 0x80, 0x03}},
		{"size", NewSize(5), []byte{0x05, 0x40, 0x00, 0x00, 0x00, 0x05}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.resp.MarshalBinary()
			if err != nil {
				t.Fatal("unexpected error:", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("MarshalBinary() = %X, but wanted %X", got, tt.want)
			}
		})
	}
}

func TestResponseMarshalBinaryInvalid(t *testing.T) {
	tests := []*Response{
		{Flag: FlagStatus, Status: 0x01},
		{Flag: FlagError, Reason: 0x09},
		{Flag: FlagSize, Size: MaxSize + 1},
		{Flag: 0x10},
	}

	for _, resp := range tests {
		if _, err := resp.MarshalBinary(); err == nil {
			t.Errorf("MarshalBinary(%v) succeeded, want error", resp)
		}
	}
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Response
	}{
		{"status ok", []byte{0x05, 0x20, 0x80}, Response{Flag: FlagStatus, Status: StatusOK}},
		{"error", []byte{0x05, 0x80, 0x02}, Response{Flag: FlagError, Reason: ReasonConnectionBreak}},
		{"size 4 bytes", []byte{0x05, 0x40, 0x00, 0x01, 0x00, 0x00}, Response{Flag: FlagSize, Size: 65536}},
		{"size 2 bytes", []byte{0x05, 0x40, 0x01, 0x00}, Response{Flag: FlagSize, Size: 256}},
		{"size 8 bytes", []byte{0x05, 0x40, 0, 0, 0, 1, 0, 0, 0, 0}, Response{Flag: FlagSize, Size: 1 << 32}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeResponse(tt.data)
			if err != nil {
				t.Fatal("unexpected error:", err)
			}
			if *got != tt.want {
				t.Errorf("DecodeResponse(%X) = %+v, want %+v", tt.data, *got, tt.want)
			}
		})
	}
}

func TestDecodeResponseMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"wrong tag", []byte{0x01, 0x20, 0x80}},
		{"missing flag", []byte{0x05}},
		{"unknown flag", []byte{0x05, 0x10, 0x80}},
		{"missing status", []byte{0x05, 0x20}},
		{"bad status", []byte{0x05, 0x20, 0x01}},
		{"status trailing", []byte{0x05, 0x20, 0x80, 0x00}},
		{"missing reason", []byte{0x05, 0x80}},
		{"unknown reason", []byte{0x05, 0x80, 0x07}},
		{"empty size", []byte{0x05, 0x40}},
		{"oversized size", []byte{0x05, 0x40, 1, 2, 3, 4, 5, 6, 7, 8, 9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeResponse(tt.data)

			var perr *ProtocolError
			if !errors.As(err, &perr) {
				t.Errorf("DecodeResponse(%X) = %v, want *ProtocolError", tt.data, err)
			}
		})
	}
}

func TestReadResponse(t *testing.T) {
	data := []byte{
		0x05, 0x40, 0x00, 0x00, 0x00, 0x05,
		'h', 'e', 'l', 'l', 'o',
	}
	r := bytes.NewReader(data)

	resp, err := ReadResponse(r)
	if err != nil {
		t.Fatal("unexpected error:", err)
	}
	if resp.Flag != FlagSize || resp.Size != 5 {
		t.Errorf("ReadResponse() = %v, want RESPONSE|SIZE|5", resp)
	}

	// the body must be left untouched for the streamer.
	if r.Len() != 5 {
		t.Errorf("ReadResponse() consumed body bytes: %d left, want 5", r.Len())
	}
}

func TestReadResponseTruncated(t *testing.T) {
	_, err := ReadResponse(bytes.NewReader([]byte{0x05, 0x40, 0x00}))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("ReadResponse(truncated) = %v, want %v", err, io.ErrUnexpectedEOF)
	}

	_, err = ReadResponse(bytes.NewReader(nil))
	if err != io.EOF {
		t.Errorf("ReadResponse(empty) = %v, want %v", err, io.EOF)
	}
}
