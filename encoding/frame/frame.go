// Package frame implements the binary framing of the xfer file-transfer protocol.
//
// Every frame starts with a 1-byte opcode.
// Command frames (GET, PUT, DELETE) follow it with a uint16 length-prefixed filename;
// LIST is the opcode alone.
// RESPONSE frames follow it with a 1-byte flag and a payload whose width the flag determines.
//
// The package performs no I/O beyond reading single frames from an io.Reader.
package frame
