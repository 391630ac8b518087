// Package xfer implements a small binary file-transfer protocol over a single
// stream connection: GET, PUT, LIST and DELETE of flat file names.
//
// A server greets every connection with a STATUS frame; the client proceeds only on OK.
// Each command is then a short exchange of frames in lockstep, and file bodies
// are streamed in chunks whose total is declared up front in a SIZE frame.
//
// Client dials servers and runs commands on a Conn. Server serves a store.Store.
// Frames are encoded by package encoding/frame.
package xfer
