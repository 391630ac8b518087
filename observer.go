package xfer

import (
	"time"

	"github.com/pkg/xfer/encoding/frame"
)

// Observer receives structured progress events from sessions.
// Implementations must be safe for concurrent use when shared between connections.
type Observer interface {
	ChunkSent(ChunkEvent)
	ChunkReceived(ChunkEvent)
	CommandCompleted(CommandEvent)
}

// ChunkEvent describes one chunk moved across the connection.
type ChunkEvent struct {
	Session  string
	Command  frame.Opcode
	Name     string
	Chunk    int   // bytes in this chunk
	Total    int64 // bytes moved so far, this chunk included
	Expected int64 // declared size of the body
}

// CommandEvent describes a command session that reached a terminal state.
type CommandEvent struct {
	Session  string
	Command  frame.Opcode
	Name     string
	Bytes    int64
	Duration time.Duration
	Err      error
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) ChunkSent(ChunkEvent)          {}
func (NopObserver) ChunkReceived(ChunkEvent)      {}
func (NopObserver) CommandCompleted(CommandEvent) {}
