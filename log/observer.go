package log

import (
	"go.uber.org/zap"

	"github.com/pkg/xfer"
)

// Observer logs session events. Chunk events are logged at debug level,
// completed commands at info, or warn when they failed.
type Observer struct {
	zap *zap.Logger
}

var _ xfer.Observer = (*Observer)(nil)

// NewObserver returns an Observer writing to l.
func NewObserver(l *zap.Logger) *Observer {
	return &Observer{zap: l}
}

func (o *Observer) ChunkSent(ev xfer.ChunkEvent) {
	o.chunk("chunk sent", ev)
}

func (o *Observer) ChunkReceived(ev xfer.ChunkEvent) {
	o.chunk("chunk received", ev)
}

func (o *Observer) chunk(msg string, ev xfer.ChunkEvent) {
	if ce := o.zap.Check(zap.DebugLevel, msg); ce != nil {
		ce.Write(
			zap.String("session", ev.Session),
			zap.Stringer("command", ev.Command),
			zap.String("name", ev.Name),
			zap.Int("chunk", ev.Chunk),
			zap.Int64("total", ev.Total),
			zap.Int64("expected", ev.Expected),
		)
	}
}

func (o *Observer) CommandCompleted(ev xfer.CommandEvent) {
	fields := []zap.Field{
		zap.String("session", ev.Session),
		zap.Stringer("command", ev.Command),
		zap.Int64("bytes", ev.Bytes),
		zap.Duration("duration", ev.Duration),
	}
	if ev.Name != "" {
		fields = append(fields, zap.String("name", ev.Name))
	}

	if ev.Err != nil {
		o.zap.Warn("command failed", append(fields, zap.Error(ev.Err))...)
		return
	}
	o.zap.Info("command completed", fields...)
}
