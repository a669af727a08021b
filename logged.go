package artiecan

import (
	"context"
	"log/slog"
	"time"
)

// LoggedBackend is a Backend decorator that logs Send/Receive operations
// using a slog.Logger.

// LogOption is a bitmask for selecting which operations to log.
type LogOption uint8

const (
	LogNone LogOption = 0
	LogRead LogOption = 1 << iota
	LogWrite
	LogAll = LogRead | LogWrite
)

// NewLoggedBackend wraps the given backend and logs selected operations at
// the given level. If filter is non-nil, only frames that satisfy it are
// logged.
func NewLoggedBackend(inner Backend, logger *slog.Logger, level slog.Level, opts LogOption, filter FrameFilter) Backend {
	return &loggedBackend{
		inner:  inner,
		logger: logger,
		level:  level,
		opts:   opts,
		filter: filter,
	}
}

type loggedBackend struct {
	inner  Backend
	logger *slog.Logger
	level  slog.Level
	opts   LogOption
	filter FrameFilter
}

// Open forwards to the inner backend without logging.
func (l *loggedBackend) Open() error {
	return l.inner.Open()
}

// Send logs the frame and the result when write logging is enabled.
func (l *loggedBackend) Send(frame Frame) error {
	if l.opts&LogWrite != 0 && (l.filter == nil || l.filter(frame)) {
		l.logger.Log(context.Background(), l.level, "artiecan send",
			"id", frame.ID,
			"extended", frame.Extended,
			"len", int(frame.Len),
			"data", frame.Data[:frame.Len],
			"string", frame.String(),
		)
	}
	err := l.inner.Send(frame)
	if l.opts&LogWrite != 0 && err != nil {
		l.logger.Log(context.Background(), slog.LevelError, "artiecan send error",
			"id", frame.ID,
			"error", err,
		)
	}
	return err
}

// Receive logs the received frame or error when read logging is enabled.
// Timeouts are not logged.
func (l *loggedBackend) Receive(timeout time.Duration) (Frame, error) {
	f, err := l.inner.Receive(timeout)
	if l.opts&LogRead != 0 {
		switch {
		case err == ErrTimeout:
		case err != nil:
			l.logger.Log(context.Background(), slog.LevelError, "artiecan receive error",
				"error", err,
			)
		case l.filter == nil || l.filter(f):
			l.logger.Log(context.Background(), l.level, "artiecan receive",
				"id", f.ID,
				"extended", f.Extended,
				"len", int(f.Len),
				"data", f.Data[:f.Len],
				"string", f.String(),
			)
		}
	}
	return f, err
}

// Close forwards to the inner backend without logging.
func (l *loggedBackend) Close() error {
	return l.inner.Close()
}
