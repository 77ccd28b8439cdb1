package activity

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// LoggerAdapter routes watermill logs to zerolog.
type LoggerAdapter struct {
	log zerolog.Logger
}

// NewLoggerAdapter wraps logger for watermill.
func NewLoggerAdapter(logger *zerolog.Logger) watermill.LoggerAdapter {
	return &LoggerAdapter{log: logger.With().Str("component", "watermill").Logger()}
}

func (l *LoggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	l.log.Error().Err(err).Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l *LoggerAdapter) Info(msg string, fields watermill.LogFields) {
	l.log.Info().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l *LoggerAdapter) Debug(msg string, fields watermill.LogFields) {
	l.log.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l *LoggerAdapter) Trace(msg string, fields watermill.LogFields) {
	l.log.Trace().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l *LoggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &LoggerAdapter{log: l.log.With().Fields(map[string]interface{}(fields)).Logger()}
}
