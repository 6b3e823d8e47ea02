package util

import "github.com/rs/zerolog"

// Stdlog adapts zerolog to standard log interface
type Stdlog struct {
	zerolog.Logger
}

func (l *Stdlog) Printf(format string, args ...any) {
	l.Debug().Msgf(format, args...)
}

func (l *Stdlog) Debugf(format string, args ...any) {
	l.Debug().Msgf(format, args...)
}

func (l *Stdlog) Infof(format string, args ...any) {
	l.Info().Msgf(format, args...)
}

func (l *Stdlog) Warnf(format string, args ...any) {
	l.Warn().Msgf(format, args...)
}

func (l *Stdlog) Errorf(format string, args ...any) {
	l.Error().Msgf(format, args...)
}

// Write lets Stdlog stand in for an *log.Logger's output (eg.
// http.Server.ErrorLog), since net/http only ever writes pre-formatted
// lines rather than calling through a Printf-style interface.
func (l *Stdlog) Write(p []byte) (int, error) {
	l.Error().Msg(string(p))
	return len(p), nil
}
