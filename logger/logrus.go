package logger

import (
	"github.com/sirupsen/logrus"
)

var logrusLevels = map[Level]logrus.Level{
	ErrorLevel: logrus.ErrorLevel,
	WarnLevel:  logrus.WarnLevel,
	InfoLevel:  logrus.InfoLevel,
	DebugLevel: logrus.DebugLevel,
	TraceLevel: logrus.TraceLevel,
}

// LogrusLevel maps a Level onto the equivalent logrus level
func LogrusLevel(level Level) logrus.Level {
	if l, ok := logrusLevels[level]; ok {
		return l
	}
	return logrus.InfoLevel
}

// NewLogrusLogFunc forwards log payloads to a logrus logger. Level filtering
// is left to the logrus logger.
func NewLogrusLogFunc(l *logrus.Logger) LogFunc {
	return func(payload LogPayload) {
		entry := l.WithFields(logrus.Fields(payload.Fields))
		if payload.Error != nil {
			entry = entry.WithError(payload.Error)
		}
		entry.Log(LogrusLevel(payload.Level), payload.Message)
	}
}
