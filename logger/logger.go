package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
)

// Level type
type Level uint32

const (
	// ErrorLevel is used for failures the caller should know about, such as
	// a failed cache reset after sign-out.
	ErrorLevel Level = iota
	// WarnLevel is used for recoverable transport problems.
	WarnLevel
	// InfoLevel is used for connection lifecycle entries.
	InfoLevel
	// DebugLevel is used for per-operation entries.
	DebugLevel
	// TraceLevel is used for individual protocol messages.
	TraceLevel
)

var LevelMap = map[Level]string{
	ErrorLevel: "error",
	WarnLevel:  "warn",
	InfoLevel:  "info",
	DebugLevel: "debug",
	TraceLevel: "trace",
}

// ParseLevel converts a level name into a Level
func ParseLevel(name string) (Level, error) {
	for l, n := range LevelMap {
		if strings.EqualFold(n, name) {
			return l, nil
		}
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", name)
}

type LogPayload struct {
	Level   Level
	Fields  map[string]interface{}
	Error   error
	Message string
}

type LogFunc func(payload LogPayload)

func NoopLogFunc(payload LogPayload) {}

func NewNoopLogger() *LogWrapper {
	return NewLogWrapper(NoopLogFunc, map[string]interface{}{})
}

// NewSimpleLogFunc returns a logfmt style logging func that writes to w,
// stdout when w is nil
func NewSimpleLogFunc(level Level, w io.Writer) LogFunc {
	if w == nil {
		w = os.Stdout
	}

	var mx sync.Mutex
	return func(payload LogPayload) {
		if level < payload.Level {
			return
		}
		mx.Lock()
		defer mx.Unlock()
		fmt.Fprintln(w, formatPayload(payload))
	}
}

func formatPayload(payload LogPayload) string {
	fields := []string{}
	m := map[string]interface{}{}
	keys := []string{"msg", "level"}

	for k, v := range payload.Fields {
		if k != "msg" && k != "level" && k != "error" {
			keys = append(keys, k)
			m[k] = v
		}
	}

	m["msg"] = payload.Message
	m["level"] = LevelMap[payload.Level]

	if payload.Error != nil {
		keys = append(keys, "error")
		m["error"] = payload.Error.Error()
	}

	sort.Strings(keys)

	for _, k := range keys {
		fields = append(fields, fmt.Sprintf("%s=%q", k, fmt.Sprint(m[k])))
	}

	return strings.Join(fields, " ")
}

type LogWrapper struct {
	LogFunc LogFunc
	Fields  map[string]interface{}
	Error   error
}

// NewLogWrapper returns a new log wrapper
func NewLogWrapper(logFunc LogFunc, fields map[string]interface{}) *LogWrapper {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	if logFunc == nil {
		logFunc = NoopLogFunc
	}

	return &LogWrapper{
		LogFunc: logFunc,
		Fields:  fields,
	}
}

// clone clones a log wrapper to iteratively build the log
func (l *LogWrapper) clone() *LogWrapper {
	newWrapper := &LogWrapper{
		LogFunc: l.LogFunc,
		Error:   l.Error,
		Fields:  map[string]interface{}{},
	}

	for k, v := range l.Fields {
		newWrapper.Fields[k] = v
	}

	return newWrapper
}

func (l *LogWrapper) WithError(err error) *LogWrapper {
	newWrapper := l.clone()
	newWrapper.Error = err
	return newWrapper
}

func (l *LogWrapper) WithField(key string, value interface{}) *LogWrapper {
	newWrapper := l.clone()
	newWrapper.Fields[key] = value
	return newWrapper
}

func (l *LogWrapper) log(level Level, format string, v ...interface{}) {
	l.LogFunc(LogPayload{
		Level:   level,
		Fields:  l.Fields,
		Error:   l.Error,
		Message: fmt.Sprintf(format, v...),
	})
}

func (l *LogWrapper) Tracef(format string, v ...interface{}) {
	l.log(TraceLevel, format, v...)
}

func (l *LogWrapper) Debugf(format string, v ...interface{}) {
	l.log(DebugLevel, format, v...)
}

func (l *LogWrapper) Errorf(format string, v ...interface{}) {
	l.log(ErrorLevel, format, v...)
}

func (l *LogWrapper) Warnf(format string, v ...interface{}) {
	l.log(WarnLevel, format, v...)
}

func (l *LogWrapper) Infof(format string, v ...interface{}) {
	l.log(InfoLevel, format, v...)
}
