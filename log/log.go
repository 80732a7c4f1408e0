// Package log contains leveled logging interface and its implementation on top of go.uber.org/zap.
package log

import (
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger interface is subset of github.com/uber-common/bark.Logger methods.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
	Panic(args ...interface{})
	Panicf(format string, args ...interface{})
	WithFields(keyValues LogFields) Logger
	Fields() Fields
}

type LogFields interface {
	Fields() map[string]interface{}
}

type Fields map[string]interface{}

func (f Fields) Fields() map[string]interface{} { return f }

type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	}
	panic("unexpected level: " + strconv.Itoa(int(l)))
}

func (l Level) zap() zapcore.Level {
	switch l {
	case DebugLevel:
		return zapcore.DebugLevel
	case InfoLevel:
		return zapcore.InfoLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	}
	return zapcore.FatalLevel
}

var stringToLevel = func() map[string]Level {
	var levels = []Level{DebugLevel, InfoLevel, WarnLevel, ErrorLevel, FatalLevel}
	res := make(map[string]Level, len(levels))
	for _, l := range levels {
		res[l.String()] = l
	}
	return res
}()

// LevelFromString parses level name. Case insensitive.
func LevelFromString(s string) (Level, error) {
	var err error
	l, ok := stringToLevel[strings.ToUpper(s)]
	if !ok {
		err = errors.New("invalid level " + s)
	}
	return l, err
}

// AtomicLevel is level that can be changed, while loggers created with it are in use.
type AtomicLevel struct {
	zl zap.AtomicLevel
}

func NewAtomicLevel(l Level) AtomicLevel {
	return AtomicLevel{zap.NewAtomicLevelAt(l.zap())}
}

func (a AtomicLevel) SetLevel(l Level) { a.zl.SetLevel(l.zap()) }

func (a AtomicLevel) Enabled(l Level) bool { return a.zl.Enabled(l.zap()) }

func NewLogger(l Level, w io.Writer) Logger {
	return NewLoggerAt(NewAtomicLevel(l), w)
}

// NewLoggerAt creates console logger writing into w, with level controlled by lvl.
func NewLoggerAt(lvl AtomicLevel, w io.Writer) Logger {
	encConf := zap.NewDevelopmentEncoderConfig()
	encConf.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encConf), zapcore.AddSync(w), lvl.zl)
	z := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return &logger{sugar: z.Sugar()}
}

// NewNop returns Logger that discards everything.
func NewNop() Logger {
	return &logger{sugar: zap.NewNop().Sugar()}
}

type logger struct {
	sugar  *zap.SugaredLogger
	fields Fields
}

var _ Logger = (*logger)(nil)

func (l *logger) Fields() Fields { return l.fields }

func (l *logger) WithFields(keyValues LogFields) Logger {
	extraFields := keyValues.Fields()
	fields := make(Fields, len(l.fields)+len(extraFields))
	for k, v := range l.fields {
		fields[k] = v
	}
	args := make([]interface{}, 0, 2*len(extraFields))
	for k, v := range extraFields {
		fields[k] = v
		args = append(args, k, v)
	}
	return &logger{
		sugar:  l.sugar.With(args...),
		fields: fields,
	}
}

func (l *logger) Debug(args ...interface{})                 { l.sugar.Debug(args...) }
func (l *logger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *logger) Info(args ...interface{})                  { l.sugar.Info(args...) }
func (l *logger) Infof(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *logger) Warn(args ...interface{})                  { l.sugar.Warn(args...) }
func (l *logger) Warnf(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *logger) Error(args ...interface{})                 { l.sugar.Error(args...) }
func (l *logger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }
func (l *logger) Fatal(args ...interface{})                 { l.sugar.Fatal(args...) }
func (l *logger) Fatalf(format string, args ...interface{}) { l.sugar.Fatalf(format, args...) }
func (l *logger) Panic(args ...interface{})                 { l.sugar.Panic(args...) }
func (l *logger) Panicf(format string, args ...interface{}) { l.sugar.Panicf(format, args...) }
