package log

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// The available log levels.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	outputStdout = "stdout"
	outputStderr = "stderr"

	// logTestWriterName is a reserved output name; Init with this name
	// sends all log output to the logTestWriter writer.
	logTestWriterName = "logTestWriter"
)

var (
	log zerolog.Logger

	// logTestWriter is the io.Writer used when Init is called with
	// logTestWriterName as its output.
	logTestWriter io.Writer = &bytes.Buffer{}

	// panicOnInvalidChars makes any log line containing invalid UTF-8
	// panic, to help catch format verb mistakes like %s on raw bytes.
	panicOnInvalidChars = os.Getenv("LOG_PANIC_ON_INVALIDCHARS") == "true"
)

func init() {
	// Allow the package-level functions to be used before Init is called.
	Init(LogLevelInfo, outputStderr, nil)
}

// invalidCharChecker panics when it detects a log line with invalid UTF-8.
type invalidCharChecker struct{}

func (invalidCharChecker) Write(p []byte) (int, error) {
	if bytes.ContainsRune(p, utf8.RuneError) {
		panic(fmt.Sprintf("log line with invalid chars: %q", string(p)))
	}
	return len(p), nil
}

// Init initializes the logger with the given level. Output can be "stdout",
// "stderr" or a file path. If errorOutput is not nil, messages of level
// warning or above are duplicated to it.
func Init(level, output string, errorOutput io.Writer) {
	var out io.Writer
	switch output {
	case outputStdout:
		out = os.Stdout
	case outputStderr:
		out = os.Stderr
	case logTestWriterName:
		out = logTestWriter
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			panic(fmt.Sprintf("cannot create log output: %v", err))
		}
		out = f
	}
	out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339Nano}
	if errorOutput != nil {
		out = zerolog.MultiLevelWriter(out, &errorLevelWriter{zerolog.ConsoleWriter{
			Out: errorOutput, TimeFormat: time.RFC3339Nano,
		}})
	}
	if panicOnInvalidChars {
		out = io.MultiWriter(out, invalidCharChecker{})
	}
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		panic(fmt.Sprintf("invalid log level %q: %v", level, err))
	}
	zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
		if i := strings.LastIndexByte(file, '/'); i >= 0 {
			file = file[i+1:]
		}
		return fmt.Sprintf("%s:%d", file, line)
	}
	log = zerolog.New(out).Level(logLevel).With().Timestamp().CallerWithSkipFrameCount(3).Logger()
	Infow("logger initialized", "level", logLevel.String(), "output", output)
}

// errorLevelWriter only passes through messages of level warning or above.
type errorLevelWriter struct {
	w io.Writer
}

func (lw *errorLevelWriter) Write(p []byte) (int, error) {
	return lw.w.Write(p)
}

func (lw *errorLevelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < zerolog.WarnLevel {
		return len(p), nil
	}
	return lw.w.Write(p)
}

// Logger returns the underlying zerolog instance.
func Logger() *zerolog.Logger { return &log }

// Level returns the current log level.
func Level() string { return log.GetLevel().String() }

func checkInvalidChars(s string) {
	if panicOnInvalidChars && !utf8.ValidString(s) {
		panic(fmt.Sprintf("invalid chars on log message: %q", s))
	}
}

func withFields(ev *zerolog.Event, keyvalues ...any) *zerolog.Event {
	if len(keyvalues)%2 != 0 {
		keyvalues = append(keyvalues, "MISSING")
	}
	for i := 0; i < len(keyvalues); i += 2 {
		key, ok := keyvalues[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keyvalues[i])
		}
		ev = ev.Interface(key, keyvalues[i+1])
	}
	return ev
}

// Debug logs a debug message built like fmt.Sprint.
func Debug(args ...any) {
	msg := fmt.Sprint(args...)
	checkInvalidChars(msg)
	log.Debug().Msg(msg)
}

// Debugf logs a debug message built like fmt.Sprintf.
func Debugf(template string, args ...any) {
	msg := fmt.Sprintf(template, args...)
	checkInvalidChars(msg)
	log.Debug().Msg(msg)
}

// Debugw logs a debug message with alternating key-value fields.
func Debugw(msg string, keyvalues ...any) {
	checkInvalidChars(msg)
	withFields(log.Debug(), keyvalues...).Msg(msg)
}

// Info logs an info message built like fmt.Sprint.
func Info(args ...any) {
	msg := fmt.Sprint(args...)
	checkInvalidChars(msg)
	log.Info().Msg(msg)
}

// Infof logs an info message built like fmt.Sprintf.
func Infof(template string, args ...any) {
	msg := fmt.Sprintf(template, args...)
	checkInvalidChars(msg)
	log.Info().Msg(msg)
}

// Infow logs an info message with alternating key-value fields.
func Infow(msg string, keyvalues ...any) {
	checkInvalidChars(msg)
	withFields(log.Info(), keyvalues...).Msg(msg)
}

// Warn logs a warning message built like fmt.Sprint.
func Warn(args ...any) {
	msg := fmt.Sprint(args...)
	checkInvalidChars(msg)
	log.Warn().Msg(msg)
}

// Warnf logs a warning message built like fmt.Sprintf.
func Warnf(template string, args ...any) {
	msg := fmt.Sprintf(template, args...)
	checkInvalidChars(msg)
	log.Warn().Msg(msg)
}

// Warnw logs a warning message with alternating key-value fields.
func Warnw(msg string, keyvalues ...any) {
	checkInvalidChars(msg)
	withFields(log.Warn(), keyvalues...).Msg(msg)
}

// Error logs an error message built like fmt.Sprint.
func Error(args ...any) {
	msg := fmt.Sprint(args...)
	checkInvalidChars(msg)
	log.Error().Msg(msg)
}

// Errorf logs an error message built like fmt.Sprintf.
func Errorf(template string, args ...any) {
	msg := fmt.Sprintf(template, args...)
	checkInvalidChars(msg)
	log.Error().Msg(msg)
}

// Errorw logs an error with an accompanying message.
func Errorw(err error, msg string) {
	checkInvalidChars(msg)
	log.Error().Err(err).Msg(msg)
}

// Fatal logs a fatal message built like fmt.Sprint and exits.
func Fatal(args ...any) {
	msg := fmt.Sprint(args...)
	checkInvalidChars(msg)
	log.Fatal().Msg(msg)
}

// Fatalf logs a fatal message built like fmt.Sprintf and exits.
func Fatalf(template string, args ...any) {
	msg := fmt.Sprintf(template, args...)
	checkInvalidChars(msg)
	log.Fatal().Msg(msg)
}
