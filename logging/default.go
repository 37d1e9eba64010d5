package logging

import (
	"context"
	"fmt"
	"io"
	"log"
	"maps"
	"os"
	"sort"
	"strings"
	"sync/atomic"
)

// componentKey is rendered as a prefix instead of a trailing field.
const componentKey = "component"

// DefaultLogger is a colored text logger over Go's standard log package.
// Debug and Info go to stdout, Warn and above to stderr in yellow or red.
// Loggers derived with WithFields share their parent's level, so SetLevel
// on the root reaches every component. It is safe for concurrent use.
type DefaultLogger struct {
	out, errOut *log.Logger
	level       *atomic.Int32
	fields      Fields
	useColors   bool
}

// NewDefaultLogger returns a console logger at InfoLevel.
func NewDefaultLogger() *DefaultLogger {
	return newDefaultLogger(
		log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds),
		log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds),
		InfoLevel,
		isTerminal(),
	)
}

// NewWriterLogger writes every level to w without colors or timestamps.
func NewWriterLogger(w io.Writer, level Level) *DefaultLogger {
	l := log.New(w, "", 0)
	return newDefaultLogger(l, l, level, false)
}

func newDefaultLogger(out, errOut *log.Logger, level Level, colors bool) *DefaultLogger {
	lv := new(atomic.Int32)
	lv.Store(int32(level))
	return &DefaultLogger{
		out:       out,
		errOut:    errOut,
		level:     lv,
		fields:    Fields{},
		useColors: colors,
	}
}

// isTerminal reports whether stderr is a character device.
func isTerminal() bool {
	if fi, _ := os.Stderr.Stat(); fi != nil {
		return fi.Mode()&os.ModeCharDevice != 0
	}
	return false
}

func (d *DefaultLogger) format(level Level, err error, msg string, fields ...Fields) string {
	all := make(Fields, len(d.fields))
	maps.Copy(all, d.fields)
	for _, f := range fields {
		maps.Copy(all, f)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] ", level)
	if c, ok := all[componentKey]; ok {
		fmt.Fprintf(&b, "%v: ", c)
		delete(all, componentKey)
	}
	b.WriteString(msg)
	if err != nil {
		fmt.Fprintf(&b, ": %v", err)
	}

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, all[k])
	}

	line := b.String()
	if !d.useColors {
		return line
	}
	switch level {
	case WarnLevel:
		return ColorYellow + line + ColorReset
	case ErrorLevel:
		return ColorRed + line + ColorReset
	case FatalLevel:
		return ColorBold + ColorRed + line + ColorReset
	}
	return line
}

func (d *DefaultLogger) log(level Level, err error, msg string, fields ...Fields) {
	if int32(level) < d.level.Load() {
		return
	}
	line := d.format(level, err, msg, fields...)
	if level < WarnLevel {
		d.out.Println(line)
		return
	}
	d.errOut.Println(line)
	if level == FatalLevel {
		os.Exit(1)
	}
}

func (d *DefaultLogger) Debug(msg string, fields ...Fields) {
	d.log(DebugLevel, nil, msg, fields...)
}

func (d *DefaultLogger) Info(msg string, fields ...Fields) {
	d.log(InfoLevel, nil, msg, fields...)
}

func (d *DefaultLogger) Warn(msg string, fields ...Fields) {
	d.log(WarnLevel, nil, msg, fields...)
}

func (d *DefaultLogger) Error(err error, msg string, fields ...Fields) {
	d.log(ErrorLevel, err, msg, fields...)
}

func (d *DefaultLogger) Fatal(err error, msg string, fields ...Fields) {
	d.log(FatalLevel, err, msg, fields...)
}

func (d *DefaultLogger) WithFields(fields Fields) Logger {
	child := *d
	child.fields = make(Fields, len(d.fields)+len(fields))
	maps.Copy(child.fields, d.fields)
	maps.Copy(child.fields, fields)
	return &child
}

func (d *DefaultLogger) WithContext(ctx context.Context) Logger {
	if fields, ok := fieldsFromContext(ctx); ok {
		return d.WithFields(fields)
	}
	return d
}

func (d *DefaultLogger) SetLevel(level Level) {
	d.level.Store(int32(level))
}

// NoOpLogger discards everything.
type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, fields ...Fields)            {}
func (n *NoOpLogger) Info(msg string, fields ...Fields)             {}
func (n *NoOpLogger) Warn(msg string, fields ...Fields)             {}
func (n *NoOpLogger) Error(err error, msg string, fields ...Fields) {}
func (n *NoOpLogger) Fatal(err error, msg string, fields ...Fields) {}
func (n *NoOpLogger) WithFields(fields Fields) Logger               { return n }
func (n *NoOpLogger) WithContext(ctx context.Context) Logger        { return n }
func (n *NoOpLogger) SetLevel(level Level)                          {}
