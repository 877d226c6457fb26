// Package logging configures the process logger: a single-line text format,
// per-module entries, and redaction of personal data by field name.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// ModuleKey names the field carrying the emitting module.
	ModuleKey = "module"
	// CriticalKey marks an error entry as CRITICAL.
	CriticalKey = "critical"

	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Options configures Setup.
type Options struct {
	Level   string
	Verbose bool
	File    string
	// Output overrides stdout; used by tests.
	Output io.Writer
}

// Setup installs the formatter, level, and output on the standard logger.
func Setup(opts Options) error {
	level, criticalOnly, err := ParseLevel(opts.Level)
	if err != nil {
		return err
	}
	var out io.Writer = os.Stdout
	if opts.Output != nil {
		out = opts.Output
	}
	if file := strings.TrimSpace(opts.File); file != "" {
		out = io.MultiWriter(out, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		})
	}
	log.SetOutput(out)
	log.SetLevel(level)
	log.SetFormatter(&LineFormatter{Verbose: opts.Verbose, CriticalOnly: criticalOnly})
	return nil
}

// ParseLevel maps the configured level name onto logrus. "critical" maps to
// error level with non-critical errors suppressed by the formatter.
func ParseLevel(raw string) (log.Level, bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return log.InfoLevel, false, nil
	case "debug":
		return log.DebugLevel, false, nil
	case "warn", "warning":
		return log.WarnLevel, false, nil
	case "error":
		return log.ErrorLevel, false, nil
	case "critical":
		return log.ErrorLevel, true, nil
	default:
		return log.InfoLevel, false, fmt.Errorf("logging: unknown level %q", raw)
	}
}

// Module returns an entry tagged with the emitting module name.
func Module(name string) *log.Entry {
	return log.WithField(ModuleKey, name)
}

// Critical logs msg at the CRITICAL level.
func Critical(entry *log.Entry, msg string) {
	entry.WithField(CriticalKey, true).Error(msg)
}

// LineFormatter renders `[ts] [LEVEL] [module] message | k=v | k=v`.
type LineFormatter struct {
	// Verbose disables redaction. Never enabled in production.
	Verbose bool
	// CriticalOnly drops error entries that are not marked critical.
	CriticalOnly bool
}

// Format implements logrus.Formatter.
func (f *LineFormatter) Format(entry *log.Entry) ([]byte, error) {
	critical := isCritical(entry)
	if f.CriticalOnly && !critical {
		return nil, nil
	}

	module, _ := entry.Data[ModuleKey].(string)
	if module == "" {
		module = "app"
	}

	var b bytes.Buffer
	b.WriteString("[")
	b.WriteString(entry.Time.UTC().Format(timestampLayout))
	b.WriteString("] [")
	b.WriteString(levelName(entry.Level, critical))
	b.WriteString("] [")
	b.WriteString(module)
	b.WriteString("] ")
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k == ModuleKey || k == CriticalKey {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(" | ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(f.render(k, entry.Data[k]))
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func (f *LineFormatter) render(key string, value any) string {
	var s string
	switch v := value.(type) {
	case error:
		s = v.Error()
	case time.Time:
		s = v.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		s = v.String()
	default:
		s = fmt.Sprint(v)
	}
	if f.Verbose {
		return s
	}
	return Redact(key, s)
}

func isCritical(entry *log.Entry) bool {
	if entry.Level > log.ErrorLevel {
		return false
	}
	v, ok := entry.Data[CriticalKey].(bool)
	return ok && v
}

func levelName(level log.Level, critical bool) string {
	if critical {
		return "CRITICAL"
	}
	switch level {
	case log.WarnLevel:
		return "WARNING"
	case log.PanicLevel, log.FatalLevel:
		return "CRITICAL"
	default:
		return strings.ToUpper(level.String())
	}
}
