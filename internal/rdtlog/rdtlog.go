// Package rdtlog provides the colored, leveled logger shared by every
// component of the endpoint. It keeps the console texture of a hand-rolled
// logger (banners, colored level tags) while delegating formatting and
// level filtering to logrus, the structured-logging library the retrieval
// pack's own networking tools (go-tcpinfo, conniver) depend on directly.
package rdtlog

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// ANSI color codes, kept from the teacher's console logger.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorWhite  = "\033[37m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

var base = newLogger(os.Stderr)

func newLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&consoleFormatter{timeFormat: "15:04:05"})
	return l
}

// SetLevel sets the minimum level the default logger emits.
func SetLevel(level logrus.Level) {
	base.SetLevel(level)
}

// New returns a component-scoped entry, e.g. rdtlog.New("sender").
func New(component string) *logrus.Entry {
	return base.WithField("component", component)
}

// consoleFormatter reproduces the teacher's "[time] [LEVEL] message" format
// with per-level ANSI coloring instead of logrus's default formatter.
type consoleFormatter struct {
	timeFormat string
}

func (f *consoleFormatter) Format(e *logrus.Entry) ([]byte, error) {
	color, tag := levelStyle(e)
	timestamp := fmt.Sprintf("%s[%s]%s ", colorGray, e.Time.Format(f.timeFormat), colorReset)

	line := fmt.Sprintf("%s%s[%s]%s %s", timestamp, color, tag, colorReset, e.Message)
	for k, v := range e.Data {
		if k == "style" {
			continue
		}
		line += fmt.Sprintf(" %s=%v", k, v)
	}
	line += "\n"
	return []byte(line), nil
}

func levelStyle(e *logrus.Entry) (color, tag string) {
	if e.Data["style"] == "success" {
		return colorGreen, "SUCCESS"
	}
	switch e.Level {
	case logrus.DebugLevel:
		return colorGray, "DEBUG"
	case logrus.WarnLevel:
		return colorYellow, "WARN"
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return colorRed, "ERROR"
	default:
		return colorWhite, "INFO"
	}
}

// Success logs at info level with the teacher's green "success" styling.
func Success(entry *logrus.Entry, format string, args ...interface{}) {
	entry.WithField("style", "success").Info(fmt.Sprintf(format, args...))
}

// Banner prints the application banner exactly as the teacher's
// pkg/logger.Banner did, ahead of any structured logging for the run.
func Banner(title, version string) {
	banner := `
╔═══════════════════════════════════════════════════════════╗
║                                                           ║
║   ██████╗ ██████╗ ████████╗                              ║
║   ██╔══██╗██╔══██╗╚══██╔══╝                              ║
║   ██████╔╝██║  ██║   ██║                                 ║
║   ██╔══██╗██║  ██║   ██║                                 ║
║   ██║  ██║██████╔╝   ██║                                 ║
║   ╚═╝  ╚═╝╚═════╝    ╚═╝                                 ║
║                                                           ║
║              %s%-37s%s║
║                    %sVersion %-7s%s                      ║
║                                                           ║
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, colorCyan, title, colorReset, colorGreen, version, colorReset)
}
