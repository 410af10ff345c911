// Package logging configures the process logger.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

const timeLayout = "2006-01-02 15:04:05"

// LineFormatter writes "[time] LEVEL message (k=v k=v)".
type LineFormatter struct{}

func (f *LineFormatter) Format(e *logrus.Entry) ([]byte, error) {
	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	data := bytes.NewBuffer(make([]byte, 0, 128))
	for i, k := range keys {
		if i > 0 {
			data.WriteByte(' ')
		}
		fmt.Fprintf(data, "%s=%v", k, e.Data[k])
	}

	buf := bytes.NewBuffer(make([]byte, 0, 256))
	fmt.Fprintf(buf, "[%s] %-5s %s", e.Time.Format(timeLayout), levelName(e.Level), e.Message)
	if data.Len() > 0 {
		fmt.Fprintf(buf, " (%s)", data)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func levelName(l logrus.Level) string {
	switch l {
	case logrus.WarnLevel:
		return "WARN"
	case logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel:
		return "ERROR"
	}
	return strings.ToUpper(l.String())
}

// New returns a root entry writing to out at the given level.
func New(out io.Writer, level string) (*logrus.Entry, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(lvl)
	l.SetFormatter(&LineFormatter{})
	return logrus.NewEntry(l), nil
}

// Component tags log lines from one part of the server.
func Component(log *logrus.Entry, name string) *logrus.Entry {
	return log.WithField("component", name)
}

