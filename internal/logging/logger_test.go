package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "loud"); err == nil {
		t.Error("New with level \"loud\" succeeded")
	}
}

func TestLineFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "debug")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	Component(log, "server").WithField("addr", "1.2.3.4:5").Info("CONNECT")
	line := buf.String()
	if !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "\n") {
		t.Fatalf("unexpected line %q", line)
	}
	if !strings.Contains(line, "INFO  CONNECT (addr=1.2.3.4:5 component=server)") {
		t.Errorf("line = %q", line)
	}

	buf.Reset()
	log.WithError(errors.New("boom")).Warn("accept failed")
	if !strings.Contains(buf.String(), "WARN  accept failed (error=boom)") {
		t.Errorf("line = %q", buf.String())
	}

	buf.Reset()
	log.Debug("plain")
	if strings.Contains(buf.String(), "(") {
		t.Errorf("line without fields has a field block: %q", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log, _ := New(&buf, "warn")
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %q", buf.String())
	}
}
