package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, log.InfoLevel)

	l.Debug("hidden")
	l.Info("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug message leaked at info level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("info message missing")
	}
}

func TestLoggerContextRoundTrip(t *testing.T) {
	l := newLogger(bytes.NewBuffer(nil), log.DebugLevel)
	ctx := withLogger(context.Background(), l)
	if got := loggerFromContext(ctx); got != l {
		t.Error("logger not recovered from context")
	}
	// missing logger falls back to the default
	if got := loggerFromContext(context.Background()); got == nil {
		t.Error("nil fallback logger")
	}
}

func TestProgressDone(t *testing.T) {
	var buf bytes.Buffer
	p := newProgress(newLogger(&buf, log.InfoLevel))
	p.done("Generated 5 items")
	if !strings.Contains(buf.String(), "Generated 5 items") {
		t.Errorf("output = %q", buf.String())
	}
}
