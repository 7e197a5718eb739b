package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	l.Debug("dropped")
	l.Info("dropped")
	l.Warn("kept")
	l.Error("kept too")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("low-level messages leaked: %q", out)
	}
	if !strings.Contains(out, "[WARN] kept") || !strings.Contains(out, "[ERROR] kept too") {
		t.Errorf("expected warn and error output, got %q", out)
	}
}

func TestKeyValueFormatting(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	l.Info("frame received", "id", 7, "bytes", 512)
	if !strings.Contains(buf.String(), "frame received id=7 bytes=512") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestOddArgsIgnored(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	l.Info("msg", "lonely")
	if !strings.Contains(buf.String(), "[INFO] msg") {
		t.Errorf("unexpected output: %q", buf.String())
	}
	if strings.Contains(buf.String(), "lonely") {
		t.Errorf("odd trailing key rendered: %q", buf.String())
	}
}

func TestDefaultLogger(t *testing.T) {
	l := Default()
	if l == nil {
		t.Fatal("Default returned nil")
	}
	if Default() != l {
		t.Error("Default not cached")
	}

	var buf bytes.Buffer
	custom := NewLogger(&Config{Level: LevelDebug, Output: &buf})
	SetDefault(custom)
	defer SetDefault(l)

	if Default() != custom {
		t.Error("SetDefault not applied")
	}
}
