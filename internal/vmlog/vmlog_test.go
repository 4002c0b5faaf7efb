package vmlog

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
)

// captureStderr swaps os.Stderr for the duration of fn and returns whatever
// was written to it. New reads os.Stderr when it's called, so the swap must
// happen before constructing the Logger under test.
func captureStderr(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	old := os.Stderr
	os.Stderr = w
	defer func() { os.Stderr = old }()

	fn()

	w.Close()
	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

func TestInfoSuppressedWhenQuiet(t *testing.T) {
	out := captureStderr(t, func() {
		l := New(true)
		l.Info("hello")
	})
	if out != "" {
		t.Fatalf("Info() on a quiet logger wrote %q, want nothing", out)
	}
}

func TestInfoPrintedWhenNotQuiet(t *testing.T) {
	out := captureStderr(t, func() {
		l := New(false)
		l.Infof("loaded %s", "Main")
	})
	if !strings.Contains(out, "loaded Main") {
		t.Fatalf("Infof output %q does not contain %q", out, "loaded Main")
	}
}

func TestDebugSuppressedWhenQuiet(t *testing.T) {
	out := captureStderr(t, func() {
		l := New(true)
		l.Debug("trace")
	})
	if out != "" {
		t.Fatalf("Debug() on a quiet logger wrote %q, want nothing", out)
	}
}

func TestWarnAlwaysPrintsEvenWhenQuiet(t *testing.T) {
	out := captureStderr(t, func() {
		l := New(true)
		l.Warn("disk almost full")
	})
	if !strings.Contains(out, "WARN: disk almost full") {
		t.Fatalf("Warn output %q does not contain the WARN-tagged message", out)
	}
}

func TestWarnfAlwaysPrintsEvenWhenQuiet(t *testing.T) {
	out := captureStderr(t, func() {
		l := New(true)
		l.Warnf("heap at %d%%", 95)
	})
	if !strings.Contains(out, "WARN: heap at 95%") {
		t.Fatalf("Warnf output %q does not contain the expected WARN message", out)
	}
}
