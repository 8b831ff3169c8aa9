package mdb

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}

	original := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = original }()

	fn()

	w.Close()
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

func TestPrintSourceWindow(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "source-*.go")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	lines := []string{"one", "two", "three", "four", "five", "six", "seven"}
	if _, err := f.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	f.Close()

	output := captureStdout(t, func() {
		if err := PrintSourceWindow(f.Name(), 4, 2); err != nil {
			t.Fatalf("PrintSourceWindow returned error: %v", err)
		}
	})

	if !strings.Contains(output, "> 4\tfour") {
		t.Errorf("output missing focused line marker:\n%s", output)
	}
	if !strings.Contains(output, "  2\ttwo") {
		t.Errorf("output missing context line 2:\n%s", output)
	}
	if strings.Contains(output, "  1\tone") {
		t.Errorf("output should not include line 1 (outside the window):\n%s", output)
	}
	if strings.Contains(output, "seven") {
		t.Errorf("output should not include line 7 (outside the window):\n%s", output)
	}
}

func TestPrintSourceWindowClampsToFileStart(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "source-*.go")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	if _, err := f.WriteString("a\nb\nc\n"); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	f.Close()

	output := captureStdout(t, func() {
		if err := PrintSourceWindow(f.Name(), 1, 5); err != nil {
			t.Fatalf("PrintSourceWindow returned error: %v", err)
		}
	})

	if !strings.Contains(output, "> 1\ta") {
		t.Errorf("output missing focused line 1:\n%s", output)
	}
}

func TestPrintSourceWindowMissingFile(t *testing.T) {
	err := PrintSourceWindow("/nonexistent/path/to/source.go", 1, 1)
	if err == nil {
		t.Fatal("expected an error for a missing source file")
	}
}
