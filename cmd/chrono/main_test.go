package main

import (
	"bytes"
	"encoding/hex"
	"path/filepath"
	"strings"
	"testing"

	"github.com/willibrandon/ChronoTrace/pkg/trace"
)

func writeTrace(t *testing.T, name string, options trace.FileOptions) string {
	t.Helper()
	doc := trace.NewInMemoryRecorder().
		PushFrame("main", 1).
		NewList(100, trace.Numbers(3, 1, 2)...).
		NewLocal("xs", trace.Ptr(100)).
		Line(2).
		ModifyPos(100, 0, trace.Number(1)).
		ModifyPos(100, 1, trace.Number(3)).
		Line(3).
		PopFrame().
		Document()

	path := filepath.Join(t.TempDir(), name)
	if err := trace.WriteFile(path, doc, options); err != nil {
		t.Fatalf("Failed to write trace: %v", err)
	}
	return path
}

func runChrono(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	t.Setenv("CHRONO_HISTORY_FILE", filepath.Join(t.TempDir(), "history"))
	t.Setenv("CHRONO_PLAY_INTERVAL", "0s")
	var stdout, stderr bytes.Buffer
	code := run(args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunVersion(t *testing.T) {
	code, stdout, _ := runChrono(t, "", "-version")
	if code != 0 || !strings.Contains(stdout, "ChronoTrace") {
		t.Errorf("Unexpected version output (%d): %s", code, stdout)
	}
}

func TestRunInteractive(t *testing.T) {
	path := writeTrace(t, "sort.json.zst", trace.DefaultFileOptions())

	code, stdout, stderr := runChrono(t, "s 5\nhp\nq\n", path)
	if code != 0 {
		t.Fatalf("Expected exit 0, got %d: %s", code, stderr)
	}
	for _, want := range []string{"Loaded trace with 8 entries", "[step 4/7]", "#100 array (xs)", "| 1* | 1 | 2 |"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("Expected %q in output:\n%s", want, stdout)
		}
	}
}

func TestRunPlay(t *testing.T) {
	path := writeTrace(t, "sort.json", trace.DefaultFileOptions())

	code, stdout, stderr := runChrono(t, "", "-play", path)
	if code != 0 {
		t.Fatalf("Expected exit 0, got %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Reached end of trace") {
		t.Errorf("Expected playback to reach the end:\n%s", stdout)
	}
}

func TestRunPlayFailure(t *testing.T) {
	doc := trace.NewInMemoryRecorder().
		PushFrame("main", 1).
		PopFrame().
		PopFrame().
		Document()
	path := filepath.Join(t.TempDir(), "broken.json")
	if err := trace.WriteFile(path, doc, trace.DefaultFileOptions()); err != nil {
		t.Fatalf("Failed to write trace: %v", err)
	}

	code, stdout, stderr := runChrono(t, "", "-play", path)
	if code != 1 {
		t.Fatalf("Expected exit 1 for a failed replay, got %d", code)
	}
	if !strings.Contains(stdout, "Error during playback") || !strings.Contains(stderr, "playback failed") {
		t.Errorf("Expected the failure to be reported:\n%s\n%s", stdout, stderr)
	}
}

func TestRunArchive(t *testing.T) {
	path := writeTrace(t, "sort.json", trace.DefaultFileOptions())
	db := filepath.Join(t.TempDir(), "traces.db")

	code, stdout, stderr := runChrono(t, "q\n", "-store", db, "-import", "bubble", path)
	if code != 0 || !strings.Contains(stdout, "Archived bubble as ") {
		t.Fatalf("Import failed (%d): %s %s", code, stdout, stderr)
	}

	code, stdout, _ = runChrono(t, "", "-store", db, "-list")
	if code != 0 || !strings.Contains(stdout, "bubble") {
		t.Errorf("Expected archived trace in listing (%d):\n%s", code, stdout)
	}

	code, stdout, stderr = runChrono(t, "", "-store", db, "-open", "bubble", "-play")
	if code != 0 || !strings.Contains(stdout, "Reached end of trace") {
		t.Errorf("Expected archived trace to replay (%d): %s %s", code, stdout, stderr)
	}

	code, _, _ = runChrono(t, "", "-store", db, "-open", "missing")
	if code != 1 {
		t.Errorf("Expected exit 1 for a missing archived trace, got %d", code)
	}
}

func TestRunIntegrity(t *testing.T) {
	key := []byte("secret")
	signed := writeTrace(t, "signed.json", trace.FileOptions{IntegrityKey: key})
	unsigned := writeTrace(t, "unsigned.json", trace.DefaultFileOptions())

	if code, _, stderr := runChrono(t, "", "-key", hex.EncodeToString(key), "-play", signed); code != 0 {
		t.Errorf("Expected signed trace to load, got %d: %s", code, stderr)
	}
	if code, _, _ := runChrono(t, "", "-key", hex.EncodeToString([]byte("other")), "-play", signed); code != 1 {
		t.Errorf("Expected wrong key to fail, got %d", code)
	}
	if code, _, _ := runChrono(t, "", "-key", hex.EncodeToString(key), "-play", unsigned); code != 1 {
		t.Errorf("Expected missing signature to fail, got %d", code)
	}
}

func TestRunErrors(t *testing.T) {
	testCases := []struct {
		name     string
		args     []string
		wantCode int
	}{
		{"no trace", nil, 2},
		{"unknown flag", []string{"-bogus"}, 2},
		{"missing file", []string{filepath.Join(t.TempDir(), "missing.json")}, 1},
		{"list without store", []string{"-list"}, 1},
		{"bad key", []string{"-key", "zz", "trace.json"}, 1},
		{"missing config", []string{"-config", filepath.Join(t.TempDir(), "none.yaml"), "trace.json"}, 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if code, _, _ := runChrono(t, "", tc.args...); code != tc.wantCode {
				t.Errorf("Expected exit %d, got %d", tc.wantCode, code)
			}
		})
	}
}
