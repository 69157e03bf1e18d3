package upscale

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeFakeUpscaler(t *testing.T, script string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "upscayl-bin")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write fake upscaler: %v", err)
	}
	return path
}

func TestArgs(t *testing.T) {
	opts := Options{
		ModelsDir: "/res/models",
		Scale:     4,
		Model:     BuiltIn("upscayl-standard-4x"),
	}

	got := Args("/in/cat.png", "/in/cat_hipixel_4x_upscayl-standard-4x.png", opts)
	want := []string{
		"-i", "/in/cat.png",
		"-o", "/in/cat_hipixel_4x_upscayl-standard-4x.png",
		"-s", "4",
		"-m", "/res/models",
		"-n", "upscayl-standard-4x",
		"-f", "png",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestArgsConditionalFlags(t *testing.T) {
	opts := Options{
		ModelsDir:   "/res/models",
		Scale:       2,
		Model:       Custom("my-net", "/custom"),
		Compression: 80,
		GPUID:       "1",
		TileSize:    256,
		TTA:         true,
	}

	got := strings.Join(Args("in.png", "out.jpeg", opts), " ")
	for _, fragment := range []string{"-m /custom", "-n my-net", "-f jpeg", "-c 80", "-g 1", "-t 256", "-x"} {
		if !strings.Contains(got, fragment) {
			t.Fatalf("missing %q in %q", fragment, got)
		}
	}
}

func TestArgsDelegatedCompressionOmitsC(t *testing.T) {
	opts := Options{
		Scale:               4,
		Model:               BuiltIn("m"),
		Compression:         80,
		DelegateCompression: true,
	}

	got := strings.Join(Args("in.png", "out.png", opts), " ")
	if strings.Contains(got, "-c") {
		t.Fatalf("-c should be omitted when compression is delegated: %q", got)
	}
}

func TestRunParsesProgress(t *testing.T) {
	binary := writeFakeUpscaler(t, `
echo "23.5%"
echo "some log noise"
echo "abc%"
echo "100%"
`)

	var seen []float64
	sup := &Supervisor{Binary: binary}
	result := sup.Run(context.Background(), nil, func(p float64) {
		seen = append(seen, p)
	})

	if result.Status != 0 {
		t.Fatalf("status = %d, want 0 (%s)", result.Status, result.Reason)
	}
	if !reflect.DeepEqual(seen, []float64{23.5, 100}) {
		t.Fatalf("progress = %v, want [23.5 100]", seen)
	}
	if !strings.Contains(result.Output, "some log noise") {
		t.Fatalf("captured output missing log line: %q", result.Output)
	}
}

func TestRunHandlesLongOutputLines(t *testing.T) {
	binary := writeFakeUpscaler(t, `
head -c 200000 /dev/zero | tr '\0' 'x'
echo
echo "100%"
`)

	var seen []float64
	sup := &Supervisor{Binary: binary}

	done := make(chan CommandResult, 1)
	go func() {
		done <- sup.Run(context.Background(), nil, func(p float64) {
			seen = append(seen, p)
		})
	}()

	select {
	case result := <-done:
		if result.Status != 0 {
			t.Fatalf("status = %d, want 0 (%s)", result.Status, result.Reason)
		}
		if !reflect.DeepEqual(seen, []float64{100}) {
			t.Fatalf("progress = %v, want [100]", seen)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run never returned on a long output line")
	}
}

func TestRunDrainsBeyondScannerLimit(t *testing.T) {
	// Past the scanner's buffer limit the line loop stops; the stream
	// must still be drained so the process can exit.
	binary := writeFakeUpscaler(t, `
head -c 5000000 /dev/zero | tr '\0' 'x'
echo
`)

	sup := &Supervisor{Binary: binary}

	done := make(chan CommandResult, 1)
	go func() { done <- sup.Run(context.Background(), nil, nil) }()

	select {
	case result := <-done:
		if result.Status != 0 {
			t.Fatalf("status = %d, want 0 (%s)", result.Status, result.Reason)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run never returned, output stream was not drained")
	}
}

func TestRunNonZeroExit(t *testing.T) {
	binary := writeFakeUpscaler(t, "exit 3\n")

	sup := &Supervisor{Binary: binary}
	result := sup.Run(context.Background(), []string{"-i", "x"}, nil)

	if result.Status != 3 {
		t.Fatalf("status = %d, want 3", result.Status)
	}
}

func TestRunLaunchFailure(t *testing.T) {
	sup := &Supervisor{Binary: filepath.Join(t.TempDir(), "does-not-exist")}
	result := sup.Run(context.Background(), nil, nil)

	if result.Status == 0 {
		t.Fatal("expected non-zero status for a missing binary")
	}
	if result.Reason == "" {
		t.Fatal("expected a termination reason")
	}
}

func TestParseProgress(t *testing.T) {
	cases := []struct {
		line string
		want float64
		ok   bool
	}{
		{"42.50%", 42.5, true},
		{"100%", 100, true},
		{" 7% ", 7, true},
		{"no percent here", 0, false},
		{"abc%", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseProgress(tc.line)
		if ok != tc.ok || got != tc.want {
			t.Errorf("parseProgress(%q) = (%v, %v), want (%v, %v)", tc.line, got, ok, tc.want, tc.ok)
		}
	}
}
