package upscale

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// copyScript parses -i/-o out of the argument vector, emits progress,
// and copies input to output like the real binary would.
const copyScript = `
in=""; out=""
while [ $# -gt 0 ]; do
  case "$1" in
    -i) in="$2"; shift 2;;
    -o) out="$2"; shift 2;;
    *) shift;;
  esac
done
echo "50.00%"
cp "$in" "$out" || exit 1
echo "100.00%"
`

func pipelineOptions(binary string) Options {
	return Options{
		BinaryPath:  binary,
		SaveImageAs: FormatPNG,
		Scale:       4,
		Model:       BuiltIn("upscayl-standard-4x"),
		Overwrite:   true,
	}
}

func newTestPipeline(t *testing.T, script string) *Pipeline {
	t.Helper()
	return &Pipeline{
		Supervisor: &Supervisor{Binary: writeFakeUpscaler(t, script)},
		ScratchDir: t.TempDir(),
	}
}

func TestProcessSingleSuccess(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "cat.png")
	if err := os.WriteFile(src, []byte("fake image bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := newTestPipeline(t, copyScript)

	var stages []int
	out, err := p.Process(context.Background(), src, "", pipelineOptions(p.Supervisor.Binary), func(_ float64, stage int) {
		stages = append(stages, stage)
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	want := filepath.Join(dir, "cat_hipixel_4x_upscayl-standard-4x.png")
	if out != want {
		t.Fatalf("output = %q, want %q", out, want)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("output file missing: %v", err)
	}
	for _, stage := range stages {
		if stage != 1 {
			t.Fatalf("single pass reported stage %d", stage)
		}
	}
}

func TestProcessSingleSkipsExistingOutput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "cat.png")
	if err := os.WriteFile(src, []byte("source"), 0o644); err != nil {
		t.Fatal(err)
	}

	marker := filepath.Join(t.TempDir(), "invoked")
	p := newTestPipeline(t, fmt.Sprintf("echo run >> %q\n", marker))

	opts := pipelineOptions(p.Supervisor.Binary)
	opts.Overwrite = false

	existing := OutputPath(src, "", opts)
	if err := os.WriteFile(existing, []byte("previous result"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := p.Process(context.Background(), src, "", opts, nil)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out != existing {
		t.Fatalf("output = %q, want existing %q", out, existing)
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Fatal("subprocess was invoked despite existing output")
	}
}

func TestProcessManualSaveHoldsResult(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "cat.png")
	if err := os.WriteFile(src, []byte("source"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := newTestPipeline(t, copyScript)
	p.HoldDir = filepath.Join(t.TempDir(), "held")

	opts := pipelineOptions(p.Supervisor.Binary)
	opts.ManualSave = true

	out, err := p.Process(context.Background(), src, "", opts, nil)
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	want := filepath.Join(p.HoldDir, "cat_hipixel_4x_upscayl-standard-4x.png")
	if out != want {
		t.Fatalf("output = %q, want held path %q", out, want)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("held file missing: %v", err)
	}

	computed := OutputPath(src, "", opts)
	if _, err := os.Stat(computed); !os.IsNotExist(err) {
		t.Fatal("manual save must not place the result at the computed path")
	}
}

func TestProcessSingleFailure(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "cat.png")
	if err := os.WriteFile(src, []byte("source"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := newTestPipeline(t, "exit 1\n")

	if _, err := p.Process(context.Background(), src, "", pipelineOptions(p.Supervisor.Binary), nil); err == nil {
		t.Fatal("expected failure")
	}
}

func TestProcessDoubleSuccess(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "cat.png")
	if err := os.WriteFile(src, []byte("source"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := newTestPipeline(t, copyScript)

	opts := pipelineOptions(p.Supervisor.Binary)
	opts.DoublePass = true

	var stages []int
	out, err := p.Process(context.Background(), src, "", opts, func(_ float64, stage int) {
		stages = append(stages, stage)
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	want := filepath.Join(dir, "cat_hipixel_16x_upscayl-standard-4x.png")
	if out != want {
		t.Fatalf("output = %q, want %q", out, want)
	}
	if !containsStage(stages, 1) || !containsStage(stages, 2) {
		t.Fatalf("expected both stages, got %v", stages)
	}
	assertScratchEmpty(t, p.ScratchDir)
}

func TestProcessDoublePassOneFailureCleansUp(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "cat.png")
	if err := os.WriteFile(src, []byte("source"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := newTestPipeline(t, "exit 1\n")

	opts := pipelineOptions(p.Supervisor.Binary)
	opts.DoublePass = true

	if _, err := p.Process(context.Background(), src, "", opts, nil); err == nil {
		t.Fatal("expected failure")
	}
	assertScratchEmpty(t, p.ScratchDir)
}

func TestProcessDoublePassTwoFailureCleansUp(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "cat.png")
	if err := os.WriteFile(src, []byte("source"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Pass 1 reads the original source; pass 2 reads the hipixel-
	// prefixed intermediate. Fail only the second.
	failSecond := `
in=""; out=""
while [ $# -gt 0 ]; do
  case "$1" in
    -i) in="$2"; shift 2;;
    -o) out="$2"; shift 2;;
    *) shift;;
  esac
done
case "$in" in
  *hipixel-*) exit 1;;
esac
cp "$in" "$out"
`
	p := newTestPipeline(t, failSecond)

	opts := pipelineOptions(p.Supervisor.Binary)
	opts.DoublePass = true

	if _, err := p.Process(context.Background(), src, "", opts, nil); err == nil {
		t.Fatal("expected failure")
	}
	assertScratchEmpty(t, p.ScratchDir)

	final := OutputPath(src, "", opts)
	if _, err := os.Stat(final); !os.IsNotExist(err) {
		t.Fatal("no final output should exist after a pass-2 failure")
	}
}

func TestProcessDoubleSkipsExistingOutput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "cat.png")
	if err := os.WriteFile(src, []byte("source"), 0o644); err != nil {
		t.Fatal(err)
	}

	marker := filepath.Join(t.TempDir(), "invoked")
	p := newTestPipeline(t, fmt.Sprintf("echo run >> %q\n", marker))

	opts := pipelineOptions(p.Supervisor.Binary)
	opts.DoublePass = true
	opts.Overwrite = false

	existing := OutputPath(src, "", opts)
	if err := os.WriteFile(existing, []byte("previous"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := p.Process(context.Background(), src, "", opts, nil)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out != existing {
		t.Fatalf("output = %q, want %q", out, existing)
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Fatal("subprocess was invoked despite existing output")
	}
}

func containsStage(stages []int, want int) bool {
	for _, s := range stages {
		if s == want {
			return true
		}
	}
	return false
}

func assertScratchEmpty(t *testing.T, scratch string) {
	t.Helper()

	entries, err := os.ReadDir(scratch)
	if err != nil {
		t.Fatalf("read scratch dir: %v", err)
	}
	var leftover []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "hipixel-") {
			leftover = append(leftover, e.Name())
		}
	}
	if len(leftover) != 0 {
		t.Fatalf("intermediate files left behind: %v", leftover)
	}
}
