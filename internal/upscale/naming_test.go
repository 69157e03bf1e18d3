package upscale

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func baseOptions() Options {
	return Options{
		SaveImageAs: FormatPNG,
		Scale:       4,
		Model:       BuiltIn("upscayl-standard-4x"),
	}
}

func TestOutputPathDeterministic(t *testing.T) {
	opts := baseOptions()

	got := OutputPath("a/b/cat.png", "", opts)
	want := filepath.Join("a", "b", "cat_hipixel_4x_upscayl-standard-4x.png")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	if again := OutputPath("a/b/cat.png", "", opts); again != got {
		t.Fatalf("path is not deterministic: %q vs %q", again, got)
	}
}

func TestOutputPathDoublePassSquaresScale(t *testing.T) {
	opts := baseOptions()
	opts.DoublePass = true

	got := OutputPath("a/b/cat.png", "", opts)
	want := filepath.Join("a", "b", "cat_hipixel_16x_upscayl-standard-4x.png")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestOutputPathCustomModelName(t *testing.T) {
	opts := baseOptions()
	opts.Model = Custom("my-net", "/models/custom")

	got := OutputPath("cat.png", "", opts)
	if got != "cat_hipixel_4x_my-net.png" {
		t.Fatalf("got %q", got)
	}
}

func TestOutputPathFlattensLooseFilesIntoOutputDir(t *testing.T) {
	opts := baseOptions()
	opts.OutputDir = "/dest"

	got := OutputPath("/src/deep/cat.png", "", opts)
	want := filepath.Join("/dest", "cat_hipixel_4x_upscayl-standard-4x.png")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestOutputPathPreservesStructureForFolderBatches(t *testing.T) {
	opts := baseOptions()
	opts.OutputDir = "/dest"

	got := OutputPath("/src/photos/sub/cat.png", "/src/photos", opts)
	want := filepath.Join("/dest", "photos", "sub", "cat_hipixel_4x_upscayl-standard-4x.png")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestOutputPathWithoutOutputDirIgnoresOrigin(t *testing.T) {
	opts := baseOptions()

	got := OutputPath("/src/photos/sub/cat.png", "/src/photos", opts)
	want := filepath.Join("/src", "photos", "sub", "cat_hipixel_4x_upscayl-standard-4x.png")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFormatExtension(t *testing.T) {
	if got := FormatExtension("x.png", FormatPNG); got != "png" {
		t.Fatalf("png: got %q", got)
	}
	if got := FormatExtension("x.png", FormatJPG); got != "jpeg" {
		t.Fatalf("jpg: got %q", got)
	}
	if got := FormatExtension("x.png", FormatWebP); got != "webp" {
		t.Fatalf("webp: got %q", got)
	}
}

func TestFormatExtensionOriginalSniffsSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "sample.dat")

	f, err := os.Create(src)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, 1, 1))); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if got := FormatExtension(src, FormatOriginal); got != "png" {
		t.Fatalf("got %q, want png", got)
	}

	// Undetectable sources fall back to png.
	if got := FormatExtension(filepath.Join(dir, "missing.bin"), FormatOriginal); got != "png" {
		t.Fatalf("fallback: got %q, want png", got)
	}
}
