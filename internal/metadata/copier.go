// Package metadata propagates EXIF from source images to their upscaled
// outputs. The upscaler binary writes fresh files that carry no
// metadata, so after a successful run the original's EXIF block is
// spliced into the output container.
package metadata

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	exif "github.com/dsoprea/go-exif/v3"

	"hipixel/pkg/imgutil"
)

// Copier implements the upscale.MetadataCopier collaborator.
type Copier struct {
	Log *slog.Logger
}

// CopyIfDifferent copies src's EXIF block into dst unless dst already
// carries an identical one. It reports whether a copy happened. Sources
// without EXIF and WebP destinations are no-ops.
func (c *Copier) CopyIfDifferent(src, dst string) (bool, error) {
	srcBlob, err := extractExif(src)
	if err != nil {
		return false, fmt.Errorf("read source metadata: %w", err)
	}
	if srcBlob == nil {
		return false, nil
	}

	// Only propagate blocks that actually parse as EXIF.
	tags, _, err := exif.GetFlatExifData(srcBlob, nil)
	if err != nil {
		return false, fmt.Errorf("parse source metadata: %w", err)
	}
	if len(tags) == 0 {
		return false, nil
	}

	if dstBlob, err := extractExif(dst); err == nil && bytes.Equal(srcBlob, dstBlob) {
		return false, nil
	}

	kind, err := imgutil.SniffFile(dst)
	if err != nil {
		return false, fmt.Errorf("sniff output: %w", err)
	}

	switch kind {
	case imgutil.KindJPEG:
		err = rewriteWith(dst, func(in *os.File, out *os.File) error {
			return spliceJPEG(in, out, srcBlob)
		})
	case imgutil.KindPNG:
		err = rewriteWith(dst, func(in *os.File, out *os.File) error {
			return splicePNG(in, out, srcBlob)
		})
	default:
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("write output metadata: %w", err)
	}

	c.log().Debug("metadata propagated", "source", src, "output", dst, "tags", len(tags))
	return true, nil
}

// extractExif returns the bounded TIFF-format EXIF block of a JPEG or
// PNG file, or nil when the file carries none.
func extractExif(path string) ([]byte, error) {
	kind, err := imgutil.SniffFile(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch kind {
	case imgutil.KindJPEG:
		return extractJPEGExif(f)
	case imgutil.KindPNG:
		return extractPNGExif(f)
	default:
		return nil, nil
	}
}

// rewriteWith rewrites path through fn into a temp file in the same
// directory, then swaps it into place.
func rewriteWith(path string, fn func(in *os.File, out *os.File) error) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "hipixel-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(info.Mode()); err != nil {
		tmp.Close()
		return err
	}

	if err := fn(in, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return replaceFile(tmp.Name(), path)
}

func replaceFile(tmpPath, destPath string) error {
	if err := os.Rename(tmpPath, destPath); err == nil {
		return nil
	}
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Rename(tmpPath, destPath)
}

func (c *Copier) log() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.Default()
}
