package imgutil

import (
	"image"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// IsImageFile reports whether path is a regular file containing a
// supported image (PNG, JPEG, or WebP). Directories and unreadable
// files are never images.
func IsImageFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	kind, err := SniffFile(path)
	return err == nil && kind != KindUnknown
}

// Identifier returns the detected format identifier ("png", "jpeg",
// "webp") of the image at path, or "" if it is not a supported image.
func Identifier(path string) string {
	kind, err := SniffFile(path)
	if err != nil || kind == KindUnknown {
		return ""
	}
	return kind.String()
}

// ImageContents walks dir recursively and returns every supported image
// found at any depth. Hidden entries are skipped. The listing is
// recomputed on every call; read errors are logged and the affected
// subtree contributes nothing.
func ImageContents(dir string) []string {
	var images []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			slog.Warn("directory walk failed", "path", path, "error", walkErr)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") && path != dir {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if IsImageFile(path) {
			images = append(images, path)
		}
		return nil
	})
	if err != nil {
		slog.Warn("directory walk aborted", "dir", dir, "error", err)
	}

	return images
}

// Dimensions returns the pixel size of the image at path.
func Dimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// FileSize returns the byte size of path, or 0 when it cannot be read.
func FileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
