// Package thumbnail writes small preview images for ledger display.
package thumbnail

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	_ "image/jpeg"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"
)

const maxEdge = 128

// Cache renders previews into a single directory, named after the
// source file. The directory is created lazily and removed wholesale
// when the job history is cleared.
type Cache struct {
	Dir string
}

// Generate writes a PNG preview of source bounded to 128px and returns
// its path.
func (c *Cache) Generate(source string) (string, error) {
	f, err := os.Open(source)
	if err != nil {
		return "", err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return "", err
	}

	thumb := resize.Thumbnail(maxEdge, maxEdge, img, resize.Lanczos3)

	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return "", err
	}

	base := filepath.Base(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	path := filepath.Join(c.Dir, stem+".png")

	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := png.Encode(out, thumb); err != nil {
		out.Close()
		os.Remove(path)
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}

	return path, nil
}
