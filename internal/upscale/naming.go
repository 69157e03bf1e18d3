package upscale

import (
	"fmt"
	"path/filepath"
	"strings"

	"hipixel/pkg/imgutil"
)

const brandTag = "hipixel"

// FormatExtension resolves the literal extension written for source under
// format f. The logical "jpg" format writes "jpeg" files; "original"
// reuses the source's detected identifier, defaulting to png.
func FormatExtension(source string, f Format) string {
	switch f {
	case FormatPNG:
		return "png"
	case FormatJPG:
		return "jpeg"
	case FormatWebP:
		return "webp"
	default:
		if id := imgutil.Identifier(source); id != "" {
			return id
		}
		return "png"
	}
}

// OutputPath computes the deterministic output location for source.
//
// originDir is the originally dropped directory for items expanded from a
// folder batch, or "" for loose files. When an output directory override
// is set, loose files land flat in that directory while folder-batch
// items keep their relative structure under it (including the dropped
// folder's own name). Identical (source, options) always yields the
// identical path, which the pipeline relies on for its skip-if-exists
// check.
func OutputPath(source, originDir string, opts Options) string {
	ext := FormatExtension(source, opts.SaveImageAs)

	dir := filepath.Dir(source)
	if opts.OutputDir != "" {
		if originDir == "" {
			dir = opts.OutputDir
		} else if rel, err := filepath.Rel(filepath.Dir(originDir), source); err == nil && !strings.HasPrefix(rel, "..") {
			dir = filepath.Dir(filepath.Join(opts.OutputDir, rel))
		} else {
			dir = opts.OutputDir
		}
	}

	base := filepath.Base(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	postfix := fmt.Sprintf("_%s_%dx_%s", brandTag, opts.EffectiveScale(), opts.Model.Name())

	return filepath.Join(dir, stem+postfix+"."+ext)
}
