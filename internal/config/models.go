package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"hipixel/internal/upscale"
)

// Built-in model ids shipped alongside the upscaler binary.
const (
	ModelStandard     = "upscayl-standard-4x"
	ModelLite         = "upscayl-lite-4x"
	ModelHighFidelity = "high-fidelity-4x"
	ModelDigitalArt   = "digital-art-4x"
)

// BuiltInModels lists the bundled model ids.
func BuiltInModels() []string {
	return []string{ModelStandard, ModelLite, ModelHighFidelity, ModelDigitalArt}
}

// CustomModels scans dir for <name>.param/<name>.bin pairs and returns a
// selectable model per complete pair. An unreadable directory yields
// nothing.
func CustomModels(dir string) []upscale.Model {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	params := make(map[string]bool)
	bins := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".param"):
			params[strings.TrimSuffix(name, ".param")] = true
		case strings.HasSuffix(name, ".bin"):
			bins[strings.TrimSuffix(name, ".bin")] = true
		}
	}

	var names []string
	for name := range params {
		if bins[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	models := make([]upscale.Model, 0, len(names))
	for _, name := range names {
		models = append(models, upscale.Custom(name, dir))
	}
	return models
}

// AbsDir normalizes a user-supplied directory path for stable
// whitelist and settings keys.
func AbsDir(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
