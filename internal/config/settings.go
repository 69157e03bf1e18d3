// Package config holds the persisted ambient settings and resolves them
// into the immutable per-batch options snapshot.
package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"hipixel/internal/upscale"
)

const appDirName = "hipixel"

// Settings is the ambient configuration stored on disk. Every field has
// a default, and every field can be overridden per batch from the
// command line before resolution.
type Settings struct {
	SaveImageAs              string `json:"saveImageAs"`
	ImageScale               int    `json:"imageScale"`
	ImageCompression         int    `json:"imageCompression"`
	DelegateCompression      bool   `json:"delegateCompression"`
	EnableSaveOutputFolder   bool   `json:"enableSaveOutputFolder"`
	SaveOutputFolder         string `json:"saveOutputFolder"`
	OverwritePreviousUpscale bool   `json:"overwritePreviousUpscale"`
	GPUID                    string `json:"gpuID"`
	CustomTileSize           int    `json:"customTileSize"`
	Model                    string `json:"model"`
	CustomModelsFolder       string `json:"customModelsFolder"`
	DoubleUpscale            bool   `json:"doubleUpscale"`
	EnableTTA                bool   `json:"enableTTA"`
	ManualSaveControl        bool   `json:"manualSaveControl"`
	Notification             bool   `json:"notification"`
	BinaryPath               string `json:"binaryPath"`
	ModelsDir                string `json:"modelsDir"`
}

// Default returns the settings used when nothing is stored yet.
func Default() Settings {
	return Settings{
		SaveImageAs:  string(upscale.FormatPNG),
		ImageScale:   4,
		Model:        ModelStandard,
		Notification: true,
		BinaryPath:   "upscayl-bin",
	}
}

// DefaultPath is the standard settings file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appDirName, "settings.json"), nil
}

// MonitorStatePath is where the watched-directory list is persisted.
func MonitorStatePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appDirName, "monitors.json"), nil
}

// ThumbnailDir is the preview cache location.
func ThumbnailDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appDirName, "thumbnails"), nil
}

// HoldDir is where manually saved results wait for placement.
func HoldDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appDirName, "held"), nil
}

// Load reads path, filling zero-valued fields with defaults. A missing
// file yields the defaults.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Default(), err
	}

	s := Default()
	if err := json.Unmarshal(data, &s); err != nil {
		return Default(), err
	}
	return s.withDefaults(), nil
}

// Save writes the settings to path.
func (s Settings) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (s Settings) withDefaults() Settings {
	def := Default()
	if s.SaveImageAs == "" {
		s.SaveImageAs = def.SaveImageAs
	}
	if s.ImageScale <= 0 {
		s.ImageScale = def.ImageScale
	}
	if s.Model == "" {
		s.Model = def.Model
	}
	if s.BinaryPath == "" {
		s.BinaryPath = def.BinaryPath
	}
	return s
}

// Resolve produces the per-batch options snapshot: ambient settings
// first, already-applied command-line overrides on top. The model name
// is matched against discovered custom models before falling back to a
// built-in id.
func (s Settings) Resolve() upscale.Options {
	s = s.withDefaults()

	opts := upscale.Options{
		BinaryPath:          s.BinaryPath,
		ModelsDir:           s.ModelsDir,
		SaveImageAs:         upscale.Format(s.SaveImageAs),
		Scale:               s.ImageScale,
		Compression:         s.ImageCompression,
		DelegateCompression: s.DelegateCompression,
		Overwrite:           s.OverwritePreviousUpscale,
		GPUID:               s.GPUID,
		TileSize:            s.CustomTileSize,
		DoublePass:          s.DoubleUpscale,
		TTA:                 s.EnableTTA,
		ManualSave:          s.ManualSaveControl,
	}

	if s.EnableSaveOutputFolder && s.SaveOutputFolder != "" {
		opts.OutputDir = s.SaveOutputFolder
	}

	opts.Model = upscale.BuiltIn(s.Model)
	if s.CustomModelsFolder != "" {
		for _, m := range CustomModels(s.CustomModelsFolder) {
			if m.Name() == s.Model {
				opts.Model = m
				break
			}
		}
	}

	return opts
}
