package upscale

// Format is the logical output format selection.
type Format string

const (
	FormatPNG      Format = "png"
	FormatJPG      Format = "jpg"
	FormatWebP     Format = "webp"
	FormatOriginal Format = "original"
)

// Model selects the network handed to the upscaler binary: one of the
// bundled models, or a user-provided one living in its own directory.
type Model struct {
	name string
	dir  string
}

// BuiltIn returns a bundled model selection by id, e.g. "upscayl-standard-4x".
func BuiltIn(id string) Model {
	return Model{name: id}
}

// Custom returns a user model selection. dir holds the .param/.bin pair.
func Custom(name, dir string) Model {
	return Model{name: name, dir: dir}
}

// Name is the value passed to the binary's -n flag.
func (m Model) Name() string {
	return m.name
}

func (m Model) IsBuiltIn() bool {
	return m.dir == ""
}

// Dir is the model directory passed to -m, falling back to the bundled
// models directory for built-in models.
func (m Model) Dir(bundled string) string {
	if m.dir != "" {
		return m.dir
	}
	return bundled
}

// Options is a fully-resolved configuration snapshot for one batch. It is
// produced once at the batch boundary and never mutated afterwards; no
// field is "unset" by the time paths or arguments are constructed from it.
type Options struct {
	BinaryPath string
	ModelsDir  string

	SaveImageAs         Format
	Scale               int
	Compression         int // 0-99, the binary's own -c scale
	DelegateCompression bool
	OutputDir           string // "" keeps output next to the source
	Overwrite           bool
	GPUID               string
	TileSize            int
	Model               Model
	DoublePass          bool
	TTA                 bool
	ManualSave          bool // hold results instead of placing them at the computed path
}

// EffectiveScale is the factor embedded in output naming and size math:
// the base scale, squared when double-pass is enabled.
func (o Options) EffectiveScale() int {
	if o.DoublePass {
		return o.Scale * o.Scale
	}
	return o.Scale
}
