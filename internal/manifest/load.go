package manifest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Format identifies a manifest file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCUE  Format = "cue"
)

// Error codes reported by LoadError.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeUnsupported = "E003" // Unsupported file extension
	ErrCodeLoadFailed  = "E004" // Read or decode failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE schema unification failed
	ErrCodeInvalid     = "E201" // Manifest violates a structural invariant
)

// LoadError describes why a manifest could not be loaded.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
	Err     error
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// FormatFromPath infers the manifest format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".cue":
		return FormatCUE, nil
	}
	return "", &LoadError{Code: ErrCodeUnsupported, Message: fmt.Sprintf("unsupported manifest extension %q", filepath.Ext(path))}
}

// Load reads, decodes and validates the manifest at path.
func Load(path string) (*Build, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("manifest not found: %s", path), Err: err}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading manifest: %v", err), Err: err}
	}
	return parse(data, format, path)
}

// Parse decodes and validates a manifest document.
func Parse(data []byte, format Format) (*Build, error) {
	return parse(data, format, "manifest."+string(format))
}

func parse(data []byte, format Format, filename string) (*Build, error) {
	var b Build
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&b); err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("decoding JSON: %v", err), Err: err}
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true) // Reject unknown fields
		if err := dec.Decode(&b); err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("decoding YAML: %v", err), Err: err}
		}
	case FormatCUE:
		if err := decodeCUE(data, filename, &b); err != nil {
			return nil, err
		}
	default:
		return nil, &LoadError{Code: ErrCodeUnsupported, Message: fmt.Sprintf("unsupported manifest format %q", format)}
	}

	if err := b.normalize(); err != nil {
		return nil, &LoadError{Code: ErrCodeInvalid, Message: err.Error(), Err: err}
	}
	if err := b.Validate(); err != nil {
		return nil, &LoadError{Code: ErrCodeInvalid, Message: err.Error(), Err: err}
	}
	return &b, nil
}

// decodeCUE unifies the document with the embedded #Manifest schema and
// decodes the concrete result.
func decodeCUE(data []byte, filename string, out *Build) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("compiling schema: %v", err), Err: err}
	}
	def := schema.LookupPath(cue.ParsePath("#Manifest"))

	value := ctx.CompileBytes(data, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return cueLoadError(ErrCodeLoadFailed, "compiling CUE", err)
	}

	unified := def.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return cueLoadError(ErrCodeBuildFailed, "validating CUE", err)
	}
	if err := unified.Decode(out); err != nil {
		return cueLoadError(ErrCodeBuildFailed, "decoding CUE", err)
	}
	return nil
}

// cueLoadError converts a CUE error to a LoadError carrying the position of
// the first reported problem.
func cueLoadError(code, what string, err error) *LoadError {
	le := &LoadError{Code: code, Message: fmt.Sprintf("%s: %v", what, err), Err: err}
	if list := cueerrors.Errors(err); len(list) > 0 {
		le.Pos = list[0].Position()
		le.Message = fmt.Sprintf("%s: %s", what, list[0].Error())
	}
	return le
}
