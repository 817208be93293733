package loaders

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

// SpirvMagic is the first word of every SPIR-V module.
const SpirvMagic uint32 = 0x07230203

var ErrInvalidSpirv = errors.New("invalid SPIR-V module")

// ShaderSource is a compiled shader read from disk.
type ShaderSource struct {
	// Name is the file name without the .spv extension, e.g. "gbuffer.vert".
	Name  string
	Path  string
	Stage metadata.ShaderStage
	Code  []byte
}

// ShaderLoader reads SPIR-V files named <name>.<stage>.spv where stage is
// vert, frag or comp.
type ShaderLoader struct{}

func (sl *ShaderLoader) Load(path string) (*ShaderSource, error) {
	name := ShaderName(path)
	stage, err := StageFromName(name)
	if err != nil {
		return nil, err
	}

	// Read SPIR-V binary file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 4 || len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: %s has size %d", ErrInvalidSpirv, path, len(data))
	}
	if magic := binary.LittleEndian.Uint32(data); magic != SpirvMagic {
		return nil, fmt.Errorf("%w: %s starts with 0x%08x", ErrInvalidSpirv, path, magic)
	}
	return &ShaderSource{
		Name:  name,
		Path:  path,
		Stage: stage,
		Code:  data,
	}, nil
}

// ShaderName strips the directory and the .spv extension from path.
func ShaderName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".spv")
}

// StageFromName derives the pipeline stage from the extension of name.
func StageFromName(name string) (metadata.ShaderStage, error) {
	switch filepath.Ext(name) {
	case ".vert":
		return metadata.ShaderStageVertex, nil
	case ".frag":
		return metadata.ShaderStageFragment, nil
	case ".comp":
		return metadata.ShaderStageCompute, nil
	}
	return 0, fmt.Errorf("cannot derive shader stage from %q", name)
}
