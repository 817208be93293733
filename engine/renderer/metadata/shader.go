package metadata

import "github.com/google/uuid"

/**
 * @brief The pipeline stage a shader module is compiled for.
 */
type ShaderStage int

const (
	ShaderStageVertex ShaderStage = iota
	ShaderStageFragment
	ShaderStageCompute
)

func (s ShaderStage) String() string {
	switch s {
	case ShaderStageVertex:
		return "vertex"
	case ShaderStageFragment:
		return "fragment"
	case ShaderStageCompute:
		return "compute"
	}
	return "unknown"
}

/**
 * @brief Represents a compiled shader module.
 */
type Shader struct {
	/** @brief Identity of this compilation. A reload produces a new identity. */
	ID    uuid.UUID
	Name  string
	Stage ShaderStage
	/** @brief Backend specific data (shader module). */
	InternalData interface{}
}
