package metadata

import "github.com/google/uuid"

/**
 * @brief The pixel formats attachments and textures can be created with.
 */
type TextureFormat int

const (
	TextureFormatUndefined TextureFormat = iota
	TextureFormatRGB8
	TextureFormatRGBA8UNorm
	TextureFormatRGBA8SRGB
	TextureFormatBGRA8UNorm
	TextureFormatRGBA16Float
	TextureFormatRGBA32Float
	TextureFormatR32Float
	TextureFormatDepth
)

func (f TextureFormat) String() string {
	switch f {
	case TextureFormatRGB8:
		return "RGB8"
	case TextureFormatRGBA8UNorm:
		return "RGBA8UNorm"
	case TextureFormatRGBA8SRGB:
		return "RGBA8SRGB"
	case TextureFormatBGRA8UNorm:
		return "BGRA8UNorm"
	case TextureFormatRGBA16Float:
		return "RGBA16Float"
	case TextureFormatRGBA32Float:
		return "RGBA32Float"
	case TextureFormatR32Float:
		return "R32Float"
	case TextureFormatDepth:
		return "Depth"
	}
	return "Undefined"
}

// IsDepth reports whether the format carries depth data.
func (f TextureFormat) IsDepth() bool {
	return f == TextureFormatDepth
}

/** @brief Holds bit flags describing how a texture will be used. */
type TextureUsage uint32

const (
	/** @brief Can be bound as a color or depth attachment of a render pass. */
	TextureUsageAttachment TextureUsage = 1 << iota
	/** @brief Can be sampled from a shader. */
	TextureUsageSampled
	/** @brief Can be written from a shader as a storage image. */
	TextureUsageStorage
	/** @brief Can be the destination of a transfer. */
	TextureUsageTransferDst
)

func (u TextureUsage) Has(flag TextureUsage) bool {
	return u&flag == flag
}

/**
 * @brief Represents an image living on the GPU together with its view.
 */
type Texture struct {
	/** @brief Identity used to deduplicate imports and key caches. */
	ID uuid.UUID
	/** @brief Optional debug name. */
	Name   string
	Width  uint32
	Height uint32
	Format TextureFormat
	Usage  TextureUsage
	/** @brief Backend specific data (image, view, memory). */
	InternalData interface{}
}
