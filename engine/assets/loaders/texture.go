package loaders

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageData holds tightly packed RGBA8 pixels, rows top to bottom unless
// flipped on load.
type ImageData struct {
	Name   string
	Width  uint32
	Height uint32
	Pixels []byte
}

// TextureLoader decodes png, jpeg, bmp, tiff and webp files.
type TextureLoader struct {
	FlipY bool
}

func (tl *TextureLoader) Load(path string) (*ImageData, error) {
	// Open and decode the texture image file
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != 4*bounds.Dx() || len(rgba.Pix) != 4*bounds.Dx()*bounds.Dy() {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}

	pixels := rgba.Pix
	if tl.FlipY {
		pixels = flipRows(pixels, 4*bounds.Dx(), bounds.Dy())
	}

	return &ImageData{
		Name:   fmt.Sprintf("%s(%s)", filepath.Base(path), format),
		Width:  uint32(bounds.Dx()),
		Height: uint32(bounds.Dy()),
		Pixels: pixels,
	}, nil
}

func flipRows(pixels []byte, stride, rows int) []byte {
	out := make([]byte, len(pixels))
	for y := 0; y < rows; y++ {
		copy(out[y*stride:(y+1)*stride], pixels[(rows-1-y)*stride:(rows-y)*stride])
	}
	return out
}
