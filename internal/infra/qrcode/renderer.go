package qrcode

import (
	"fmt"

	"github.com/skip2/go-qrcode"

	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/core/port"
)

const defaultImageSize = 300

// Renderer produces PNG images for login codes using skip2/go-qrcode.
type Renderer struct {
	size int
}

// NewRenderer constructs a Renderer. size is the image edge length in
// pixels; non-positive values fall back to the default.
func NewRenderer(size int) *Renderer {
	if size <= 0 {
		size = defaultImageSize
	}
	return &Renderer{size: size}
}

// RenderPNG encodes content into a PNG image.
func (r *Renderer) RenderPNG(content string) ([]byte, error) {
	if content == "" {
		return nil, fmt.Errorf("render qr code: empty content")
	}

	png, err := qrcode.Encode(content, qrcode.Medium, r.size)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}

	return png, nil
}

var _ port.CodeRenderer = (*Renderer)(nil)
