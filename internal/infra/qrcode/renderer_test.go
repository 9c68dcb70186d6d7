package qrcode

import (
	"bytes"
	"testing"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestRenderPNG(t *testing.T) {
	renderer := NewRenderer(256)

	png, err := renderer.RenderPNG("brewingmachine://login?token=abc123")
	if err != nil {
		t.Fatalf("RenderPNG returned error: %v", err)
	}

	if !bytes.HasPrefix(png, pngMagic) {
		t.Fatalf("output is not a PNG, first bytes: %x", png[:4])
	}
}

func TestRenderPNGEmptyContent(t *testing.T) {
	renderer := NewRenderer(0)

	if _, err := renderer.RenderPNG(""); err == nil {
		t.Fatal("expected error for empty content")
	}
}
