package port

// CodeRenderer turns opaque content into a scannable image. Stateless;
// rendering failures are non-fatal to session creation.
type CodeRenderer interface {
	RenderPNG(content string) ([]byte, error)
}
