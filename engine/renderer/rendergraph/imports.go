package rendergraph

import (
	"github.com/google/uuid"

	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

// importedResource references a caller owned object. Exactly one field is set.
type importedResource struct {
	shader  *metadata.Shader
	buffer  *metadata.GpuBuffer
	texture *metadata.Texture
	mesh    *metadata.Mesh
}

func (r importedResource) identity() uuid.UUID {
	switch {
	case r.shader != nil:
		return r.shader.ID
	case r.buffer != nil:
		return r.buffer.ID
	case r.texture != nil:
		return r.texture.ID
	case r.mesh != nil:
		return r.mesh.ID
	}
	return uuid.Nil
}

// importResource returns the id of r, reusing the existing entry when an
// object with the same identity was imported before.
func (g *RenderGraph) importResource(r importedResource) ImportID {
	id := r.identity()
	if id == uuid.Nil {
		fatal(ErrUnknownImport, "imported object has no identity")
	}
	if existing, ok := g.importIndex[id]; ok {
		return existing
	}
	importID := ImportID(len(g.imports))
	g.imports = append(g.imports, r)
	g.importIndex[id] = importID
	return importID
}

func (g *RenderGraph) importShader(s *metadata.Shader) ImportID {
	if s == nil {
		fatal(ErrUnknownImport, "nil shader")
	}
	return g.importResource(importedResource{shader: s})
}

func (g *RenderGraph) importBuffer(b *metadata.GpuBuffer) ImportID {
	if b == nil {
		fatal(ErrUnknownImport, "nil buffer")
	}
	return g.importResource(importedResource{buffer: b})
}

func (g *RenderGraph) importTexture(t *metadata.Texture) ImportID {
	if t == nil {
		fatal(ErrUnknownImport, "nil texture")
	}
	return g.importResource(importedResource{texture: t})
}

func (g *RenderGraph) importMesh(m *metadata.Mesh) ImportID {
	if m == nil || m.VertexBuffer == nil || m.IndexBuffer == nil {
		fatal(ErrUnknownImport, "mesh without vertex or index buffer")
	}
	return g.importResource(importedResource{mesh: m})
}

func (g *RenderGraph) imported(id ImportID) importedResource {
	if int(id) >= len(g.imports) {
		fatal(ErrUnknownImport, "import %d out of range", id)
	}
	return g.imports[id]
}
