package rendergraph

import "github.com/spaghettifunk/framegraph/engine/renderer/metadata"

// barriers returns the synchronisation p needs before its first command:
// one barrier per resource it reads, then one layout preparation per storage
// image it writes. A resource already made readable earlier in the frame is
// skipped, its single writer having run before every reader.
func (r *replayer) barriers(p *pass) []metadata.Barrier {
	var out []metadata.Barrier
	for _, read := range p.reads {
		if r.readable[read.resource] {
			continue
		}
		r.readable[read.resource] = true

		b := metadata.Barrier{
			SrcStage:  read.src.stage,
			DstStage:  read.dst.stage,
			SrcAccess: read.src.access,
			DstAccess: read.dst.access,
		}
		if read.image {
			b.Texture = r.texture(read.resource)
			b.OldLayout = read.src.layout
			b.NewLayout = read.dst.layout
		} else {
			b.Buffer = r.buffer(read.resource)
		}
		out = append(out, b)
	}
	// Cache images are shared by the frames in flight, so a storage write
	// waits for shader reads of the previous frame. Contents are discarded,
	// an execution dependency is enough.
	for _, s := range p.storage {
		out = append(out, metadata.Barrier{
			Texture:   r.texture(s.resource),
			SrcStage:  shaderRead.stage,
			DstStage:  s.stage.stage,
			DstAccess: s.stage.access,
			OldLayout: metadata.ImageLayoutUndefined,
			NewLayout: s.stage.layout,
		})
	}
	return out
}
