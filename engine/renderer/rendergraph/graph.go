package rendergraph

import (
	"github.com/google/uuid"

	"github.com/spaghettifunk/framegraph/engine/core"
)

type readAccess struct {
	resource ResourceID
	src      accessState
	dst      accessState
	image    bool
}

type storageWrite struct {
	resource ResourceID
	stage    accessState
}

type pass struct {
	id       PassID
	name     string
	commands []command
	reads    []readAccess
	writes   []ResourceID
	storage  []storageWrite
	// resources referenced by commands, possibly owned by other passes
	refs []ResourceID
}

func (p *pass) addRead(r readAccess) {
	for _, existing := range p.reads {
		if existing.resource == r.resource {
			return
		}
	}
	p.reads = append(p.reads, r)
}

func (p *pass) addRef(id ResourceID) {
	for _, existing := range p.refs {
		if existing == id {
			return
		}
	}
	p.refs = append(p.refs, id)
}

// RenderGraph collects the passes of one frame. It is built, executed once
// and dropped; physical objects outlive it in the RenderGraphCache.
type RenderGraph struct {
	cache *RenderGraphCache

	resources []virtualResource
	owners    []PassID

	imports     []importedResource
	importIndex map[uuid.UUID]ImportID

	passes   []*pass
	nextPass PassID
	open     int
	executed bool
}

func New(cache *RenderGraphCache) *RenderGraph {
	return &RenderGraph{
		cache:       cache,
		importIndex: make(map[uuid.UUID]ImportID),
	}
}

// AddPass opens a new pass. The pass is added to the graph when Finish is
// called on the returned builder.
func (g *RenderGraph) AddPass(name string) *PassBuilder {
	if g.executed {
		fatal(ErrGraphExecuted, "cannot add pass %q", name)
	}
	p := &pass{
		id:   g.nextPass,
		name: name,
	}
	g.nextPass++
	g.open++
	return &PassBuilder{graph: g, pass: p}
}

// Record builds a pass with fn. The pass is added to the graph when fn
// returns, including early returns and panics.
func (g *RenderGraph) Record(name string, fn func(pb *PassBuilder)) {
	pb := g.AddPass(name)
	defer pb.Finish()
	fn(pb)
}

func (g *RenderGraph) addResource(owner PassID, name string, desc interface{}) ResourceID {
	id := ResourceID(len(g.resources))
	g.resources = append(g.resources, virtualResource{name: name, desc: desc})
	g.owners = append(g.owners, owner)
	return id
}

func (g *RenderGraph) resource(id ResourceID) *virtualResource {
	if int(id) >= len(g.resources) {
		fatal(ErrInvalidResource, "resource %d out of range", id)
	}
	return &g.resources[id]
}

func (g *RenderGraph) attachment(id ResourceID) *attachmentResource {
	r := g.resource(id)
	a, ok := r.desc.(*attachmentResource)
	if !ok {
		fatal(ErrInvalidResource, "resource %q is a %s, not an attachment", r.name, kindName(r.desc))
	}
	return a
}

func (g *RenderGraph) buffer(id ResourceID) *bufferResource {
	r := g.resource(id)
	b, ok := r.desc.(*bufferResource)
	if !ok {
		fatal(ErrInvalidResource, "resource %q is a %s, not a buffer", r.name, kindName(r.desc))
	}
	return b
}

func (g *RenderGraph) descriptorSet(id ResourceID) *descriptorSetResource {
	r := g.resource(id)
	d, ok := r.desc.(*descriptorSetResource)
	if !ok {
		fatal(ErrInvalidResource, "resource %q is a %s, not a descriptor set", r.name, kindName(r.desc))
	}
	return d
}

func (g *RenderGraph) isPipeline(id ResourceID) bool {
	switch g.resource(id).desc.(type) {
	case *rasterPipelineResource, *computePipelineResource:
		return true
	}
	return false
}

// Execute resolves the passes needed for the output, allocates their
// physical resources and records them into ctx. The graph cannot be used
// afterwards. Malformed graphs panic; an error is only returned when device
// fails to create an object, in which case nothing has been recorded.
func (g *RenderGraph) Execute(ctx GraphicsContext, device GraphicsDevice) error {
	if g.executed {
		fatal(ErrGraphExecuted, "execute called twice")
	}
	g.executed = true
	if g.open > 0 {
		fatal(ErrUnfinishedPass, "%d pass(es) still open", g.open)
	}

	order := g.resolve()
	physical, err := g.allocate(ctx, device, order)
	if err != nil {
		core.LogError("render graph allocation failed: %s", err)
		return err
	}

	r := newReplayer(g, physical, ctx)
	for _, p := range order {
		r.replay(p)
	}
	return nil
}
