package rendergraph

import "github.com/spaghettifunk/framegraph/engine/renderer/metadata"

// command is one recorded operation of a pass. The set of implementations is
// closed; replay switches over all of them.
type command interface {
	isCommand()
}

type beginRenderPassCmd struct {
	renderPass ResourceID
	clears     []metadata.ClearValue
}

type endRenderPassCmd struct{}

type bindRasterPipelineCmd struct {
	pipeline ResourceID
}

type bindComputePipelineCmd struct {
	pipeline ResourceID
}

type bindDescriptorCmd struct {
	descriptor ResourceID
	set        uint32
	pipeline   ResourceID
}

type drawCmd struct {
	vertexCount   uint32
	instanceCount uint32
	firstVertex   uint32
	firstInstance uint32
}

type drawIndexedCmd struct {
	indexCount    uint32
	instanceCount uint32
	firstIndex    uint32
	vertexOffset  int32
	firstInstance uint32
}

type drawMeshCmd struct {
	mesh ImportID
}

type dispatchCmd struct {
	x, y, z uint32
}

type memoryBarrierCmd struct {
	srcStage  metadata.PipelineStage
	dstStage  metadata.PipelineStage
	srcAccess metadata.Access
	dstAccess metadata.Access
}

func (beginRenderPassCmd) isCommand()     {}
func (endRenderPassCmd) isCommand()       {}
func (bindRasterPipelineCmd) isCommand()  {}
func (bindComputePipelineCmd) isCommand() {}
func (bindDescriptorCmd) isCommand()      {}
func (drawCmd) isCommand()                {}
func (drawIndexedCmd) isCommand()         {}
func (drawMeshCmd) isCommand()            {}
func (dispatchCmd) isCommand()            {}
func (memoryBarrierCmd) isCommand()       {}
