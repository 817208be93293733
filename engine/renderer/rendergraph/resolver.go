package rendergraph

import (
	"strings"

	"github.com/spaghettifunk/framegraph/engine/core"
)

type visitState int

const (
	unvisited visitState = iota
	visiting
	visited
)

// dependencies returns the passes p depends on, in first-use order: the
// writers of everything it reads, then the owners of resources its commands
// reference.
func (g *RenderGraph) dependencies(p *pass) []PassID {
	var deps []PassID
	add := func(id PassID) {
		if id == p.id {
			return
		}
		for _, d := range deps {
			if d == id {
				return
			}
		}
		deps = append(deps, id)
	}
	for _, r := range p.reads {
		if !g.resources[r.resource].written {
			fatal(ErrUnwrittenResource, "pass %q reads %q", p.name, g.resources[r.resource].name)
		}
		add(g.owners[r.resource])
	}
	for _, id := range p.refs {
		add(g.owners[id])
	}
	return deps
}

// resolve returns the passes the output render pass depends on, producers
// before consumers. Passes the output does not depend on are dropped.
func (g *RenderGraph) resolve() []*pass {
	var outputs []ResourceID
	for id, r := range g.resources {
		if _, ok := r.desc.(outputRenderPassResource); ok {
			outputs = append(outputs, ResourceID(id))
		}
	}
	switch len(outputs) {
	case 0:
		fatal(ErrNoOutputRenderPass, "%d pass(es) recorded", len(g.passes))
	case 1:
	default:
		names := make([]string, 0, len(outputs))
		for _, id := range outputs {
			names = append(names, g.passByID(g.owners[id]).name)
		}
		fatal(ErrMultipleOutputRenderPasses, "declared by passes %s", strings.Join(names, ", "))
	}

	state := make(map[PassID]visitState, len(g.passes))
	order := make([]*pass, 0, len(g.passes))
	var stack []string

	var visit func(p *pass)
	visit = func(p *pass) {
		state[p.id] = visiting
		stack = append(stack, p.name)
		for _, dep := range g.dependencies(p) {
			switch state[dep] {
			case visiting:
				fatal(ErrCyclicGraph, "%s -> %s", strings.Join(stack, " -> "), g.passByID(dep).name)
			case unvisited:
				visit(g.passByID(dep))
			}
		}
		stack = stack[:len(stack)-1]
		state[p.id] = visited
		order = append(order, p)
	}
	visit(g.passByID(g.owners[outputs[0]]))

	core.LogDebug("render graph resolved %d of %d pass(es)", len(order), len(g.passes))
	return order
}

func (g *RenderGraph) passByID(id PassID) *pass {
	for _, p := range g.passes {
		if p.id == id {
			return p
		}
	}
	fatal(ErrUnfinishedPass, "pass %d was never finished", id)
	return nil
}
