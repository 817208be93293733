package rendergraph

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/framegraph/engine/core"
)

// Malformed graphs are programmer errors. They are logged and raised with
// panic; the panic value is an error wrapping one of these sentinels.
var (
	ErrNoOutputRenderPass         = errors.New("render graph has no output render pass")
	ErrMultipleOutputRenderPasses = errors.New("render graph has more than one output render pass")
	ErrCyclicGraph                = errors.New("render graph contains a dependency cycle")
	ErrUnwrittenResource          = errors.New("resource is read but never written")
	ErrUnknownImport              = errors.New("unknown imported resource")
	ErrForeignWrite               = errors.New("resource written by a pass that did not create it")
	ErrUnfinishedPass             = errors.New("pass builder was never finished")
	ErrPassFinished               = errors.New("pass builder already finished")
	ErrGraphExecuted              = errors.New("render graph already executed")
	ErrInvalidResource            = errors.New("invalid resource handle")
	ErrInvalidDescription         = errors.New("invalid resource description")
)

func fatal(sentinel error, format string, args ...interface{}) {
	err := fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
	core.LogError(err.Error())
	panic(err)
}
