// Package router assigns chunks to template slots.
package router

import (
	"context"

	"github.com/dgallion1/contextsynth/internal/doctree"
)

// Router maps chunks to slots. It is called once per run with the non-empty
// chunks and the template's routable slots. Chunks it cannot place are simply
// left out of the result.
type Router interface {
	Route(ctx context.Context, chunks []doctree.Chunk, slots []doctree.Slot) ([]doctree.Assignment, error)
}

// Func adapts a plain function to the Router interface.
type Func func(ctx context.Context, chunks []doctree.Chunk, slots []doctree.Slot) ([]doctree.Assignment, error)

func (f Func) Route(ctx context.Context, chunks []doctree.Chunk, slots []doctree.Slot) ([]doctree.Assignment, error) {
	return f(ctx, chunks, slots)
}
