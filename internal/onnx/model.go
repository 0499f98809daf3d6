package onnx

import (
	"context"
	"slices"
)

// Model runs a neural network on a single input tensor.
//
// InputShape reports the declared input shape, with -1 for dynamic
// dimensions. Implementations must be safe for concurrent use.
type Model interface {
	Run(ctx context.Context, input Tensor) (Tensor, error)
	InputShape() []int64
}

// FuncModel adapts a plain function to the Model interface.
type FuncModel struct {
	Shape []int64
	Fn    func(input Tensor) (Tensor, error)
}

// Run calls Fn unless ctx is already done.
func (m FuncModel) Run(ctx context.Context, input Tensor) (Tensor, error) {
	if err := ctx.Err(); err != nil {
		return Tensor{}, err
	}
	return m.Fn(input)
}

// InputShape returns a copy of Shape.
func (m FuncModel) InputShape() []int64 { return slices.Clone(m.Shape) }
