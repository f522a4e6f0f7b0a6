// Package view implements the strided, non-owning array descriptor that
// windows into a Base.
package view

import (
	"fmt"

	"bohrium/internal/base"
	"bohrium/internal/typetag"
)

// View is a value type: cheap to copy, never owns its Base.
type View struct {
	Base *base.Base
	Start int64
	Rank int
	Shape [typetag.MaxRank]int64
	Stride [typetag.MaxRank]int64

	// Sliding marks a View produced by a sliding-window modifier
	// (slide_view/add_reset in the original source). The builder treats a
	// Sliding View as conflicting with every View of the same Base until a
	// precise overlap model is specified.
	Sliding bool
}

// New constructs a View, validating the bounds invariant:
// start + Σ max(0,(shape[i]-1)*stride[i]), the last element index the View
// reaches, must be less than the Base's element count.
func New(b *base.Base, start int64, shape, stride []int64) (View, error) {
	rank := len(shape)
	if rank != len(stride) {
		return View{}, fmt.Errorf("view: shape/stride length mismatch (%d vs %d)", rank, len(stride))
	}
	if rank > typetag.MaxRank {
		return View{}, fmt.Errorf("view: rank %d exceeds MAX_RANK %d", rank, typetag.MaxRank)
	}

	v := View{Base: b, Start: start, Rank: rank}
	var span int64
	for i := 0; i < rank; i++ {
		v.Shape[i] = shape[i]
		v.Stride[i] = stride[i]
		if shape[i] > 0 {
			span += maxI64(0, (shape[i]-1)*stride[i])
		}
	}
	if b != nil && b.ElementCount() > 0 && start+span >= b.ElementCount() {
		return View{}, fmt.Errorf("view: bounds %d exceed base element count %d", start+span, b.ElementCount())
	}
	return v, nil
}

func maxI64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// Scalar reports whether the View has rank 0.
func (v View) Scalar() bool { return v.Rank == 0 }

// ShapeSlice/StrideSlice expose the active rank prefix as ordinary slices,
// for code that wants to range over them without touching MaxRank.
func (v View) ShapeSlice() []int64 { return append([]int64(nil), v.Shape[:v.Rank]...) }
func (v View) StrideSlice() []int64 { return append([]int64(nil), v.Stride[:v.Rank]...) }

// Size returns the number of elements the View addresses (product of
// Shape), 1 for a scalar.
func (v View) Size() int64 {
	n := int64(1)
	for i := 0; i < v.Rank; i++ {
		n *= v.Shape[i]
	}
	return n
}

// Contiguous reports whether the View's strides equal the row-major
// strides for its shape.
func (v View) Contiguous() bool {
	if v.Rank == 0 {
		return true
	}
	expect := int64(1)
	for i := v.Rank - 1; i >= 0; i-- {
		if v.Shape[i] > 1 && v.Stride[i] != expect {
			return false
		}
		expect *= v.Shape[i]
	}
	return true
}

// SameBase reports whether a and b are views of the same underlying Base.
func SameBase(a, b View) bool {
	return a.Base == b.Base
}

// Offset returns the flat element index v's element at the given
// multi-index maps to in its Base.
func (v View) Offset(idx []int64) int64 {
	off := v.Start
	for i := 0; i < v.Rank && i < len(idx); i++ {
		off += idx[i] * v.Stride[i]
	}
	return off
}

// ForEachIndex walks every multi-index a View of the given shape addresses,
// in row-major order; a nil/empty shape visits the single scalar index once.
func ForEachIndex(shape []int64, fn func(idx []int64) error) error {
	if len(shape) == 0 {
		return fn(nil)
	}
	idx := make([]int64, len(shape))
	for {
		if err := fn(idx); err != nil {
			return err
		}
		pos := len(shape) - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] < shape[pos] {
				break
			}
			idx[pos] = 0
			pos--
		}
		if pos < 0 {
			return nil
		}
	}
}
