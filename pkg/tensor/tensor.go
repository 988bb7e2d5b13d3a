// Package tensor provides the dense float32 tensor operations used by the
// encoder: creation, views, transposition, batched matrix multiplication,
// broadcasting element-wise arithmetic, softmax and axis reductions.
//
// The matrix-multiplication inner kernel is delegated to gonum's float32
// BLAS so the hot path stays out of hand-rolled loops.
package tensor

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Tensor is a multi-dimensional array of float32 values, stored flat in
// row-major order with precomputed strides for indexing.
type Tensor struct {
	Data    []float32
	Shape   []int
	Strides []int
}

// NewTensor creates a tensor of the given shape, initialized to zeros.
func NewTensor(shape []int) *Tensor {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	return &Tensor{
		Data:    make([]float32, size),
		Shape:   copyShape(shape),
		Strides: computeStrides(shape),
	}
}

// FromSlice creates a tensor from existing data with the given shape.
// The data is copied so the tensor owns its memory.
func FromSlice(data []float32, shape []int) (*Tensor, error) {
	expected := 1
	for _, dim := range shape {
		if dim < 0 {
			return nil, fmt.Errorf("invalid dimension %d in shape %v", dim, shape)
		}
		expected *= dim
	}
	if len(data) != expected {
		return nil, fmt.Errorf("data size %d does not match shape %v (expected %d elements)",
			len(data), shape, expected)
	}

	dataCopy := make([]float32, len(data))
	copy(dataCopy, data)

	return &Tensor{
		Data:    dataCopy,
		Shape:   copyShape(shape),
		Strides: computeStrides(shape),
	}, nil
}

// NewTensorFromData is like FromSlice but panics on a size mismatch.
// Intended for literals whose shape is known to be right.
func NewTensorFromData(data []float32, shape []int) *Tensor {
	t, err := FromSlice(data, shape)
	if err != nil {
		panic(err)
	}
	return t
}

// Clone creates a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	return NewTensorFromData(t.Data, t.Shape)
}

// View returns a tensor with a different shape sharing the same underlying
// data. Returns an error if the total size differs.
func (t *Tensor) View(newShape []int) (*Tensor, error) {
	newSize := 1
	for _, dim := range newShape {
		if dim < 0 {
			return nil, fmt.Errorf("invalid dimension %d in shape %v", dim, newShape)
		}
		newSize *= dim
	}
	if newSize != len(t.Data) {
		return nil, fmt.Errorf("cannot view tensor of size %d as shape %v (total size %d)",
			len(t.Data), newShape, newSize)
	}
	return &Tensor{
		Data:    t.Data,
		Shape:   copyShape(newShape),
		Strides: computeStrides(newShape),
	}, nil
}

// Reshape returns a view with a different shape, panicking on size mismatch.
func (t *Tensor) Reshape(newShape []int) *Tensor {
	result, err := t.View(newShape)
	if err != nil {
		panic(err)
	}
	return result
}

// Size returns the total number of elements in the tensor.
func (t *Tensor) Size() int {
	size := 1
	for _, dim := range t.Shape {
		size *= dim
	}
	return size
}

// NumDims returns the rank of the tensor.
func (t *Tensor) NumDims() int {
	return len(t.Shape)
}

// FlatIndex converts multi-dimensional indices to a flat index.
func (t *Tensor) FlatIndex(indices []int) int {
	if len(indices) != len(t.Shape) {
		panic(fmt.Sprintf("indices length %d does not match shape dimensions %d",
			len(indices), len(t.Shape)))
	}
	idx := 0
	for i := range t.Shape {
		if indices[i] < 0 || indices[i] >= t.Shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d with size %d",
				indices[i], i, t.Shape[i]))
		}
		idx += indices[i] * t.Strides[i]
	}
	return idx
}

// Get retrieves the value at the specified indices.
func (t *Tensor) Get(indices []int) float32 {
	return t.Data[t.FlatIndex(indices)]
}

// Set stores a value at the specified indices.
func (t *Tensor) Set(indices []int, value float32) {
	t.Data[t.FlatIndex(indices)] = value
}

// Transpose exchanges two dimensions, returning a fresh contiguous tensor.
func (t *Tensor) Transpose(dim1, dim2 int) (*Tensor, error) {
	if dim1 < 0 || dim1 >= len(t.Shape) || dim2 < 0 || dim2 >= len(t.Shape) {
		return nil, fmt.Errorf("invalid transpose dimensions %d and %d for tensor with %d dimensions",
			dim1, dim2, len(t.Shape))
	}
	if dim1 == dim2 {
		return t.Clone(), nil
	}

	newShape := copyShape(t.Shape)
	newShape[dim1], newShape[dim2] = newShape[dim2], newShape[dim1]
	result := NewTensor(newShape)

	indices := make([]int, len(t.Shape))
	for flat := 0; flat < len(t.Data); flat++ {
		rem := flat
		for i := range t.Shape {
			indices[i] = rem / t.Strides[i]
			rem %= t.Strides[i]
		}
		indices[dim1], indices[dim2] = indices[dim2], indices[dim1]
		result.Data[result.FlatIndex(indices)] = t.Data[flat]
	}
	return result, nil
}

// SliceN extracts a sub-tensor covering [starts[i], ends[i]) in every
// dimension. The result owns its data.
func (t *Tensor) SliceN(starts, ends []int) (*Tensor, error) {
	if len(starts) != len(t.Shape) || len(ends) != len(t.Shape) {
		return nil, fmt.Errorf("starts and ends must have same length as tensor dimensions (%d), got %d and %d",
			len(t.Shape), len(starts), len(ends))
	}

	newShape := make([]int, len(t.Shape))
	for i := range t.Shape {
		if starts[i] < 0 || starts[i] > t.Shape[i] {
			return nil, fmt.Errorf("invalid start index %d for dimension %d with size %d",
				starts[i], i, t.Shape[i])
		}
		if ends[i] < starts[i] || ends[i] > t.Shape[i] {
			return nil, fmt.Errorf("invalid end index %d for dimension %d (start=%d, size=%d)",
				ends[i], i, starts[i], t.Shape[i])
		}
		newShape[i] = ends[i] - starts[i]
	}

	result := NewTensor(newShape)
	srcIndices := make([]int, len(t.Shape))
	dstIndices := make([]int, len(t.Shape))

	var copyData func(dim int)
	copyData = func(dim int) {
		if dim == len(t.Shape) {
			result.Data[result.FlatIndex(dstIndices)] = t.Data[t.FlatIndex(srcIndices)]
			return
		}
		for i := 0; i < newShape[dim]; i++ {
			srcIndices[dim] = starts[dim] + i
			dstIndices[dim] = i
			copyData(dim + 1)
		}
	}
	if result.Size() > 0 {
		copyData(0)
	}
	return result, nil
}

// Matmul performs matrix multiplication over the last two dimensions.
// For shapes (..., m, n) and (..., n, p) the result is (..., m, p).
// A 2D operand is broadcast against a 3D one.
func Matmul(a, b *Tensor) (*Tensor, error) {
	if len(a.Shape) < 2 || len(b.Shape) < 2 {
		return nil, fmt.Errorf("matmul requires at least 2D tensors, got %dD and %dD",
			len(a.Shape), len(b.Shape))
	}
	if a.Shape[len(a.Shape)-1] != b.Shape[len(b.Shape)-2] {
		return nil, fmt.Errorf("incompatible shapes for matmul: %v and %v", a.Shape, b.Shape)
	}

	if len(a.Shape) == 3 && len(b.Shape) == 2 {
		return matmul3D2D(a, b)
	}
	if len(a.Shape) == 2 && len(b.Shape) == 3 {
		return matmul2D3D(a, b)
	}
	return matmulBatched(a, b)
}

// matmul3D2D handles (batch, m, n) @ (n, p) -> (batch, m, p).
// The batch and row dimensions collapse into a single GEMM call.
func matmul3D2D(a, b *Tensor) (*Tensor, error) {
	batch, m, n := a.Shape[0], a.Shape[1], a.Shape[2]
	p := b.Shape[1]

	result := NewTensor([]int{batch, m, p})
	gemm(batch*m, n, p, a.Data, b.Data, result.Data)
	return result, nil
}

// matmul2D3D handles (m, n) @ (batch, n, p) -> (batch, m, p).
func matmul2D3D(a, b *Tensor) (*Tensor, error) {
	m, n := a.Shape[0], a.Shape[1]
	batch, p := b.Shape[0], b.Shape[2]

	result := NewTensor([]int{batch, m, p})
	for bi := 0; bi < batch; bi++ {
		gemm(m, n, p, a.Data, b.Data[bi*n*p:(bi+1)*n*p], result.Data[bi*m*p:(bi+1)*m*p])
	}
	return result, nil
}

// matmulBatched multiplies over matching leading batch dimensions.
func matmulBatched(a, b *Tensor) (*Tensor, error) {
	m := a.Shape[len(a.Shape)-2]
	n := a.Shape[len(a.Shape)-1]
	p := b.Shape[len(b.Shape)-1]

	batchDims := a.Shape[:len(a.Shape)-2]
	batchSize := 1
	for _, dim := range batchDims {
		batchSize *= dim
	}

	resultShape := append([]int{}, batchDims...)
	resultShape = append(resultShape, m, p)
	result := NewTensor(resultShape)

	for bi := 0; bi < batchSize; bi++ {
		gemm(m, n, p,
			a.Data[bi*m*n:(bi+1)*m*n],
			b.Data[bi*n*p:(bi+1)*n*p],
			result.Data[bi*m*p:(bi+1)*m*p])
	}
	return result, nil
}

// gemm computes c = a @ b for row-major float32 slices via gonum's BLAS.
// c must already be zeroed; degenerate dimensions leave it untouched.
func gemm(m, n, p int, a, b, c []float32) {
	if m == 0 || n == 0 || p == 0 {
		return
	}
	av := blas32.General{Rows: m, Cols: n, Stride: n, Data: a}
	bv := blas32.General{Rows: n, Cols: p, Stride: p, Data: b}
	cv := blas32.General{Rows: m, Cols: p, Stride: p, Data: c}
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, av, bv, 0, cv)
}

// Scale multiplies every element by a scalar, returning a new tensor.
func Scale(t *Tensor, scalar float32) *Tensor {
	result := NewTensor(t.Shape)
	for i := range t.Data {
		result.Data[i] = t.Data[i] * scalar
	}
	return result
}

// Scale is the method form of the package-level Scale.
func (t *Tensor) Scale(s float32) *Tensor {
	return Scale(t, s)
}

// Softmax applies softmax along the specified dimension, with the usual
// max subtraction for numerical stability.
func Softmax(t *Tensor, dim int) (*Tensor, error) {
	if dim < 0 || dim >= len(t.Shape) {
		return nil, fmt.Errorf("invalid dimension %d for tensor with %d dimensions", dim, len(t.Shape))
	}

	size := t.Shape[dim]
	inner := 1
	for i := dim + 1; i < len(t.Shape); i++ {
		inner *= t.Shape[i]
	}
	outer := 1
	for i := 0; i < dim; i++ {
		outer *= t.Shape[i]
	}

	result := NewTensor(t.Shape)
	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			base := o*size*inner + in

			maxVal := float32(math.Inf(-1))
			for i := 0; i < size; i++ {
				if v := t.Data[base+i*inner]; v > maxVal {
					maxVal = v
				}
			}

			var sum float32
			for i := 0; i < size; i++ {
				e := float32(math.Exp(float64(t.Data[base+i*inner] - maxVal)))
				result.Data[base+i*inner] = e
				sum += e
			}
			for i := 0; i < size; i++ {
				result.Data[base+i*inner] /= sum
			}
		}
	}
	return result, nil
}

// SoftmaxLast applies softmax along the last dimension.
func SoftmaxLast(t *Tensor) *Tensor {
	result, err := Softmax(t, len(t.Shape)-1)
	if err != nil {
		panic(err)
	}
	return result
}

// Add performs element-wise addition with broadcasting.
func Add(a, b *Tensor) (*Tensor, error) {
	return elementWise(a, b, func(x, y float32) float32 { return x + y })
}

// Mul performs element-wise multiplication with broadcasting.
func Mul(a, b *Tensor) (*Tensor, error) {
	return elementWise(a, b, func(x, y float32) float32 { return x * y })
}

func elementWise(a, b *Tensor, op func(x, y float32) float32) (*Tensor, error) {
	outShape, err := broadcastShapes(a.Shape, b.Shape)
	if err != nil {
		return nil, fmt.Errorf("cannot broadcast shapes %v and %v: %w", a.Shape, b.Shape, err)
	}

	result := NewTensor(outShape)
	indices := make([]int, len(outShape))
	for flat := 0; flat < len(result.Data); flat++ {
		rem := flat
		for i := range outShape {
			indices[i] = rem / result.Strides[i]
			rem %= result.Strides[i]
		}
		result.Data[flat] = op(a.Data[broadcastOffset(indices, outShape, a)],
			b.Data[broadcastOffset(indices, outShape, b)])
	}
	return result, nil
}

// broadcastShapes computes the broadcast result shape of two shapes,
// aligning from the trailing dimension as NumPy does.
func broadcastShapes(a, b []int) ([]int, error) {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}

	result := make([]int, maxLen)
	for i := 0; i < maxLen; i++ {
		dimA, dimB := 1, 1
		if i < len(a) {
			dimA = a[len(a)-1-i]
		}
		if i < len(b) {
			dimB = b[len(b)-1-i]
		}
		if dimA != dimB && dimA != 1 && dimB != 1 {
			return nil, fmt.Errorf("incompatible dimensions %d and %d", dimA, dimB)
		}
		if dimA > dimB {
			result[maxLen-1-i] = dimA
		} else {
			result[maxLen-1-i] = dimB
		}
	}
	return result, nil
}

// broadcastOffset maps output indices back to a flat offset in t,
// pinning broadcast (size-1) dimensions to index 0.
func broadcastOffset(outIndices, outShape []int, t *Tensor) int {
	diff := len(outShape) - len(t.Shape)
	offset := 0
	for i := range t.Shape {
		j := outIndices[i+diff]
		if t.Shape[i] == 1 {
			j = 0
		}
		offset += j * t.Strides[i]
	}
	return offset
}

// Stack stacks equal-shaped tensors along a new leading axis.
// For k tensors of shape S the result has shape (k, S...).
func Stack(tensors []*Tensor) (*Tensor, error) {
	if len(tensors) == 0 {
		return nil, fmt.Errorf("cannot stack an empty list of tensors")
	}
	base := tensors[0]
	for i := 1; i < len(tensors); i++ {
		if !tensors[i].ShapeEquals(base) {
			return nil, fmt.Errorf("tensor %d has shape %v, expected %v to stack",
				i, tensors[i].Shape, base.Shape)
		}
	}

	outShape := append([]int{len(tensors)}, base.Shape...)
	result := NewTensor(outShape)
	offset := 0
	for _, t := range tensors {
		copy(result.Data[offset:offset+len(t.Data)], t.Data)
		offset += len(t.Data)
	}
	return result, nil
}

// SumAxis sums a tensor along one axis, dropping that axis from the shape.
func SumAxis(t *Tensor, dim int) (*Tensor, error) {
	if dim < 0 || dim >= len(t.Shape) {
		return nil, fmt.Errorf("invalid dimension %d for tensor with %d dimensions", dim, len(t.Shape))
	}

	size := t.Shape[dim]
	inner := 1
	for i := dim + 1; i < len(t.Shape); i++ {
		inner *= t.Shape[i]
	}
	outer := 1
	for i := 0; i < dim; i++ {
		outer *= t.Shape[i]
	}

	outShape := make([]int, 0, len(t.Shape)-1)
	outShape = append(outShape, t.Shape[:dim]...)
	outShape = append(outShape, t.Shape[dim+1:]...)
	result := NewTensor(outShape)

	for o := 0; o < outer; o++ {
		for i := 0; i < size; i++ {
			src := (o*size + i) * inner
			dst := o * inner
			for j := 0; j < inner; j++ {
				result.Data[dst+j] += t.Data[src+j]
			}
		}
	}
	return result, nil
}

// Equals reports whether two tensors have the same shape and element-wise
// equal values within the given tolerance.
func (t *Tensor) Equals(other *Tensor, tolerance float32) bool {
	if !t.ShapeEquals(other) {
		return false
	}
	for i := range t.Data {
		if math.Abs(float64(t.Data[i]-other.Data[i])) > float64(tolerance) {
			return false
		}
	}
	return true
}

// ShapeEquals reports whether two tensors have the same shape.
func (t *Tensor) ShapeEquals(other *Tensor) bool {
	if len(t.Shape) != len(other.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != other.Shape[i] {
			return false
		}
	}
	return true
}

// String returns a short human-readable rendering of the tensor.
func (t *Tensor) String() string {
	var sb strings.Builder
	sb.WriteString("Tensor[")
	for i, dim := range t.Shape {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%d", dim)
	}
	sb.WriteString("]: ")
	sb.WriteString(formatData(t.Shape, t.Data, 0))
	return sb.String()
}

func formatData(shape []int, data []float32, offset int) string {
	if len(shape) == 0 {
		return fmt.Sprintf("%g", data[offset])
	}

	var sb strings.Builder
	sb.WriteString("[")
	if len(shape) == 1 {
		for i := 0; i < shape[0] && i < 6; i++ {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%g", data[offset+i])
		}
		if shape[0] > 6 {
			sb.WriteString(", ...")
		}
		sb.WriteString("]")
		return sb.String()
	}

	subSize := 1
	for _, dim := range shape[1:] {
		subSize *= dim
	}
	for i := 0; i < shape[0] && i < 3; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(formatData(shape[1:], data, offset+i*subSize))
	}
	if shape[0] > 3 {
		sb.WriteString(", ...")
	}
	sb.WriteString("]")
	return sb.String()
}

func computeStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func copyShape(shape []int) []int {
	result := make([]int, len(shape))
	copy(result, shape)
	return result
}
