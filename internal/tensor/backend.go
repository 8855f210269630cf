package tensor

// Backend defines the interface that compute backends must implement.
// Backends own the actual computation for tensor operations; the graph
// encoder and heads are written purely against this contract.
//
// Implementations:
//   - CPU: pure Go (internal/backend/cpu)
type Backend interface {
	// Element-wise binary operations (NumPy-style broadcasting)
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// Matrix operations
	MatMul(a, b *RawTensor) *RawTensor

	// Shape operations
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Transpose(t *RawTensor, axes ...int) *RawTensor

	// Scalar operations (element-wise with scalar)
	MulScalar(x *RawTensor, scalar any) *RawTensor
	AddScalar(x *RawTensor, scalar any) *RawTensor
	SubScalar(x *RawTensor, scalar any) *RawTensor
	DivScalar(x *RawTensor, scalar any) *RawTensor

	// Math operations (element-wise)
	Exp(x *RawTensor) *RawTensor
	Sqrt(x *RawTensor) *RawTensor
	Rsqrt(x *RawTensor) *RawTensor

	// Activation functions
	ReLU(x *RawTensor) *RawTensor
	Softmax(x *RawTensor, dim int) *RawTensor

	// Reduction operations
	Sum(x *RawTensor) *RawTensor
	MeanDim(x *RawTensor, dim int, keepDim bool) *RawTensor

	// Manipulation operations
	Cat(tensors []*RawTensor, dim int) *RawTensor
	Unsqueeze(x *RawTensor, dim int) *RawTensor
	Squeeze(x *RawTensor, dim int) *RawTensor

	// Lookup and graph primitives. Graph message passing is expressed
	// with row-wise gather/scatter over the leading dimension:
	//   IndexSelect        out[i] = x[index[i]]
	//   IndexAdd           out[index[i]] += src[i]  (into numRows rows)
	//   RepeatInterleave   out = [0 r0 times, 1 r1 times, ...]
	//   SegmentMean        out[s] = mean of rows with segments[i] == s
	Embedding(weight, indices *RawTensor) *RawTensor
	IndexSelect(x, index *RawTensor) *RawTensor
	IndexAdd(numRows int, index, src *RawTensor) *RawTensor
	RepeatInterleave(repeats *RawTensor) *RawTensor
	SegmentMean(x, segments *RawTensor, numSegments int) *RawTensor

	// Metadata
	Name() string
	Device() Device
}
