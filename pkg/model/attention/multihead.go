// Package attention implements unmasked multi-head self-attention that
// returns its attention probabilities alongside its output.
package attention

import (
	"fmt"
	"math"

	"attnpool/pkg/tensor"
)

// Config holds the per-layer attention configuration.
type Config struct {
	NumHeads     int
	EmbeddingDim int
}

// MultiHeadAttention computes scaled dot-product self-attention across
// NumHeads heads.
//
// The per-head width is EmbeddingDim/NumHeads with integer division: when
// the division is not exact, the remainder columns are silently dropped
// and the layer projects through NumHeads*HeadSize < EmbeddingDim
// columns. Callers wanting the full width must pick a divisible head count.
//
// Every position attends to every other position; there is no causal or
// padding mask, and no activation follows the output projection.
type MultiHeadAttention struct {
	NumHeads    int
	HeadSize    int
	AllHeadSize int
	EmbDim      int

	WQuery *tensor.Tensor // (emb_dim, all_head_size)
	WKey   *tensor.Tensor // (emb_dim, all_head_size)
	WValue *tensor.Tensor // (emb_dim, all_head_size)
	WOut   *tensor.Tensor // (all_head_size, emb_dim)
	BQuery *tensor.Tensor // (all_head_size)
	BKey   *tensor.Tensor // (all_head_size)
	BValue *tensor.Tensor // (all_head_size)
	BOut   *tensor.Tensor // (emb_dim)
}

// NewMultiHeadAttention allocates a layer with zeroed parameters.
func NewMultiHeadAttention(config Config) *MultiHeadAttention {
	headSize := config.EmbeddingDim / config.NumHeads
	allHeadSize := config.NumHeads * headSize

	return &MultiHeadAttention{
		NumHeads:    config.NumHeads,
		HeadSize:    headSize,
		AllHeadSize: allHeadSize,
		EmbDim:      config.EmbeddingDim,
		WQuery:      tensor.NewTensor([]int{config.EmbeddingDim, allHeadSize}),
		WKey:        tensor.NewTensor([]int{config.EmbeddingDim, allHeadSize}),
		WValue:      tensor.NewTensor([]int{config.EmbeddingDim, allHeadSize}),
		WOut:        tensor.NewTensor([]int{allHeadSize, config.EmbeddingDim}),
		BQuery:      tensor.NewTensor([]int{allHeadSize}),
		BKey:        tensor.NewTensor([]int{allHeadSize}),
		BValue:      tensor.NewTensor([]int{allHeadSize}),
		BOut:        tensor.NewTensor([]int{config.EmbeddingDim}),
	}
}

// Forward computes self-attention over hidden states.
//
// Input shape: (batch, seq, emb_dim).
// Returns the attention output (batch, seq, emb_dim) and the attention
// probabilities (batch, num_heads, seq, seq). Each probability row is
// non-negative and sums to 1 over the key axis.
func (m *MultiHeadAttention) Forward(hidden *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	if len(hidden.Shape) != 3 {
		return nil, nil, fmt.Errorf("expected 3D input (batch, seq, emb_dim), got %dD with shape %v",
			len(hidden.Shape), hidden.Shape)
	}

	batchSize, seqLen, embDim := hidden.Shape[0], hidden.Shape[1], hidden.Shape[2]
	if embDim != m.EmbDim {
		return nil, nil, fmt.Errorf("input dimension %d does not match expected %d", embDim, m.EmbDim)
	}

	// Project to Q, K, V: (batch, seq, all_head_size).
	Q, err := linear(hidden, m.WQuery, m.BQuery)
	if err != nil {
		return nil, nil, fmt.Errorf("query projection: %w", err)
	}
	K, err := linear(hidden, m.WKey, m.BKey)
	if err != nil {
		return nil, nil, fmt.Errorf("key projection: %w", err)
	}
	V, err := linear(hidden, m.WValue, m.BValue)
	if err != nil {
		return nil, nil, fmt.Errorf("value projection: %w", err)
	}

	// Split heads: (batch, seq, all_head_size) -> (batch, num_heads, seq, head_size).
	Q, err = m.splitHeads(Q, batchSize, seqLen)
	if err != nil {
		return nil, nil, fmt.Errorf("split query heads: %w", err)
	}
	K, err = m.splitHeads(K, batchSize, seqLen)
	if err != nil {
		return nil, nil, fmt.Errorf("split key heads: %w", err)
	}
	V, err = m.splitHeads(V, batchSize, seqLen)
	if err != nil {
		return nil, nil, fmt.Errorf("split value heads: %w", err)
	}

	// Raw scores: Q @ K^T -> (batch, num_heads, seq, seq), scaled by
	// 1/sqrt(head_size).
	KT, err := K.Transpose(2, 3)
	if err != nil {
		return nil, nil, fmt.Errorf("transpose keys: %w", err)
	}
	scores, err := tensor.Matmul(Q, KT)
	if err != nil {
		return nil, nil, fmt.Errorf("attention scores: %w", err)
	}
	scores = scores.Scale(float32(1.0 / math.Sqrt(float64(m.HeadSize))))

	// Normalize over the key axis.
	probs, err := tensor.Softmax(scores, len(scores.Shape)-1)
	if err != nil {
		return nil, nil, fmt.Errorf("softmax: %w", err)
	}

	// Weighted sum of values: (batch, num_heads, seq, head_size).
	context, err := tensor.Matmul(probs, V)
	if err != nil {
		return nil, nil, fmt.Errorf("apply attention to values: %w", err)
	}

	// Recombine heads: (batch, seq, all_head_size).
	context, err = context.Transpose(1, 2)
	if err != nil {
		return nil, nil, fmt.Errorf("transpose context: %w", err)
	}
	context = context.Reshape([]int{batchSize, seqLen, m.AllHeadSize})

	// Output projection back to emb_dim. No activation is applied.
	output, err := linear(context, m.WOut, m.BOut)
	if err != nil {
		return nil, nil, fmt.Errorf("output projection: %w", err)
	}

	return output, probs, nil
}

// splitHeads reshapes (batch, seq, all_head_size) into
// (batch, num_heads, seq, head_size).
func (m *MultiHeadAttention) splitHeads(t *tensor.Tensor, batchSize, seqLen int) (*tensor.Tensor, error) {
	return t.Reshape([]int{batchSize, seqLen, m.NumHeads, m.HeadSize}).Transpose(1, 2)
}

// linear applies x @ w + b, with b broadcast across the leading axes.
func linear(x, w, b *tensor.Tensor) (*tensor.Tensor, error) {
	y, err := tensor.Matmul(x, w)
	if err != nil {
		return nil, err
	}
	return tensor.Add(y, b)
}
