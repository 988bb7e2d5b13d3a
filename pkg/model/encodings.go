package model

import (
	"fmt"
	"math"

	"attnpool/pkg/tensor"
)

// Encodings maps token ids to embedding vectors with a positional signal
// added.
//
// It owns three tables:
//   - TokEmb (vocab_size+2, emb_dim): token embeddings, two extra rows
//     reserved for padding/special tokens
//   - PosEmb (seq_length+1, emb_dim): learned positional embeddings
//   - SinPos (seq_length+1, emb_dim): fixed sinusoidal matrix, computed
//     once at construction and never mutated
//
// Both positional tables carry one more row than a sequence has tokens; a
// forward pass reads rows 0..seq_length-1 and the extra row is never
// consumed here. The sizing is kept as-is for compatibility.
type Encodings struct {
	Config Config
	TokEmb *tensor.Tensor
	PosEmb *tensor.Tensor
	SinPos *tensor.Tensor
}

// NewEncodings creates the embedding tables for the given configuration.
// Trainable tables start at zero; the caller is expected to initialize
// them (see NewEncoderSeeded).
func NewEncodings(config Config) *Encodings {
	return &Encodings{
		Config: config,
		TokEmb: tensor.NewTensor([]int{config.VocabSize + 2, config.EmbeddingDim}),
		PosEmb: tensor.NewTensor([]int{config.SeqLength + 1, config.EmbeddingDim}),
		SinPos: sinusoidalMatrix(config.SeqLength, config.EmbeddingDim),
	}
}

// sinusoidalMatrix builds the fixed positional matrix with seqLen+1 rows:
//
//	P(k, 2i)   = sin(k / n^(2i/d))
//	P(k, 2i+1) = cos(k / n^(2i/d))    n = 10000
//
// For odd d the last column stays zero.
func sinusoidalMatrix(seqLen, d int) *tensor.Tensor {
	P := tensor.NewTensor([]int{seqLen + 1, d})
	for k := 0; k <= seqLen; k++ {
		for i := 0; i < d/2; i++ {
			denominator := math.Pow(10000, float64(2*i)/float64(d))
			P.Set([]int{k, 2 * i}, float32(math.Sin(float64(k)/denominator)))
			P.Set([]int{k, 2*i + 1}, float32(math.Cos(float64(k)/denominator)))
		}
	}
	return P
}

// Forward maps token ids (batch, seq_length) to embeddings
// (batch, seq_length, emb_dim).
//
// The looked-up embeddings are scaled by sqrt(emb_dim) before the
// positional rows are added, compensating for the variance shrink from
// the additive positional signal. The sinusoidal matrix is used only when
// PosEmbedding is set AND the embedding type is SIN_COS; every other
// combination adds the learned table, including PosEmbedding == false.
func (e *Encodings) Forward(ids *tensor.Tensor) (*tensor.Tensor, error) {
	if len(ids.Shape) != 2 {
		return nil, fmt.Errorf("expected 2D input (batch, seq), got %dD with shape %v",
			len(ids.Shape), ids.Shape)
	}
	if ids.Shape[1] != e.Config.SeqLength {
		return nil, fmt.Errorf("sequence length %d does not match configured length %d",
			ids.Shape[1], e.Config.SeqLength)
	}

	out, err := lookupEmbeddings(e.TokEmb, ids)
	if err != nil {
		return nil, fmt.Errorf("token lookup: %w", err)
	}
	out = out.Scale(float32(math.Sqrt(float64(e.Config.EmbeddingDim))))

	table := e.PosEmb
	if e.Config.PosEmbedding && e.Config.EmbeddingType == EmbeddingSinCos {
		table = e.SinPos
	}
	rows, err := table.SliceN(
		[]int{0, 0},
		[]int{e.Config.SeqLength, e.Config.EmbeddingDim},
	)
	if err != nil {
		return nil, fmt.Errorf("positional rows: %w", err)
	}

	// (batch, seq, d) + (seq, d), broadcast across the batch.
	out, err = tensor.Add(out, rows)
	if err != nil {
		return nil, fmt.Errorf("add positional signal: %w", err)
	}
	return out, nil
}

// lookupEmbeddings gathers table rows for integer token indices.
//
// table: (rows, emb_dim), indices: (batch, seq), output: (batch, seq, emb_dim).
// An index outside the table surfaces as an error at the offending
// position; there is no clamping.
func lookupEmbeddings(table, indices *tensor.Tensor) (*tensor.Tensor, error) {
	batchSize, seqLen := indices.Shape[0], indices.Shape[1]
	rows, embDim := table.Shape[0], table.Shape[1]

	output := tensor.NewTensor([]int{batchSize, seqLen, embDim})
	for b := 0; b < batchSize; b++ {
		for s := 0; s < seqLen; s++ {
			tokenID := int(indices.Get([]int{b, s}))
			if tokenID < 0 || tokenID >= rows {
				return nil, fmt.Errorf("token id %d at position (%d, %d) outside table with %d rows",
					tokenID, b, s, rows)
			}
			src := tokenID * embDim
			dst := (b*seqLen + s) * embDim
			copy(output.Data[dst:dst+embDim], table.Data[src:src+embDim])
		}
	}
	return output, nil
}
