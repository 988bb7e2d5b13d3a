// Package model implements a Transformer-style encoder that produces a
// pooled representation of a token sequence together with the attention
// probabilities of every layer.
//
// Architecture:
//  1. Token embeddings scaled by sqrt(emb_dim), plus a positional signal
//     (fixed alternating sine/cosine or a learned table)
//  2. A stack of unmasked multi-head self-attention layers
//  3. Aggregation over the sequence axis (first position or summation)
//  4. A final linear head projection
//
// There is no layer norm, no feed-forward block, no activation after the
// attention output projection and no attention mask. Those absences are
// part of the architecture, not omissions.
package model

import "fmt"

// EmbeddingType selects the positional-embedding strategy.
type EmbeddingType string

const (
	// EmbeddingSinCos uses the fixed alternating sine/cosine matrix
	// P(k, 2i) = sin(k/n^(2i/d)), P(k, 2i+1) = cos(k/n^(2i/d)) with n = 10000.
	EmbeddingSinCos EmbeddingType = "SIN_COS"

	// EmbeddingRandom uses a positional table trained with the rest of
	// the model.
	EmbeddingRandom EmbeddingType = "RANDOM"
)

// AggMethod selects how the final layer's output is pooled over the
// sequence axis before the head projection.
type AggMethod string

const (
	// AggToken takes the vector at sequence position 0.
	AggToken AggMethod = "TOKEN"

	// AggSum sums the vectors of every sequence position.
	AggSum AggMethod = "SUM"
)

// Config holds the encoder hyperparameters. All configuration is fixed at
// construction time.
type Config struct {
	// EmbeddingDim is the embedding width. It must be even when the
	// sinusoidal positional encoding is selected, since the sine/cosine
	// formula pairs dimensions 2i and 2i+1.
	EmbeddingDim int

	// SeqLength is the fixed input sequence length. Positional tables are
	// sized SeqLength+1.
	SeqLength int

	// VocabSize is the vocabulary size. The token table carries
	// VocabSize+2 rows, reserving two slots for padding/special tokens.
	VocabSize int

	// PosEmbedding gates the sinusoidal positional branch. When false the
	// learned positional table is still added; see Encodings.Forward.
	PosEmbedding bool

	// EmbeddingType picks between the sinusoidal matrix and the learned
	// positional table.
	EmbeddingType EmbeddingType

	// NumHeads is the attention head count. EmbeddingDim/NumHeads is
	// computed with integer division: a non-divisible EmbeddingDim
	// silently truncates the per-head width. Validate does not reject this.
	NumHeads int

	// HeadSize is the output width of the final head projection.
	HeadSize int

	// AggMethod selects first-position or summation pooling.
	AggMethod AggMethod

	// NumLayers is the number of stacked attention layers.
	NumLayers int
}

// DefaultConfig returns a small working configuration, handy for demos
// and tests.
func DefaultConfig() Config {
	return Config{
		EmbeddingDim:  8,
		SeqLength:     4,
		VocabSize:     10,
		PosEmbedding:  true,
		EmbeddingType: EmbeddingSinCos,
		NumHeads:      2,
		HeadSize:      4,
		AggMethod:     AggToken,
		NumLayers:     1,
	}
}

// Validate checks that the configuration is usable. It deliberately does
// not require EmbeddingDim to be divisible by NumHeads: the truncated
// per-head width is accepted behavior.
func (c Config) Validate() error {
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("embedding_dim must be positive, got %d", c.EmbeddingDim)
	}
	if c.SeqLength <= 0 {
		return fmt.Errorf("seq_length must be positive, got %d", c.SeqLength)
	}
	if c.VocabSize < 0 {
		return fmt.Errorf("vocab_size must be non-negative, got %d", c.VocabSize)
	}
	if c.NumHeads <= 0 {
		return fmt.Errorf("num_heads must be positive, got %d", c.NumHeads)
	}
	if c.HeadSize <= 0 {
		return fmt.Errorf("head_size must be positive, got %d", c.HeadSize)
	}
	if c.NumLayers <= 0 {
		return fmt.Errorf("num_att_layers must be positive, got %d", c.NumLayers)
	}
	switch c.EmbeddingType {
	case EmbeddingSinCos, EmbeddingRandom:
	default:
		return fmt.Errorf("unknown embedding type %q", c.EmbeddingType)
	}
	switch c.AggMethod {
	case AggToken, AggSum:
	default:
		return fmt.Errorf("unknown aggregation method %q", c.AggMethod)
	}
	if c.EmbeddingType == EmbeddingSinCos && c.EmbeddingDim%2 != 0 {
		return fmt.Errorf("embedding_dim must be even for sinusoidal encodings, got %d", c.EmbeddingDim)
	}
	return nil
}
